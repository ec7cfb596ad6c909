package sigv4

import (
	"testing"
	"time"
)

// TestAWSPublishedCanonicalExample reproduces the AWS-published
// GET-vanilla signing example.
func TestAWSPublishedCanonicalExample(t *testing.T) {
	signingTime, err := time.Parse("20060102T150405Z", "20150830T123600Z")
	if err != nil {
		t.Fatal(err)
	}

	req := &Request{
		Method:   "GET",
		Path:     "/",
		RawQuery: "",
		Headers: map[string]string{
			"host":         "example.amazonaws.com",
			"x-amz-date":   "20150830T123600Z",
		},
	}
	p := Params{
		AccessKey:   "AKIDEXAMPLE",
		SecretKey:   "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Region:      "us-east-1",
		Service:     "service",
		SigningTime: signingTime,
		Body:        []byte(""),
	}

	got := Sign(req, p)
	want := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, " +
		"SignedHeaders=host;x-amz-date, " +
		"Signature=ea21d6f05e96a897f6000a1a293f0a5bf0f92a00343409e820dce329ca6365ea"

	if got != want {
		t.Fatalf("Authorization mismatch:\n got  %s\n want %s", got, want)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	signingTime, _ := time.Parse("20060102T150405Z", "20150830T123600Z")
	req := &Request{
		Method: "GET",
		Path:   "/",
		Headers: map[string]string{
			"host":       "example.amazonaws.com",
			"x-amz-date": "20150830T123600Z",
		},
	}
	p := Params{
		AccessKey:   "AKIDEXAMPLE",
		SecretKey:   "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Region:      "us-east-1",
		Service:     "service",
		SigningTime: signingTime,
		Body:        []byte(""),
	}
	a := Sign(req, p)
	b := Sign(req, p)
	if a != b {
		t.Fatalf("signing is not deterministic: %q vs %q", a, b)
	}
}

func TestCacheEvictsOldestInsertedNotOldestUsed(t *testing.T) {
	cache := NewCache(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cache.Put("secretA", "us-east-1", "svc", "20260101", []byte("keyA"))
	cache.Put("secretB", "us-east-1", "svc", "20260101", []byte("keyB"))

	// Touch A repeatedly; FIFO eviction must still evict A (oldest
	// inserted) rather than B, since this cache is not LRU.
	if _, ok := cache.Get("secretA", "us-east-1", "svc", now); !ok {
		t.Fatalf("expected secretA present before third insert")
	}
	if _, ok := cache.Get("secretA", "us-east-1", "svc", now); !ok {
		t.Fatalf("expected secretA present before third insert")
	}

	cache.Put("secretC", "us-east-1", "svc", "20260101", []byte("keyC"))

	if _, ok := cache.Get("secretA", "us-east-1", "svc", now); ok {
		t.Fatalf("expected secretA evicted (oldest inserted)")
	}
	if _, ok := cache.Get("secretB", "us-east-1", "svc", now); !ok {
		t.Fatalf("expected secretB still present")
	}
	if _, ok := cache.Get("secretC", "us-east-1", "svc", now); !ok {
		t.Fatalf("expected secretC present")
	}
}

func TestCacheEntryExpiresAcrossDateBoundary(t *testing.T) {
	cache := NewCache(8)
	cache.Put("secret", "us-east-1", "svc", "20260101", []byte("key"))

	sameDay := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	if _, ok := cache.Get("secret", "us-east-1", "svc", sameDay); !ok {
		t.Fatalf("expected cache hit on the same UTC date")
	}

	nextDay := time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)
	if _, ok := cache.Get("secret", "us-east-1", "svc", nextDay); ok {
		t.Fatalf("expected cache miss once the UTC date rolls over")
	}
}

func TestSignCachedMatchesUncachedSignature(t *testing.T) {
	signingTime, _ := time.Parse("20060102T150405Z", "20150830T123600Z")
	req := &Request{
		Method: "GET",
		Path:   "/",
		Headers: map[string]string{
			"host":       "example.amazonaws.com",
			"x-amz-date": "20150830T123600Z",
		},
	}
	p := Params{
		AccessKey:   "AKIDEXAMPLE",
		SecretKey:   "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Region:      "us-east-1",
		Service:     "service",
		SigningTime: signingTime,
		Body:        []byte(""),
	}

	direct := Sign(req, p)
	cached := SignCached(NewCache(4), req, p)
	if direct != cached {
		t.Fatalf("cached signing diverged: %q vs %q", cached, direct)
	}
}
