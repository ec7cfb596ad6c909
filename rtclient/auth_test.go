package rtclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/modelbridge/rtcore/identity"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/sigv4"
	"github.com/modelbridge/rtcore/stream"
	"github.com/modelbridge/rtcore/transport"
)

func sigv4Request() *transport.HTTPRequest {
	return &transport.HTTPRequest{
		Method:  "GET",
		URL:     &url.URL{Scheme: "https", Host: "example.amazonaws.com", Path: "/"},
		Headers: http.Header{},
		Body:    stream.OfBytes(nil, ""),
	}
}

func TestSigV4SignerProducesDeterministicAuthorization(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)
	}
	signer := &SigV4Signer{Cache: sigv4.NewCache(4), Clock: clock}
	cred := &identity.Credential{
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Region:    "us-east-1",
		Service:   "service",
	}

	req1 := sigv4Request()
	if err := signer.SignRequest(context.Background(), req1, cred, rtcontext.New()); err != nil {
		t.Fatal(err)
	}
	req2 := sigv4Request()
	if err := signer.SignRequest(context.Background(), req2, cred, rtcontext.New()); err != nil {
		t.Fatal(err)
	}

	auth1 := req1.Headers.Get("Authorization")
	auth2 := req2.Headers.Get("Authorization")
	if auth1 == "" || auth1 != auth2 {
		t.Fatalf("signing not deterministic:\n %q\n %q", auth1, auth2)
	}
	if !strings.Contains(auth1, "Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request") {
		t.Fatalf("authorization = %q", auth1)
	}
	if req1.Headers.Get("x-amz-date") != "20150830T123600Z" {
		t.Fatalf("x-amz-date = %q", req1.Headers.Get("x-amz-date"))
	}
}

// endlessReader never terminates, standing in for an unbounded body.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func TestSigV4ChecksumRequiredRejectsUnboundedBody(t *testing.T) {
	signer := &SigV4Signer{Cache: sigv4.NewCache(4)}
	cred := &identity.Credential{AccessKey: "AK", SecretKey: "SK", Region: "r", Service: "s"}

	req := sigv4Request()
	req.Body = stream.OfInputSource(io.Reader(endlessReader{}), "application/octet-stream", stream.UnknownLength)

	props := rtcontext.New()
	rtcontext.Put(props, ChecksumRequiredKey, true)

	err := signer.SignRequest(context.Background(), req, cred, props)
	re, ok := rterrors.As(err)
	if !ok || re.Kind != rterrors.KindCallValidation {
		t.Fatalf("error = %v, want validation failure for unsigned-payload + checksum", err)
	}

	// Without the checksum requirement the signer falls back to the
	// unsigned-payload sentinel instead of failing.
	req2 := sigv4Request()
	req2.Body = stream.OfInputSource(io.Reader(endlessReader{}), "application/octet-stream", stream.UnknownLength)
	if err := signer.SignRequest(context.Background(), req2, cred, rtcontext.New()); err != nil {
		t.Fatalf("unsigned-payload fallback failed: %v", err)
	}
}

func TestBearerSigner(t *testing.T) {
	req := sigv4Request()
	cred := &identity.Credential{ID: "oauth", Attributes: map[string]string{"access_token": "tok-123"}}
	if err := (BearerSigner{}).SignRequest(context.Background(), req, cred, nil); err != nil {
		t.Fatal(err)
	}
	if got := req.Headers.Get("Authorization"); got != "Bearer tok-123" {
		t.Fatalf("authorization = %q", got)
	}

	bare := &identity.Credential{ID: "empty"}
	if err := (BearerSigner{}).SignRequest(context.Background(), sigv4Request(), bare, nil); err == nil {
		t.Fatal("expected failure for credential without token")
	}
}

func TestAPIKeySignerHeaderOverride(t *testing.T) {
	req := sigv4Request()
	cred := &identity.Credential{SecretKey: "key-9"}
	props := rtcontext.New()
	rtcontext.Put(props, APIKeyHeaderKey, "x-service-key")
	if err := (APIKeySigner{}).SignRequest(context.Background(), req, cred, props); err != nil {
		t.Fatal(err)
	}
	if got := req.Headers.Get("x-service-key"); got != "key-9" {
		t.Fatalf("api key header = %q", got)
	}
}
