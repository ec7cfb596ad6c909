// Package sigv4 implements AWS Signature Version 4 request signing:
// canonical request construction, string-to-sign, key derivation, and
// the final Authorization header, plus a bounded FIFO signing-key cache
// keyed by (secretKey, region, service) with date-based reuse.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// UnsignedPayload is the sentinel payload hash used when the body is
// unbounded and not replayable.
const UnsignedPayload = "UNSIGNED-PAYLOAD"

// Request is the minimal shape sigv4 needs to sign: method, canonical
// path, raw query, and the header set to canonicalize.
type Request struct {
	Method  string
	Path    string
	RawQuery string
	Headers map[string]string // lowercased keys expected by caller
}

// Params carries the signing identity and scope for one Sign call.
type Params struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
	// SigningTime is the moment the signature is computed; the date and
	// amz-date derive from it.
	SigningTime time.Time
	// Body is the request payload; pass nil with Unsigned=true for an
	// unbounded, non-replayable body.
	Body     []byte
	Unsigned bool
}

// Sign computes the canonical request, string-to-sign, derived signing
// key, and final signature, returning the Authorization header value.
func Sign(req *Request, p Params) string {
	isoDateTime := p.SigningTime.UTC().Format("20060102T150405Z")
	date := p.SigningTime.UTC().Format("20060102")

	payloadHash := UnsignedPayload
	if !p.Unsigned {
		sum := sha256.Sum256(p.Body)
		payloadHash = hex.EncodeToString(sum[:])
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req.Headers)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalPath(req.Path),
		canonicalQuery(req.RawQuery),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := date + "/" + p.Region + "/" + p.Service + "/aws4_request"
	crHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		isoDateTime,
		credentialScope,
		hex.EncodeToString(crHash[:]),
	}, "\n")

	signingKey := DeriveKey(p.SecretKey, date, p.Region, p.Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	return "AWS4-HMAC-SHA256 Credential=" + p.AccessKey + "/" + credentialScope +
		", SignedHeaders=" + signedHeaders + ", Signature=" + signature
}

// DeriveKey computes kSigning = HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date),
// region), service), "aws4_request").
func DeriveKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// canonicalPath returns the path unchanged: callers are expected to
// supply an already percent-encoded raw path.
func canonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// canonicalQuery sorts query parameters by key then value.
func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	var keys []string
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// canonicalizeHeaders lowercases and trims header names/values, sorts by
// name, and joins signed header names with ";".
func canonicalizeHeaders(headers map[string]string) (canonical, signed string) {
	var keys []string
	for k := range headers {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)

	var canonLines []string
	for _, k := range keys {
		v := strings.TrimSpace(headers[k])
		canonLines = append(canonLines, k+":"+v)
	}
	return strings.Join(canonLines, "\n") + "\n", strings.Join(keys, ";")
}
