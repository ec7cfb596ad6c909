package rtclient

import (
	"context"
	"time"

	"github.com/modelbridge/rtcore/identity"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
	"github.com/modelbridge/rtcore/sigv4"
	"github.com/modelbridge/rtcore/transport"
)

// Scheme identifiers of the auth schemes this module ships signers for.
const (
	SchemeSigV4  = schema.TraitSigV4
	SchemeBearer = schema.TraitHTTPBearer
	SchemeAPIKey = schema.TraitHTTPAPIKey
	SchemeNone   = "smithy.api#noAuth"
)

// Typed property keys understood by the shipped signers. Callers attach
// them to an AuthSchemeOption's SignerProperties.
var (
	// SigningRegionKey overrides the credential's region for SigV4 scope.
	SigningRegionKey = rtcontext.NewKey[string]("signing.region")
	// SigningNameKey overrides the credential's service for SigV4 scope.
	SigningNameKey = rtcontext.NewKey[string]("signing.name")
	// ChecksumRequiredKey forbids the unsigned-payload fallback: the signer
	// fails rather than sign an unbounded body it cannot hash.
	ChecksumRequiredKey = rtcontext.NewKey[bool]("signing.checksumRequired")
	// APIKeyHeaderKey names the header an API-key signer writes into.
	APIKeyHeaderKey = rtcontext.NewKey[string]("signing.apiKeyHeader")
)

// AuthSchemeOption is one entry of the resolver's priority-ordered
// result: a scheme id plus typed property bags for identity resolution
// and signing.
type AuthSchemeOption struct {
	SchemeID           string
	IdentityProperties *rtcontext.Context
	SignerProperties   *rtcontext.Context
}

// AuthSchemeResolver returns the ordered auth scheme candidates for one
// operation call.
type AuthSchemeResolver interface {
	ResolveAuthSchemes(ctx context.Context, op *schema.Schema) []AuthSchemeOption
}

// ModeledAuthSchemeResolver derives the candidate list from the
// operation's effectiveAuthSchemes, in model order.
type ModeledAuthSchemeResolver struct{}

// ResolveAuthSchemes implements AuthSchemeResolver.
func (ModeledAuthSchemeResolver) ResolveAuthSchemes(ctx context.Context, op *schema.Schema) []AuthSchemeOption {
	var opts []AuthSchemeOption
	for _, id := range op.EffectiveAuthSchemes() {
		opts = append(opts, AuthSchemeOption{
			SchemeID:           id,
			IdentityProperties: rtcontext.New(),
			SignerProperties:   rtcontext.New(),
		})
	}
	if len(opts) == 0 {
		opts = append(opts, AuthSchemeOption{
			SchemeID:           SchemeNone,
			IdentityProperties: rtcontext.New(),
			SignerProperties:   rtcontext.New(),
		})
	}
	return opts
}

// Signer applies one auth scheme's signature to an outgoing request.
type Signer interface {
	SignRequest(ctx context.Context, req *transport.HTTPRequest, cred *identity.Credential, props *rtcontext.Context) error
}

// AuthScheme pairs a scheme id with the identity chain that resolves its
// credential and the signer that applies it. Registered on the client at
// build time (the Registry idiom: extension points are values supplied by
// the caller, never discovered from global state).
type AuthScheme struct {
	ID       string
	Identity *identity.Chain[*identity.Credential]
	Signer   Signer
}

// SigV4Signer signs requests per AWS Signature Version 4 using the shared
// bounded signing-key cache.
type SigV4Signer struct {
	Cache *sigv4.Cache
	// Clock supplies the signing time; defaults to time.Now.
	Clock func() time.Time
}

// SignRequest implements Signer.
func (s *SigV4Signer) SignRequest(ctx context.Context, req *transport.HTTPRequest, cred *identity.Credential, props *rtcontext.Context) error {
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	signingTime := now().UTC()

	if props == nil {
		props = rtcontext.New()
	}
	region := cred.Region
	if v, ok := rtcontext.Get(props, SigningRegionKey); ok {
		region = v
	}
	service := cred.Service
	if v, ok := rtcontext.Get(props, SigningNameKey); ok {
		service = v
	}
	checksumRequired, _ := rtcontext.Get(props, ChecksumRequiredKey)

	var body []byte
	unsigned := false
	switch {
	case req.Body == nil:
		body = nil
	case req.Body.IsReplayable() || req.Body.ContentLength() >= 0:
		buf, err := req.Body.ToBuffer(ctx)
		if err != nil {
			return rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "rtclient: materialize body for signing")
		}
		body = buf
	default:
		if checksumRequired {
			return rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
				"rtclient: operation requires a payload checksum but the body is not replayable")
		}
		unsigned = true
	}

	req.Headers.Set("host", req.URL.Host)
	req.Headers.Set("x-amz-date", signingTime.Format("20060102T150405Z"))

	headers := make(map[string]string, len(req.Headers))
	for k := range req.Headers {
		headers[k] = req.Headers.Get(k)
	}
	auth := sigv4.SignCached(s.Cache, &sigv4.Request{
		Method:   req.Method,
		Path:     req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
		Headers:  headers,
	}, sigv4.Params{
		AccessKey:   cred.AccessKey,
		SecretKey:   cred.SecretKey,
		Region:      region,
		Service:     service,
		SigningTime: signingTime,
		Body:        body,
		Unsigned:    unsigned,
	})
	req.Headers.Set("Authorization", auth)
	return nil
}

// BearerSigner writes an Authorization: Bearer header from the
// credential's access token attribute; the token is typically minted by
// the identity package's OAuth2 resolver.
type BearerSigner struct{}

// SignRequest implements Signer.
func (BearerSigner) SignRequest(ctx context.Context, req *transport.HTTPRequest, cred *identity.Credential, props *rtcontext.Context) error {
	token := cred.Attributes["access_token"]
	if token == "" {
		return rterrors.New(rterrors.KindIdentityNotFound, rterrors.FaultClient,
			"rtclient: credential %s carries no access token", cred.ID)
	}
	req.Headers.Set("Authorization", "Bearer "+token)
	return nil
}

// APIKeySigner writes the credential's secret into a configurable header.
type APIKeySigner struct{}

// SignRequest implements Signer.
func (APIKeySigner) SignRequest(ctx context.Context, req *transport.HTTPRequest, cred *identity.Credential, props *rtcontext.Context) error {
	header := "x-api-key"
	if props != nil {
		if h, ok := rtcontext.Get(props, APIKeyHeaderKey); ok && h != "" {
			header = h
		}
	}
	req.Headers.Set(header, cred.SecretKey)
	return nil
}

// NoneSigner leaves the request unsigned, for anonymous operations.
type NoneSigner struct{}

// SignRequest implements Signer.
func (NoneSigner) SignRequest(ctx context.Context, req *transport.HTTPRequest, cred *identity.Credential, props *rtcontext.Context) error {
	return nil
}
