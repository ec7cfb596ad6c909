package identity

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Resolver resolves a Credential from an OAuth2 token source,
// typically a client-credentials flow. It is the second shipped resolver
// next to static/store-backed ones; the minted access token lands in the
// credential's attributes for bearer-style signers.
type OAuth2Resolver struct {
	ResolverID string
	Source     oauth2.TokenSource
}

// NewClientCredentialsResolver wires a client-credentials token endpoint
// into the resolver chain.
func NewClientCredentialsResolver(id string, cfg clientcredentials.Config) *OAuth2Resolver {
	return &OAuth2Resolver{ResolverID: id, Source: cfg.TokenSource(context.Background())}
}

// ID implements Resolver.
func (r *OAuth2Resolver) ID() string { return r.ResolverID }

// Resolve implements Resolver. A token fetch failure is reported as a
// notFound outcome so the chain can keep trying later members.
func (r *OAuth2Resolver) Resolve(ctx context.Context) (Result[*Credential], error) {
	token, err := r.Source.Token()
	if err != nil {
		return NotFound[*Credential](r.ResolverID, err.Error()), nil
	}
	now := time.Now()
	return Identity(&Credential{
		ID:              r.ResolverID,
		Status:          StatusActive,
		CreatedAt:       now,
		LastRefreshedAt: now,
		Attributes: map[string]string{
			"access_token": token.AccessToken,
			"token_type":   token.TokenType,
		},
	}), nil
}
