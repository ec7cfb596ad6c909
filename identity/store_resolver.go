package identity

import (
	"context"
	"time"
)

// StoreResolver resolves the first usable credential out of a durable
// Store, bridging the identitystore backends into a resolver chain. The
// lifecycle fields on each stored credential (status, quota cooldown)
// decide usability, so cooled-down credentials are skipped during
// selection.
type StoreResolver struct {
	ResolverID string
	Store      Store
	// Filter optionally narrows candidates (for example by service); nil
	// accepts every stored credential.
	Filter func(*Credential) bool
	// Clock is swapped in tests; defaults to time.Now.
	Clock func() time.Time
}

// ID implements Resolver.
func (r *StoreResolver) ID() string { return r.ResolverID }

// Resolve implements Resolver.
func (r *StoreResolver) Resolve(ctx context.Context) (Result[*Credential], error) {
	now := time.Now
	if r.Clock != nil {
		now = r.Clock
	}
	creds, err := r.Store.List(ctx)
	if err != nil {
		return Result[*Credential]{}, err
	}
	for _, c := range creds {
		if !c.Usable(now()) {
			continue
		}
		if r.Filter != nil && !r.Filter(c) {
			continue
		}
		return Identity(c.Clone()), nil
	}
	return NotFound[*Credential](r.ResolverID, "no usable credential in store"), nil
}
