// Package identity implements identity resolution and the credential
// lifecycle: a resolver chain tries each member in order, returning the
// first resolved identity and accumulating notFound messages into a
// single error when every member misses.
package identity

import (
	"context"
	"strings"

	"github.com/modelbridge/rtcore/rterrors"
)

// Result is either a resolved identity or a notFound outcome naming the
// resolver that missed.
type Result[I any] struct {
	found      bool
	value      I
	resolverID string
	message    string
}

// Identity wraps a successfully resolved identity value.
func Identity[I any](value I) Result[I] {
	return Result[I]{found: true, value: value}
}

// NotFound reports that resolverID could not produce an identity.
func NotFound[I any](resolverID, message string) Result[I] {
	return Result[I]{found: false, resolverID: resolverID, message: message}
}

// IsFound reports whether the result carries a resolved identity.
func (r Result[I]) IsFound() bool { return r.found }

// Value returns the resolved identity; only meaningful when IsFound.
func (r Result[I]) Value() I { return r.value }

// Resolver resolves an identity of type I, asynchronously.
type Resolver[I any] interface {
	Resolve(ctx context.Context) (Result[I], error)
	// ID names this resolver for notFound accumulation and error messages.
	ID() string
}

// Chain tries each Resolver in order and returns the first resolved
// identity, accumulating notFound messages into the final error.
type Chain[I any] struct {
	resolvers []Resolver[I]
}

// NewChain returns a Chain trying resolvers in the given order.
func NewChain[I any](resolvers ...Resolver[I]) *Chain[I] {
	return &Chain[I]{resolvers: resolvers}
}

// Resolve runs the chain, returning the first found identity or a
// KindIdentityNotFound *rterrors.Error naming every resolver that missed.
func (c *Chain[I]) Resolve(ctx context.Context) (I, error) {
	var zero I
	var misses []string
	for _, r := range c.resolvers {
		res, err := r.Resolve(ctx)
		if err != nil {
			return zero, err
		}
		if res.IsFound() {
			return res.Value(), nil
		}
		msg := res.message
		if msg == "" {
			msg = "no identity"
		}
		misses = append(misses, r.ID()+": "+msg)
	}
	return zero, rterrors.New(rterrors.KindIdentityNotFound, rterrors.FaultClient,
		"identity: no resolver in chain produced an identity (%s)", strings.Join(misses, "; "))
}

// StaticResolver always resolves to a fixed identity value; useful for
// tests and for wiring a single credential without a chain.
type StaticResolver[I any] struct {
	IdentityID string
	Value      I
}

func (s *StaticResolver[I]) ID() string { return s.IdentityID }

func (s *StaticResolver[I]) Resolve(ctx context.Context) (Result[I], error) {
	return Identity(s.Value), nil
}

// FuncResolver adapts a plain function to the Resolver interface.
type FuncResolver[I any] struct {
	IdentityID string
	Fn         func(ctx context.Context) (Result[I], error)
}

func (f *FuncResolver[I]) ID() string { return f.IdentityID }

func (f *FuncResolver[I]) Resolve(ctx context.Context) (Result[I], error) {
	return f.Fn(ctx)
}
