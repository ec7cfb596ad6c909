package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

func TestChainReturnsFirstIdentity(t *testing.T) {
	chain := NewChain[string](
		&FuncResolver[string]{IdentityID: "env", Fn: func(ctx context.Context) (Result[string], error) {
			return NotFound[string]("env", "no env credentials"), nil
		}},
		&StaticResolver[string]{IdentityID: "static", Value: "first"},
		&StaticResolver[string]{IdentityID: "later", Value: "second"},
	)
	got, err := chain.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "first" {
		t.Fatalf("resolved %q, want first chain hit", got)
	}
}

func TestChainAccumulatesMisses(t *testing.T) {
	miss := func(id, msg string) Resolver[string] {
		return &FuncResolver[string]{IdentityID: id, Fn: func(ctx context.Context) (Result[string], error) {
			return NotFound[string](id, msg), nil
		}}
	}
	chain := NewChain[string](miss("env", "unset"), miss("file", "missing profile"))
	_, err := chain.Resolve(context.Background())
	re, ok := rterrors.As(err)
	if !ok || re.Kind != rterrors.KindIdentityNotFound {
		t.Fatalf("error = %v, want Identity/NotFound", err)
	}
	for _, fragment := range []string{"env: unset", "file: missing profile"} {
		if !strings.Contains(re.Message, fragment) {
			t.Fatalf("message %q missing %q", re.Message, fragment)
		}
	}
}

type sliceStore struct {
	creds []*Credential
}

func (s *sliceStore) List(ctx context.Context) ([]*Credential, error) { return s.creds, nil }
func (s *sliceStore) Save(ctx context.Context, c *Credential) (string, error) {
	s.creds = append(s.creds, c)
	return c.ID, nil
}
func (s *sliceStore) Delete(ctx context.Context, id string) error { return nil }

func TestStoreResolverSkipsUnusable(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	store := &sliceStore{creds: []*Credential{
		{ID: "disabled", Disabled: true},
		{ID: "cooling", Quota: QuotaState{Exceeded: true, NextRecoverAt: now.Add(time.Hour)}},
		{ID: "good", AccessKey: "AK", SecretKey: "SK"},
	}}
	r := &StoreResolver{ResolverID: "store", Store: store, Clock: func() time.Time { return now }}

	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsFound() || res.Value().ID != "good" {
		t.Fatalf("resolved %+v, want the usable credential", res)
	}

	// The resolved credential is a clone; mutating it must not touch the store.
	res.Value().SecretKey = "changed"
	if store.creds[2].SecretKey != "SK" {
		t.Fatal("resolver leaked the stored credential")
	}
}

func TestStoreResolverNotFound(t *testing.T) {
	r := &StoreResolver{ResolverID: "empty", Store: &sliceStore{}}
	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.IsFound() {
		t.Fatal("empty store resolved an identity")
	}
}
