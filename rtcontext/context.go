// Package rtcontext implements the process-local, identity-keyed,
// heterogeneous context map shared across the router, client pipeline,
// interceptor chain, waiter and paginator. Keys compare by allocation
// identity, never by name, so two keys with the same descriptive name
// never collide.
package rtcontext

import (
	"fmt"
	"sync"
)

// identity is a unique, comparable token: every NewKey call allocates a
// fresh *identity, so two Key[T] values compare equal only when they share
// the exact allocation — reference identity, never descriptive name.
type identity struct{ _ byte }

// Key is an opaque, identity-compared context key. Two keys created by
// separate calls to NewKey are always distinct, even if they share a Name.
type Key[T any] struct {
	id   *identity
	name string
}

// Name returns the descriptive name the key was created with, for error
// messages and logging only; it plays no part in key equality.
func (k Key[T]) Name() string { return k.name }

// NewKey returns a fresh, identity-distinct context key for values of type T.
func NewKey[T any](name string) Key[T] {
	return Key[T]{id: &identity{}, name: name}
}

// erasedKey lets Context store keys of different T behind one map without
// reflection: each Key[T] value, combined with its pointer identity in the
// untyped map, remains distinguishable because Go map keys compare by
// value+type and Key[T] for differing T are different static types routed
// through the same interface slot below.
type erasedKey any

// MissingKeyError reports that Context.Expect found no value for a key.
type MissingKeyError struct {
	KeyName string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("rtcontext: no value for key %q", e.KeyName)
}

// Context is a mutable, heterogeneous key->value map. A Context is
// single-owner for the duration of one pipeline execution and is not
// meant for concurrent mutation from multiple goroutines; reads
// concurrent with writes must go through a View.
type Context struct {
	mu     sync.RWMutex
	values map[erasedKey]any
}

// New returns an empty, mutable Context.
func New() *Context {
	return &Context{values: make(map[erasedKey]any)}
}

// Put stores v under k, overwriting any previous value.
func Put[T any](c *Context, k Key[T], v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k] = v
}

// PutIfAbsent stores v under k only if k has no existing value, returning
// the value now associated with k (either the new v, or whatever was
// already present).
func PutIfAbsent[T any](c *Context, k Key[T], v T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.values[k]; ok {
		return existing.(T)
	}
	c.values[k] = v
	return v
}

// ComputeIfAbsent stores and returns fn(k) if k has no existing value,
// otherwise returns the existing value without invoking fn.
func ComputeIfAbsent[T any](c *Context, k Key[T], fn func(Key[T]) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.values[k]; ok {
		return existing.(T)
	}
	v := fn(k)
	c.values[k] = v
	return v
}

// Get returns the value stored under k and true, or the zero value and
// false if k has no value.
func Get[T any](c *Context, k Key[T]) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[k]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Expect returns the value stored under k, or a *MissingKeyError naming k.
func Expect[T any](c *Context, k Key[T]) (T, error) {
	v, ok := Get(c, k)
	if !ok {
		return v, &MissingKeyError{KeyName: k.name}
	}
	return v, nil
}

// ErrUnmodifiable is returned by any mutating method called on an unmodifiable
// view or copy.
var ErrUnmodifiable = fmt.Errorf("rtcontext: context is unmodifiable")

// Source is any readable context form PutAll can copy from: a mutable
// Context, an unmodifiable View, or a Copy.
type Source interface {
	snapshotValues() map[erasedKey]any
}

// PutAll copies every key/value from src into dst. src may be a mutable
// Context, an unmodifiable view, or a copy; views contribute their
// underlying map's current contents.
func PutAll(dst *Context, src Source) {
	values := src.snapshotValues()

	dst.mu.Lock()
	defer dst.mu.Unlock()
	for k, v := range values {
		dst.values[k] = v
	}
}

// View wraps an underlying Context, exposing its live contents for reads
// while rejecting mutation. Unlike Copy, later mutations of the
// underlying Context are visible through the view once they complete:
// a put finished before the reader started is always observed.
type View struct {
	underlying *Context
}

// UnmodifiableView returns a live, read-only window onto c.
func UnmodifiableView(c *Context) *View {
	return &View{underlying: c}
}

// ViewGet reads through to the underlying Context.
func ViewGet[T any](v *View, k Key[T]) (T, bool) {
	return Get(v.underlying, k)
}

// ViewExpect reads through to the underlying Context.
func ViewExpect[T any](v *View, k Key[T]) (T, error) {
	return Expect(v.underlying, k)
}

// ViewPut always fails: a View never mutates its underlying Context, and the
// underlying state is left unchanged.
func ViewPut[T any](v *View, k Key[T], val T) error {
	return ErrUnmodifiable
}

// Copy is a detached snapshot of a Context at the moment Copy was taken;
// later mutations of the source are not reflected.
type Copy struct {
	values map[erasedKey]any
}

func snapshot(c *Context) map[erasedKey]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[erasedKey]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Context) snapshotValues() map[erasedKey]any { return snapshot(c) }

func (v *View) snapshotValues() map[erasedKey]any { return snapshot(v.underlying) }

// A Copy's map is frozen after construction, so it is shared rather than
// re-snapshotted.
func (cp *Copy) snapshotValues() map[erasedKey]any { return cp.values }

// UnmodifiableCopy returns an immutable snapshot of c.
func UnmodifiableCopy(c *Context) *Copy {
	return &Copy{values: snapshot(c)}
}

// CopyGet reads the frozen snapshot.
func CopyGet[T any](cp *Copy, k Key[T]) (T, bool) {
	v, ok := cp.values[k]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// CopyPut always fails for an unmodifiable copy.
func CopyPut[T any](cp *Copy, k Key[T], val T) error {
	return ErrUnmodifiable
}

// ModifiableCopy returns a new, independently mutable Context seeded with a
// snapshot of c's current contents.
func ModifiableCopy(c *Context) *Context {
	return &Context{values: snapshot(c)}
}
