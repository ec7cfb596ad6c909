package rtcontext

import "testing"

func TestDistinctKeysWithSameNameNeverCollide(t *testing.T) {
	a := NewKey[int]("dup")
	b := NewKey[int]("dup")

	c := New()
	Put(c, a, 1)
	Put(c, b, 2)

	va, ok := Get(c, a)
	if !ok || va != 1 {
		t.Fatalf("key a: got (%v,%v), want (1,true)", va, ok)
	}
	vb, ok := Get(c, b)
	if !ok || vb != 2 {
		t.Fatalf("key b: got (%v,%v), want (2,true)", vb, ok)
	}
}

func TestExpectMissingKey(t *testing.T) {
	k := NewKey[string]("name")
	c := New()
	if _, err := Expect(c, k); err == nil {
		t.Fatalf("expected MissingKeyError")
	} else if _, ok := err.(*MissingKeyError); !ok {
		t.Fatalf("expected *MissingKeyError, got %T", err)
	}
}

func TestPutIfAbsent(t *testing.T) {
	k := NewKey[int]("counter")
	c := New()
	if v := PutIfAbsent(c, k, 1); v != 1 {
		t.Fatalf("first PutIfAbsent = %d, want 1", v)
	}
	if v := PutIfAbsent(c, k, 2); v != 1 {
		t.Fatalf("second PutIfAbsent = %d, want 1 (unchanged)", v)
	}
}

func TestComputeIfAbsent(t *testing.T) {
	k := NewKey[int]("computed")
	c := New()
	calls := 0
	compute := func(Key[int]) int { calls++; return 42 }
	if v := ComputeIfAbsent(c, k, compute); v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
	if v := ComputeIfAbsent(c, k, compute); v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
	if calls != 1 {
		t.Fatalf("compute invoked %d times, want 1", calls)
	}
}

func TestUnmodifiableViewMirrorsLaterMutation(t *testing.T) {
	k := NewKey[int]("v")
	c := New()
	view := UnmodifiableView(c)

	if _, ok := ViewGet(view, k); ok {
		t.Fatalf("expected no value before put")
	}
	Put(c, k, 7)
	got, ok := ViewGet(view, k)
	if !ok || got != 7 {
		t.Fatalf("view did not observe later mutation: got (%v,%v)", got, ok)
	}
	if err := ViewPut(view, k, 99); err != ErrUnmodifiable {
		t.Fatalf("ViewPut err = %v, want ErrUnmodifiable", err)
	}
	// State preserved.
	got, _ = Get(c, k)
	if got != 7 {
		t.Fatalf("ViewPut mutated underlying state: got %d", got)
	}
}

func TestUnmodifiableCopyIsFrozen(t *testing.T) {
	k := NewKey[int]("v")
	c := New()
	Put(c, k, 1)
	cp := UnmodifiableCopy(c)
	Put(c, k, 2)

	got, ok := CopyGet(cp, k)
	if !ok || got != 1 {
		t.Fatalf("copy observed later mutation: got (%v,%v), want (1,true)", got, ok)
	}
	if err := CopyPut(cp, k, 5); err != ErrUnmodifiable {
		t.Fatalf("CopyPut err = %v, want ErrUnmodifiable", err)
	}
}

func TestModifiableCopyIsIndependent(t *testing.T) {
	k := NewKey[int]("v")
	c := New()
	Put(c, k, 1)
	mc := ModifiableCopy(c)
	Put(mc, k, 2)

	got, _ := Get(c, k)
	if got != 1 {
		t.Fatalf("mutating the copy leaked into the source: got %d", got)
	}
	got, _ = Get(mc, k)
	if got != 2 {
		t.Fatalf("copy not mutated: got %d", got)
	}
}

func TestPutAllCopiesFromUnmodifiableView(t *testing.T) {
	k := NewKey[int]("v")
	src := New()
	Put(src, k, 3)
	view := UnmodifiableView(src)

	dst := New()
	PutAll(dst, view)
	got, ok := Get(dst, k)
	if !ok || got != 3 {
		t.Fatalf("PutAll did not copy through the view: got (%v,%v)", got, ok)
	}

	// The view contributes the underlying map's current contents, not the
	// contents at view-creation time.
	Put(src, k, 4)
	PutAll(dst, view)
	if got, _ := Get(dst, k); got != 4 {
		t.Fatalf("PutAll through view missed later mutation: got %v", got)
	}
}

func TestPutAllCopiesFromSnapshotCopy(t *testing.T) {
	k := NewKey[int]("v")
	src := New()
	Put(src, k, 5)
	cp := UnmodifiableCopy(src)
	Put(src, k, 6)

	dst := New()
	PutAll(dst, cp)
	got, ok := Get(dst, k)
	if !ok || got != 5 {
		t.Fatalf("PutAll from copy: got (%v,%v), want the frozen value 5", got, ok)
	}

	PutAll(dst, src)
	if got, _ := Get(dst, k); got != 6 {
		t.Fatalf("PutAll from mutable source: got %v, want 6", got)
	}
}
