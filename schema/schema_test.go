package schema

import (
	"encoding/json"
	"testing"
)

func TestMemberIndexIsStableAndOrdered(t *testing.T) {
	s, err := NewBuilder("example#Widget", KindStructure).
		AddMember("id", "smithy.api#String").
		AddMember("name", "smithy.api#String").
		AddMember("count", "smithy.api#Integer").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	members := s.Members()
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	for i, m := range members {
		if m.Index != i {
			t.Fatalf("member %s index = %d, want %d", m.Name, m.Index, i)
		}
	}
	idx, ok := s.MemberIndex("count")
	if !ok || idx != 2 {
		t.Fatalf("MemberIndex(count) = (%d,%v), want (2,true)", idx, ok)
	}
}

func TestDirectVsInheritedTrait(t *testing.T) {
	parent, err := NewBuilder("example#Base", KindStructure).
		SetTrait("example#required", json.RawMessage(`true`)).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	child, err := NewBuilder("example#Child", KindStructure).
		Inherits(parent).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := child.GetDirectTrait("example#required"); ok {
		t.Fatalf("child should not have a direct trait")
	}
	v, ok := child.GetTrait("example#required")
	if !ok || string(v) != "true" {
		t.Fatalf("child should inherit trait: got (%s,%v)", v, ok)
	}
	if !child.HasTrait("example#required") {
		t.Fatalf("HasTrait should see inherited trait")
	}
}

func TestDirectTraitShadowsInherited(t *testing.T) {
	parent, _ := NewBuilder("example#Base", KindStructure).
		SetTrait("example#label", json.RawMessage(`"base"`)).
		Build()
	child, _ := NewBuilder("example#Child", KindStructure).
		Inherits(parent).
		SetTrait("example#label", json.RawMessage(`"child"`)).
		Build()

	v, ok := child.GetTrait("example#label")
	if !ok || string(v) != `"child"` {
		t.Fatalf("direct trait should shadow inherited: got (%s,%v)", v, ok)
	}
}

func TestMemberDirectTrait(t *testing.T) {
	s, _ := NewBuilder("example#Widget", KindStructure).
		AddMember("name", "smithy.api#String").
		SetMemberTrait("example#required", json.RawMessage(`true`)).
		Build()
	m, ok := s.Member("name")
	if !ok {
		t.Fatalf("expected member name")
	}
	if !m.HasDirectTrait("example#required") {
		t.Fatalf("expected member trait")
	}
}

func TestMemoryIndexRoundTrip(t *testing.T) {
	idx := NewMemoryIndex()
	s, _ := NewBuilder("example#Widget", KindStructure).Build()
	idx.Register(s)

	got, ok := idx.Get("example#Widget")
	if !ok || got != s {
		t.Fatalf("Get did not return registered schema")
	}
	if _, ok := idx.Get("example#Missing"); ok {
		t.Fatalf("expected miss for unregistered id")
	}
}
