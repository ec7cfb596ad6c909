// Package schema implements the read-only reflective shape view:
// immutable shape descriptions with ordered members, a stable member
// index, and a direct-vs-inherited trait map. Traits are stored as raw
// JSON and queried with github.com/tidwall/gjson / github.com/tidwall/sjson
// rather than a hand-rolled interface{} walker.
package schema

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelbridge/rtcore/rterrors"
)

// Identifier names a shape, trait, or member unambiguously within one
// model (namespace#name); equality is plain string equality.
type Identifier string

// Kind enumerates the shape kinds a Schema may describe.
type Kind string

const (
	KindStructure Kind = "structure"
	KindUnion     Kind = "union"
	KindList      Kind = "list"
	KindMap       Kind = "map"
	KindString    Kind = "string"
	KindBoolean   Kind = "boolean"
	KindByte      Kind = "byte"
	KindShort     Kind = "short"
	KindInteger   Kind = "integer"
	KindLong      Kind = "long"
	KindFloat     Kind = "float"
	KindDouble    Kind = "double"
	KindBigInt    Kind = "bigInteger"
	KindBigDec    Kind = "bigDecimal"
	KindBlob      Kind = "blob"
	KindTimestamp Kind = "timestamp"
	KindDocument  Kind = "document"
	KindEnum      Kind = "enum"
	KindIntEnum   Kind = "intEnum"
	KindService   Kind = "service"
	KindOperation Kind = "operation"
)

// Member is one ordered field of a structure/union shape, or the element
// shape reference of a list/map.
type Member struct {
	Name        string
	Index       int
	Target      Identifier
	directTrait map[string]json.RawMessage
}

// HasDirectTrait reports whether id is set directly on this member.
func (m *Member) HasDirectTrait(id string) bool {
	_, ok := m.directTrait[id]
	return ok
}

// GetDirectTrait returns the trait value set directly on this member.
func (m *Member) GetDirectTrait(id string) (json.RawMessage, bool) {
	v, ok := m.directTrait[id]
	return v, ok
}

// Schema is an immutable description of one modeled shape, built once at
// startup by a SchemaIndex and never mutated afterward; all read accessors
// are safe for concurrent use without further synchronization.
type Schema struct {
	id       Identifier
	kind     Kind
	members  []*Member
	byName   map[string]*Member
	traits   []byte // raw JSON object: trait id -> trait value, direct traits only
	inherits []*Schema

	// Operation-only fields; zero-valued for non-operation shapes.
	inputSchema          *Schema
	outputSchema         *Schema
	effectiveAuthSchemes []string
	isEventStream        bool
}

// Builder constructs a Schema incrementally; nothing mutates a Schema
// after Build.
type Builder struct {
	s *Schema
}

// NewBuilder starts construction of a shape with the given id and kind.
func NewBuilder(id Identifier, kind Kind) *Builder {
	return &Builder{s: &Schema{
		id:     id,
		kind:   kind,
		byName: make(map[string]*Member),
		traits: []byte(`{}`),
	}}
}

// AddMember appends a member, assigning it the next stable memberIndex.
func (b *Builder) AddMember(name string, target Identifier) *Builder {
	m := &Member{Name: name, Index: len(b.s.members), Target: target, directTrait: map[string]json.RawMessage{}}
	b.s.members = append(b.s.members, m)
	b.s.byName[name] = m
	return b
}

// SetMemberTrait attaches a raw JSON trait value directly to the most
// recently added member.
func (b *Builder) SetMemberTrait(id string, value json.RawMessage) *Builder {
	if len(b.s.members) == 0 {
		return b
	}
	b.s.members[len(b.s.members)-1].directTrait[id] = value
	return b
}

// SetTrait attaches a raw JSON trait value directly to the shape itself.
func (b *Builder) SetTrait(id string, value json.RawMessage) *Builder {
	updated, err := sjson.SetRawBytes(b.s.traits, gjsonPath(id), value)
	if err == nil {
		b.s.traits = updated
	}
	return b
}

// Inherits records a parent whose traits are visible to getTrait (but not
// getDirectTrait) when not shadowed by this shape's own direct trait.
func (b *Builder) Inherits(parent *Schema) *Builder {
	b.s.inherits = append(b.s.inherits, parent)
	return b
}

// AsOperation fills in the operation-only fields of the shape under
// construction. Build rejects an operation-kind shape whose input schema
// is nil; it does not check the kind of a shape AsOperation was called on.
func (b *Builder) AsOperation(input, output *Schema, effectiveAuthSchemes []string, isEventStream bool) *Builder {
	b.s.inputSchema = input
	b.s.outputSchema = output
	b.s.effectiveAuthSchemes = append([]string(nil), effectiveAuthSchemes...)
	b.s.isEventStream = isEventStream
	return b
}

// Build finalizes and returns the immutable Schema.
func (b *Builder) Build() (*Schema, error) {
	if b.s.kind == KindOperation && b.s.inputSchema == nil {
		return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "schema: operation %s missing input schema", b.s.id)
	}
	return b.s, nil
}

// ID returns the shape's identifier.
func (s *Schema) ID() Identifier { return s.id }

// Type returns the shape's kind.
func (s *Schema) Type() Kind { return s.kind }

// Members returns the ordered member list; the returned slice must not be
// mutated by callers.
func (s *Schema) Members() []*Member { return s.members }

// Member returns the member with the given name, if any.
func (s *Schema) Member(name string) (*Member, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// MemberIndex returns the stable 0-based index of the named member.
func (s *Schema) MemberIndex(name string) (int, bool) {
	m, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	return m.Index, true
}

// HasTrait reports whether id is visible on this shape, directly or
// inherited from a parent recorded via Builder.Inherits.
func (s *Schema) HasTrait(id string) bool {
	_, ok := s.GetTrait(id)
	return ok
}

// GetDirectTrait returns the raw trait value set directly on this shape,
// ignoring any inherited value.
func (s *Schema) GetDirectTrait(id string) (json.RawMessage, bool) {
	res := gjson.GetBytes(s.traits, gjsonPath(id))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// GetTrait returns the raw trait value visible on this shape: its own
// direct trait if set, otherwise the first inherited parent's trait.
func (s *Schema) GetTrait(id string) (json.RawMessage, bool) {
	if v, ok := s.GetDirectTrait(id); ok {
		return v, true
	}
	for _, parent := range s.inherits {
		if v, ok := parent.GetTrait(id); ok {
			return v, true
		}
	}
	return nil, false
}

// InputSchema returns the operation's input shape schema; nil for
// non-operation shapes.
func (s *Schema) InputSchema() *Schema { return s.inputSchema }

// OutputSchema returns the operation's output shape schema; nil for
// non-operation shapes.
func (s *Schema) OutputSchema() *Schema { return s.outputSchema }

// EffectiveAuthSchemes returns the operation's ordered, resolved auth
// scheme identifiers.
func (s *Schema) EffectiveAuthSchemes() []string { return s.effectiveAuthSchemes }

// IsEventStream reports whether the operation carries an event-stream
// member on its input or output.
func (s *Schema) IsEventStream() bool { return s.isEventStream }

// gjsonPath escapes a trait identifier for use as a gjson/sjson top-level
// key; trait ids may contain '.' and '#', both of which are path
// metacharacters to gjson, so they are escaped with backslashes.
func gjsonPath(id string) string {
	out := make([]byte, 0, len(id)+4)
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '.' || c == '#' || c == '*' || c == '?' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
