// Package router implements the URI router and its specificity
// algorithm: a path trie over literal/label/greedy-label segments,
// build-time conflict detection, and query-pattern decorated terminals.
package router

import (
	"strings"

	"github.com/modelbridge/rtcore/rterrors"
)

// SegmentKind distinguishes the three path segment shapes.
type SegmentKind int

const (
	SegmentLiteral SegmentKind = iota
	SegmentLabel
	SegmentGreedyLabel
)

// Segment is one parsed path position.
type Segment struct {
	Kind    SegmentKind
	Literal string // set when Kind == SegmentLiteral
	Name    string // set when Kind == SegmentLabel or SegmentGreedyLabel
}

// QueryPattern is the decorator attached to a terminal: a set of required
// literal constraints plus named captures, with an escape hatch for extra
// unknown parameters.
type QueryPattern struct {
	// Required maps a query key to the exact value it must carry. Values
	// are compared case-insensitively when CaseInsensitiveValues[key] is true.
	Required              map[string]string
	CaseInsensitiveValues map[string]bool
	// Captures maps a query key to the label name it is bound to.
	Captures map[string]string
	// AllowExtra permits query parameters not named in Required or Captures.
	AllowExtra bool
}

// NewQueryPattern returns an empty QueryPattern that allows extra params.
func NewQueryPattern() *QueryPattern {
	return &QueryPattern{
		Required:              map[string]string{},
		CaseInsensitiveValues: map[string]bool{},
		Captures:              map[string]string{},
		AllowExtra:            true,
	}
}

// Pattern is a fully parsed URI pattern: method, ordered path segments,
// and an optional query decorator.
type Pattern struct {
	Method  string
	Path    []Segment
	Query   *QueryPattern
	OpID    string // opaque identifier returned to the caller on match
	rawPath string
}

// ParsePattern parses a path template of the form "/foo/{bar}/{baz+}"
// into ordered Segments, enforcing the structural invariants: no two
// labels share a name, a greedy label is the final segment, and at most
// one greedy label exists.
func ParsePattern(method, path string) (*Pattern, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	segments := make([]Segment, 0, len(parts))
	seenNames := map[string]bool{}
	greedySeen := false

	for i, part := range parts {
		if part == "" {
			continue
		}
		if greedySeen {
			return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "router: greedy label must be the final segment in %q", path)
		}
		switch {
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			kind := SegmentLabel
			if strings.HasSuffix(name, "+") {
				kind = SegmentGreedyLabel
				name = strings.TrimSuffix(name, "+")
				greedySeen = true
			}
			if seenNames[name] {
				return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "router: duplicate label name %q in %q", name, path)
			}
			seenNames[name] = true
			segments = append(segments, Segment{Kind: kind, Name: name})
		default:
			segments = append(segments, Segment{Kind: SegmentLiteral, Literal: part})
		}
		_ = i
	}
	return &Pattern{Method: method, Path: segments, rawPath: path}, nil
}

// literalCount returns the number of literal path segments, the primary
// specificity tiebreak.
func (p *Pattern) literalCount() int {
	n := 0
	for _, s := range p.Path {
		if s.Kind == SegmentLiteral {
			n++
		}
	}
	return n
}

// requiredLiteralQueryCount is the secondary specificity tiebreak.
func (p *Pattern) requiredLiteralQueryCount() int {
	if p.Query == nil {
		return 0
	}
	return len(p.Query.Required)
}

// hasGreedy is the tertiary specificity tiebreak: absence beats presence.
func (p *Pattern) hasGreedy() bool {
	for _, s := range p.Path {
		if s.Kind == SegmentGreedyLabel {
			return true
		}
	}
	return false
}

// specificity returns the (literals, requiredLiteralQueryParams,
// notGreedy) tuple, compared lexicographically; higher wins.
func (p *Pattern) specificity() (int, int, int) {
	notGreedy := 0
	if !p.hasGreedy() {
		notGreedy = 1
	}
	return p.literalCount(), p.requiredLiteralQueryCount(), notGreedy
}
