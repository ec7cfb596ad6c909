package router

import (
	"strings"

	"github.com/modelbridge/rtcore/rterrors"
)

// node is one path-trie position: literal children keyed by exact text,
// at most one label child, at most one greedy-label child, and an
// optional set of terminals (one per HTTP method) when this node
// terminates a registered pattern.
type node struct {
	literalChildren map[string]*node
	labelChild      *node
	labelName       string
	greedyChild     *node
	greedyName      string
	terminals       map[string]*terminal // keyed by HTTP method
}

type terminal struct {
	pattern *Pattern
}

func newNode() *node {
	return &node{literalChildren: map[string]*node{}, terminals: map[string]*terminal{}}
}

// Router is a built, immutable path trie: once Build succeeds, Match is
// safe for concurrent use without synchronization.
type Router struct {
	root           *node
	allowEmptySegs bool
}

// Builder accumulates patterns before Build validates conflicts and
// freezes the trie.
type Builder struct {
	allowEmptySegments bool
	patterns           []*Pattern
}

// NewBuilder returns an empty router Builder. allowEmptySegments controls
// whether consecutive slashes ("//") are matchable.
func NewBuilder(allowEmptySegments bool) *Builder {
	return &Builder{allowEmptySegments: allowEmptySegments}
}

// Register adds a pattern to the builder. Conflicts are detected at Build,
// not here, since conflict detection requires comparing every pair.
func (b *Builder) Register(p *Pattern) *Builder {
	b.patterns = append(b.patterns, p)
	return b
}

// conflictType enumerates the build-time pairwise conflict outcomes.
type conflictType int

const (
	conflictNone conflictType = iota
	conflictEquivalent
)

// Build validates pairwise conflicts and constructs the immutable trie.
// It fails fast on the first equivalent-conflict found, naming both
// patterns: an ambiguous pattern set is a configuration bug.
func (b *Builder) Build() (*Router, error) {
	for i := 0; i < len(b.patterns); i++ {
		for j := i + 1; j < len(b.patterns); j++ {
			p1, p2 := b.patterns[i], b.patterns[j]
			if p1.Method != p2.Method {
				continue
			}
			if detectConflict(p1, p2) == conflictEquivalent {
				return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
					"router: equivalent-conflict between pattern %q and pattern %q", patternLabel(p1), patternLabel(p2))
			}
		}
	}

	root := newNode()
	for _, p := range b.patterns {
		insert(root, p)
	}
	return &Router{root: root, allowEmptySegs: b.allowEmptySegments}, nil
}

func patternLabel(p *Pattern) string {
	return p.Method + " " + p.rawPath
}

// detectConflict walks both patterns' segments pairwise: literal=literal
// requires identical text, a label is compatible with anything, and a
// greedy label subsumes any suffix. If segments are pairwise compatible,
// the query decorators don't attenuate the conflict, and the specificity
// tuples tie, the patterns are an equivalent-conflict.
func detectConflict(p1, p2 *Pattern) conflictType {
	i, j := 0, 0
	for i < len(p1.Path) && j < len(p2.Path) {
		s1, s2 := p1.Path[i], p2.Path[j]
		if s1.Kind == SegmentGreedyLabel || s2.Kind == SegmentGreedyLabel {
			// A greedy label subsumes everything remaining in the other
			// pattern; the two are compatible from here on.
			i, j = len(p1.Path), len(p2.Path)
			break
		}
		if s1.Kind == SegmentLiteral && s2.Kind == SegmentLiteral {
			if s1.Literal != s2.Literal {
				return conflictNone
			}
		}
		// literal vs label, or label vs label: compatible (label matches
		// anything a literal could).
		i++
		j++
	}
	if i != len(p1.Path) || j != len(p2.Path) {
		return conflictNone
	}
	if queryAttenuates(p1.Query, p2.Query) {
		return conflictNone
	}
	l1, q1, g1 := p1.specificity()
	l2, q2, g2 := p2.specificity()
	if l1 != l2 || q1 != q2 || g1 != g2 {
		return conflictNone
	}
	return conflictEquivalent
}

// queryAttenuates reports whether the patterns' query decorators rule out
// a conflict: if one requires a literal param absent (or differently
// valued) in the other's requirements, they do not conflict.
func queryAttenuates(q1, q2 *QueryPattern) bool {
	req1 := map[string]string{}
	req2 := map[string]string{}
	if q1 != nil {
		req1 = q1.Required
	}
	if q2 != nil {
		req2 = q2.Required
	}
	for k, v := range req1 {
		if v2, ok := req2[k]; !ok || v2 != v {
			return true
		}
	}
	for k, v := range req2 {
		if v1, ok := req1[k]; !ok || v1 != v {
			return true
		}
	}
	return false
}

func insert(root *node, p *Pattern) {
	cur := root
	for _, seg := range p.Path {
		switch seg.Kind {
		case SegmentLiteral:
			child, ok := cur.literalChildren[seg.Literal]
			if !ok {
				child = newNode()
				cur.literalChildren[seg.Literal] = child
			}
			cur = child
		case SegmentLabel:
			if cur.labelChild == nil {
				cur.labelChild = newNode()
				cur.labelName = seg.Name
			}
			cur = cur.labelChild
		case SegmentGreedyLabel:
			if cur.greedyChild == nil {
				cur.greedyChild = newNode()
				cur.greedyName = seg.Name
			}
			cur = cur.greedyChild
		}
	}
	cur.terminals[p.Method] = &terminal{pattern: p}
}

// MatchFailure distinguishes the router's failure modes.
type MatchFailure int

const (
	FailureNone MatchFailure = iota
	FailureNoMatch
	FailureMethodNotAllowed
	FailureBadQuery
)

// MatchResult is the outcome of Router.Match.
type MatchResult struct {
	Failure MatchFailure
	OpID    string
	Labels  map[string][]string
}

// Match performs the depth-first traversal, preferring children in the
// order literal > label > greedy-label, and returns the single matching
// terminal or a failure mode.
func (r *Router) Match(method, path, rawQuery string) *MatchResult {
	if !r.allowEmptySegs && strings.Contains(path, "//") {
		return &MatchResult{Failure: FailureNoMatch}
	}
	segments := splitPath(path)
	query := parseQuery(rawQuery)

	labels := map[string][]string{}
	methodMismatch := false
	queryMismatch := false

	t := matchNode(r.root, segments, 0, labels, &methodMismatch, &queryMismatch, method, query)
	if t == nil {
		if methodMismatch {
			return &MatchResult{Failure: FailureMethodNotAllowed}
		}
		if queryMismatch {
			return &MatchResult{Failure: FailureBadQuery}
		}
		return &MatchResult{Failure: FailureNoMatch}
	}
	return &MatchResult{OpID: t.pattern.OpID, Labels: labels}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchNode(n *node, segments []string, idx int, labels map[string][]string, methodMismatch, queryMismatch *bool, method string, query map[string][]string) *terminal {
	if idx == len(segments) {
		t, ok := n.terminals[method]
		if !ok {
			if len(n.terminals) > 0 {
				*methodMismatch = true
			}
			return nil
		}
		if !matchQuery(t.pattern.Query, query, labels) {
			*queryMismatch = true
			return nil
		}
		return t
	}

	seg := segments[idx]

	if child, ok := n.literalChildren[seg]; ok {
		if t := matchNode(child, segments, idx+1, labels, methodMismatch, queryMismatch, method, query); t != nil {
			return t
		}
	}
	if n.labelChild != nil {
		prior, hadPrior := labels[n.labelName]
		labels[n.labelName] = []string{seg}
		if t := matchNode(n.labelChild, segments, idx+1, labels, methodMismatch, queryMismatch, method, query); t != nil {
			return t
		}
		if hadPrior {
			labels[n.labelName] = prior
		} else {
			delete(labels, n.labelName)
		}
	}
	if n.greedyChild != nil {
		remainder := strings.Join(segments[idx:], "/")
		prior, hadPrior := labels[n.greedyName]
		labels[n.greedyName] = []string{remainder}
		if t := matchNode(n.greedyChild, segments, len(segments), labels, methodMismatch, queryMismatch, method, query); t != nil {
			return t
		}
		if hadPrior {
			labels[n.greedyName] = prior
		} else {
			delete(labels, n.greedyName)
		}
	}
	return nil
}

// parseQuery parses a raw query string into an ordered multimap, treating
// a valueless param ("?x") as the empty string.
func parseQuery(raw string) map[string][]string {
	out := map[string][]string{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key := pair
		value := ""
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key, value = pair[:eq], pair[eq+1:]
		}
		out[key] = append(out[key], value)
	}
	return out
}

func matchQuery(qp *QueryPattern, query map[string][]string, labels map[string][]string) bool {
	if qp == nil {
		return true
	}
	for key, want := range qp.Required {
		values, ok := query[key]
		if !ok || len(values) == 0 {
			return false
		}
		got := values[0]
		if qp.CaseInsensitiveValues[key] {
			if !strings.EqualFold(got, want) {
				return false
			}
		} else if got != want {
			return false
		}
	}
	for key, labelName := range qp.Captures {
		values, ok := query[key]
		if !ok {
			return false
		}
		labels[labelName] = values
	}
	if !qp.AllowExtra {
		for key := range query {
			if _, required := qp.Required[key]; required {
				continue
			}
			if _, captured := qp.Captures[key]; captured {
				continue
			}
			return false
		}
	}
	return true
}
