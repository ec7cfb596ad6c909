package router

import "testing"

func mustPattern(t *testing.T, method, path, opID string) *Pattern {
	t.Helper()
	p, err := ParsePattern(method, path)
	if err != nil {
		t.Fatal(err)
	}
	p.OpID = opID
	return p
}

func TestRouterSpecificity(t *testing.T) {
	a := mustPattern(t, "GET", "/foo/{bar}", "A")
	b := mustPattern(t, "GET", "/foo/baz", "B")

	r, err := NewBuilder(false).Register(a).Register(b).Build()
	if err != nil {
		t.Fatal(err)
	}

	res := r.Match("GET", "/foo/baz", "")
	if res.Failure != FailureNone || res.OpID != "B" {
		t.Fatalf("want B, got opID=%q failure=%v", res.OpID, res.Failure)
	}

	res2 := r.Match("GET", "/foo/xyz", "")
	if res2.Failure != FailureNone || res2.OpID != "A" {
		t.Fatalf("want A, got opID=%q failure=%v", res2.OpID, res2.Failure)
	}
	if res2.Labels["bar"][0] != "xyz" {
		t.Fatalf("bar label = %v, want xyz", res2.Labels["bar"])
	}
}

func TestGreedyLabelConsumesRemainder(t *testing.T) {
	p := mustPattern(t, "GET", "/static/{path+}", "Static")
	r, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := r.Match("GET", "/static/a/b/c", "")
	if res.Failure != FailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if res.Labels["path"][0] != "a/b/c" {
		t.Fatalf("path label = %v, want a/b/c", res.Labels["path"])
	}
}

func TestEquivalentConflictFailsBuild(t *testing.T) {
	a := mustPattern(t, "GET", "/x/{a}", "A")
	b := mustPattern(t, "GET", "/x/{b}", "B")
	_, err := NewBuilder(false).Register(a).Register(b).Build()
	if err == nil {
		t.Fatalf("expected equivalent-conflict build failure")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	p := mustPattern(t, "GET", "/widgets/{id}", "GetWidget")
	r, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := r.Match("DELETE", "/widgets/1", "")
	if res.Failure != FailureMethodNotAllowed {
		t.Fatalf("got %v, want FailureMethodNotAllowed", res.Failure)
	}
}

func TestNoMatch(t *testing.T) {
	p := mustPattern(t, "GET", "/widgets/{id}", "GetWidget")
	r, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := r.Match("GET", "/gadgets/1", "")
	if res.Failure != FailureNoMatch {
		t.Fatalf("got %v, want FailureNoMatch", res.Failure)
	}
}

func TestConsecutiveSlashesRejectedUnlessOptedIn(t *testing.T) {
	p := mustPattern(t, "GET", "/a/{b}", "AB")
	strict, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := strict.Match("GET", "/a//b", "")
	if res.Failure != FailureNoMatch {
		t.Fatalf("strict router: got %v, want FailureNoMatch for consecutive slashes", res.Failure)
	}
}

func TestQueryRequiredLiteralAndCapture(t *testing.T) {
	qp := NewQueryPattern()
	qp.Required["action"] = "list"
	qp.Captures["cursor"] = "cursor"

	p := mustPattern(t, "GET", "/items", "ListItems")
	p.Query = qp
	r, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}

	res := r.Match("GET", "/items", "action=list&cursor=abc")
	if res.Failure != FailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
	if res.Labels["cursor"][0] != "abc" {
		t.Fatalf("cursor = %v, want abc", res.Labels["cursor"])
	}

	res2 := r.Match("GET", "/items", "action=delete&cursor=abc")
	if res2.Failure != FailureBadQuery {
		t.Fatalf("expected FailureBadQuery, got %v", res2.Failure)
	}
}

func TestValuelessQueryParamIsEmptyString(t *testing.T) {
	qp := NewQueryPattern()
	qp.Required["x"] = ""
	p := mustPattern(t, "GET", "/flag", "Flag")
	p.Query = qp
	r, err := NewBuilder(false).Register(p).Build()
	if err != nil {
		t.Fatal(err)
	}
	res := r.Match("GET", "/flag", "x")
	if res.Failure != FailureNone {
		t.Fatalf("unexpected failure %v", res.Failure)
	}
}

func TestDuplicateLabelNameRejected(t *testing.T) {
	if _, err := ParsePattern("GET", "/a/{x}/{x}"); err == nil {
		t.Fatalf("expected duplicate label name error")
	}
}

func TestGreedyLabelMustBeLast(t *testing.T) {
	if _, err := ParsePattern("GET", "/a/{x+}/b"); err == nil {
		t.Fatalf("expected greedy-label-must-be-last error")
	}
}
