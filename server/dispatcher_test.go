package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/modelbridge/rtcore/eventstream"
	"github.com/modelbridge/rtcore/router"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func buildOp(t *testing.T, id string, traits map[string]string) *schema.Schema {
	t.Helper()
	input, err := schema.NewBuilder(schema.Identifier(id+"Input"), schema.KindStructure).
		AddMember("id", "smithy.api#String").
		AddMember("note", "smithy.api#String").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	output, err := schema.NewBuilder(schema.Identifier(id+"Output"), schema.KindStructure).
		AddMember("id", "smithy.api#String").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	b := schema.NewBuilder(schema.Identifier(id), schema.KindOperation)
	for trait, value := range traits {
		b.SetTrait(trait, []byte(value))
	}
	op, err := b.AsOperation(input, output, nil, false).Build()
	if err != nil {
		t.Fatal(err)
	}
	return op
}

func serve(t *testing.T, d *Dispatcher, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	d.Engine().ServeHTTP(rec, req)
	return rec
}

func TestDispatchRoutesBySpecificity(t *testing.T) {
	var calls []string
	mkHandler := func(name string) Handler {
		return func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
			calls = append(calls, name)
			return map[string]any{"id": input["id"]}, nil
		}
	}
	d, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#GetThing", nil), Method: "GET", Path: "/foo/{id}", Handler: mkHandler("label")},
		&Operation{Schema: buildOp(t, "test#GetBaz", nil), Method: "GET", Path: "/foo/baz", Handler: mkHandler("literal")},
	)
	if err != nil {
		t.Fatal(err)
	}

	if rec := serve(t, d, "GET", "/foo/baz", nil); rec.Code != 200 {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec := serve(t, d, "GET", "/foo/xyz", nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["id"] != "xyz" {
		t.Fatalf("label not extracted: %v", out)
	}
	if strings.Join(calls, ",") != "literal,label" {
		t.Fatalf("calls = %v, want literal then label", calls)
	}
}

func TestDispatchFailureModes(t *testing.T) {
	handler := func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}
	d, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#Put", nil), Method: "PUT", Path: "/things/{id}", Handler: handler},
	)
	if err != nil {
		t.Fatal(err)
	}

	if rec := serve(t, d, "GET", "/nowhere", nil); rec.Code != 404 || rec.Body.Len() != 0 {
		t.Fatalf("unknown operation: status=%d body=%q, want empty 404", rec.Code, rec.Body.String())
	}
	if rec := serve(t, d, "POST", "/things/1", nil); rec.Code != 405 {
		t.Fatalf("method not allowed: status=%d, want 405", rec.Code)
	}
	rec := serve(t, d, "PUT", "/things/1", bytes.NewReader([]byte("{not json")))
	if rec.Code != 400 {
		t.Fatalf("malformed body: status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MalformedRequest") {
		t.Fatalf("malformed body response = %s", rec.Body.String())
	}
}

func TestConflictFailsAtBuild(t *testing.T) {
	handler := func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
		return nil, nil
	}
	_, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#A", nil), Method: "GET", Path: "/x/{a}", Handler: handler},
		&Operation{Schema: buildOp(t, "test#B", nil), Method: "GET", Path: "/x/{b}", Handler: handler},
	)
	if err == nil {
		t.Fatal("equivalent patterns must fail at build time")
	}
}

func TestModeledErrorStatusBinding(t *testing.T) {
	errSchema, err := schema.NewBuilder("test#ThrottledError", schema.KindStructure).
		SetTrait(schema.TraitError, []byte(`"client"`)).
		SetTrait(schema.TraitHTTPError, []byte(`429`)).
		SetTrait(schema.TraitRetryable, []byte(`{"throttling":true}`)).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	handler := func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
		return nil, NewModeledError(errSchema, "slow down")
	}
	d, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#Busy", nil), Method: "GET", Path: "/busy", Handler: handler},
	)
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(t, d, "GET", "/busy", nil)
	if rec.Code != 429 {
		t.Fatalf("status = %d, want httpError binding 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test#ThrottledError") {
		t.Fatalf("body = %s, want wire type", rec.Body.String())
	}
}

func TestUnknownHandlerErrorHidesCause(t *testing.T) {
	handler := func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
		return nil, io.ErrClosedPipe
	}
	d, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#Broken", nil), Method: "GET", Path: "/broken", Handler: handler},
	)
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(t, d, "GET", "/broken", nil)
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "closed pipe") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "InternalFailure") {
		t.Fatalf("body = %s, want InternalFailure", rec.Body.String())
	}
}

func TestQueryCaptureAndRequiredLiteral(t *testing.T) {
	var captured map[string]any
	handler := func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
		captured = input
		return map[string]any{}, nil
	}
	qp := router.NewQueryPattern()
	qp.Required["mode"] = "fast"
	d, err := New(Config{},
		&Operation{Schema: buildOp(t, "test#Search", nil), Method: "GET", Path: "/search/{id}", Query: qp, Handler: handler},
	)
	if err != nil {
		t.Fatal(err)
	}

	if rec := serve(t, d, "GET", "/search/s1?mode=fast", nil); rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if captured["id"] != "s1" {
		t.Fatalf("label missing from input: %v", captured)
	}
}

func TestEventStreamEcho(t *testing.T) {
	input, err := schema.NewBuilder("test#TalkInput", schema.KindStructure).Build()
	if err != nil {
		t.Fatal(err)
	}
	op, err := schema.NewBuilder("test#Talk", schema.KindOperation).
		AsOperation(input, nil, nil, true).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	streamHandler := func(ctx context.Context, rc *rtcontext.Context, in map[string]any, es *EventStream) error {
		for msg := range es.Events() {
			if name, _ := msg.GetString(":event-type"); name != "" {
				echo := eventstream.NewEvent(name, "application/json", msg.Payload)
				if err := es.Send(ctx, echo); err != nil {
					return err
				}
			}
		}
		return nil
	}
	d, err := New(Config{},
		&Operation{Schema: op, Method: "POST", Path: "/talk", StreamHandler: streamHandler},
	)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := eventstream.Encode(eventstream.NewEvent("Hello", "application/json", []byte(`{"m":1}`)))
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(t, d, "POST", "/talk", bytes.NewReader(frame))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != eventStreamContentType {
		t.Fatalf("content type = %q", got)
	}

	dec := eventstream.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	msg, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode echoed frame: %v", err)
	}
	if name, _ := msg.GetString(":event-type"); name != "Hello" {
		t.Fatalf("event type = %q", name)
	}
	if string(msg.Payload) != `{"m":1}` {
		t.Fatalf("payload = %s", msg.Payload)
	}
}
