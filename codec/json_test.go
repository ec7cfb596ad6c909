package codec

import (
	"bytes"
	"testing"

	"github.com/modelbridge/rtcore/schema"
)

func widgetSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder("example#Widget", schema.KindStructure).
		AddMember("widgetId", "smithy.api#String").
		SetMemberTrait(schema.TraitJSONName, []byte(`"id"`)).
		AddMember("count", "smithy.api#Integer").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJSONRoundTripHonorsJSONName(t *testing.T) {
	s := widgetSchema(t)
	var buf bytes.Buffer
	err := JSON{}.CreateSerializer(&buf).Serialize(s, map[string]any{
		"widgetId": "w-1",
		"count":    float64(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"id":"w-1"`)) {
		t.Fatalf("wire form missing renamed member: %s", buf.String())
	}

	doc, err := JSON{}.CreateDeserializer(&buf).Deserialize(s)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		t.Fatalf("deserialized %T, want map", doc)
	}
	if m["widgetId"] != "w-1" || m["count"] != float64(3) {
		t.Fatalf("round trip mismatch: %v", m)
	}
}

func TestJSONDeserializeEmptyBody(t *testing.T) {
	doc, err := JSON{}.CreateDeserializer(bytes.NewReader(nil)).Deserialize(widgetSchema(t))
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := doc.(map[string]any); !ok || len(m) != 0 {
		t.Fatalf("empty body should yield empty document, got %v", doc)
	}
}
