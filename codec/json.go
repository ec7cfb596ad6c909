package codec

import (
	"encoding/json"
	"io"

	"github.com/tidwall/gjson"

	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
)

// JSON is the reference document codec used by tests and by the example
// server. Structures serialize as JSON objects keyed by member name,
// honoring the jsonName trait when a member carries one.
type JSON struct{}

// ContentType implements Codec.
func (JSON) ContentType() string { return "application/json" }

// CreateSerializer implements Codec.
func (JSON) CreateSerializer(out io.Writer) ShapeSerializer {
	return &jsonSerializer{out: out}
}

// CreateDeserializer implements Codec.
func (JSON) CreateDeserializer(in io.Reader) ShapeDeserializer {
	return &jsonDeserializer{in: in}
}

type jsonSerializer struct {
	out io.Writer
}

func (s *jsonSerializer) Serialize(sc *schema.Schema, value any) error {
	doc := value
	if m, ok := value.(map[string]any); ok && sc != nil {
		doc = renameMembers(sc, m, wireName)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "codec: marshal %s", idOf(sc))
	}
	_, err = s.out.Write(data)
	return err
}

type jsonDeserializer struct {
	in io.Reader
}

func (d *jsonDeserializer) Deserialize(sc *schema.Schema) (any, error) {
	data, err := io.ReadAll(d.in)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "codec: read body")
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "codec: unmarshal %s", idOf(sc))
	}
	if m, ok := doc.(map[string]any); ok && sc != nil {
		doc = renameFromWire(sc, m)
	}
	return doc, nil
}

// wireName returns the member's on-wire key: its jsonName trait value if
// set, the member name otherwise.
func wireName(m *schema.Member) string {
	if raw, ok := m.GetDirectTrait(schema.TraitJSONName); ok {
		if name := gjson.ParseBytes(raw).String(); name != "" {
			return name
		}
	}
	return m.Name
}

func renameMembers(sc *schema.Schema, in map[string]any, rename func(*schema.Member) string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := k
		if m, ok := sc.Member(k); ok {
			key = rename(m)
		}
		out[key] = v
	}
	return out
}

func renameFromWire(sc *schema.Schema, in map[string]any) map[string]any {
	byWire := map[string]string{}
	for _, m := range sc.Members() {
		byWire[wireName(m)] = m.Name
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if name, ok := byWire[k]; ok {
			out[name] = v
			continue
		}
		out[k] = v
	}
	return out
}

func idOf(sc *schema.Schema) schema.Identifier {
	if sc == nil {
		return ""
	}
	return sc.ID()
}
