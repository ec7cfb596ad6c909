package server

import (
	"bytes"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/modelbridge/rtcore/codec"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
	"github.com/modelbridge/rtcore/stream"
)

// Protocol supplies the request deserializer and response serializer the
// dispatcher composes around the registered handler. Concrete wire
// protocols plug in here; JSONProtocol below is the reference
// implementation.
type Protocol interface {
	ContentType() string
	// DeserializeRequest builds the typed input from the wire request: the
	// captured path/query labels, the header set, and the body stream.
	DeserializeRequest(op *schema.Schema, labels map[string][]string, headers http.Header, body stream.DataStream) (map[string]any, error)
	// SerializeOutput renders a success response; the status code comes
	// from the operation's success binding, defaulting to 200.
	SerializeOutput(op *schema.Schema, output map[string]any) (status int, body []byte, err error)
	// SerializeError renders a failure response per the error taxonomy.
	SerializeError(op *schema.Schema, rerr *rterrors.Error) (status int, body []byte)
}

// JSONProtocol is a minimal rest-json style protocol over the reference
// JSON codec: the body is the input structure, path labels and query
// captures overlay it member-by-member.
type JSONProtocol struct {
	Codec codec.JSON
}

// ContentType implements Protocol.
func (p JSONProtocol) ContentType() string { return p.Codec.ContentType() }

// DeserializeRequest implements Protocol.
func (p JSONProtocol) DeserializeRequest(op *schema.Schema, labels map[string][]string, headers http.Header, body stream.DataStream) (map[string]any, error) {
	input := map[string]any{}
	inputSchema := op.InputSchema()

	if body != nil {
		it, err := body.ToIterator()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		for {
			chunk, nerr := it.Next()
			if nerr != nil {
				break
			}
			buf.Write(chunk)
		}
		_ = it.Close()
		doc, err := p.Codec.CreateDeserializer(&buf).Deserialize(inputSchema)
		if err != nil {
			return nil, err
		}
		if m, ok := doc.(map[string]any); ok {
			input = m
		}
	}

	// Captured labels overlay the body: path labels bind single values,
	// query captures bind every value in order.
	for name, values := range labels {
		if len(values) == 0 {
			continue
		}
		if inputSchema != nil {
			if m, ok := inputSchema.Member(name); ok && m.HasDirectTrait(schema.TraitHTTPQuery) {
				all := make([]any, 0, len(values))
				for _, v := range values {
					all = append(all, v)
				}
				input[name] = all
				continue
			}
		}
		input[name] = values[0]
	}

	// Header bindings.
	if inputSchema != nil {
		for _, m := range inputSchema.Members() {
			raw, ok := m.GetDirectTrait(schema.TraitHTTPHeader)
			if !ok {
				continue
			}
			header := gjson.ParseBytes(raw).String()
			if v := headers.Get(header); v != "" {
				input[m.Name] = v
			}
		}
	}
	return input, nil
}

// SerializeOutput implements Protocol.
func (p JSONProtocol) SerializeOutput(op *schema.Schema, output map[string]any) (int, []byte, error) {
	status := successStatus(op)
	var buf bytes.Buffer
	if err := p.Codec.CreateSerializer(&buf).Serialize(op.OutputSchema(), output); err != nil {
		return 0, nil, err
	}
	return status, buf.Bytes(), nil
}

// SerializeError implements Protocol.
func (p JSONProtocol) SerializeError(op *schema.Schema, rerr *rterrors.Error) (int, []byte) {
	status := rerr.HTTPStatus
	if status == 0 {
		switch rerr.Fault {
		case rterrors.FaultClient:
			status = 400
		default:
			status = 500
		}
	}
	wireType := rerr.SchemaID
	if wireType == "" {
		wireType = string(rerr.Kind)
	}
	var buf bytes.Buffer
	_ = p.Codec.CreateSerializer(&buf).Serialize(nil, map[string]any{
		"__type":  wireType,
		"message": rerr.Message,
	})
	return status, buf.Bytes()
}

// successStatus reads the operation's http trait code, defaulting to 200.
func successStatus(op *schema.Schema) int {
	if raw, ok := op.GetTrait(schema.TraitHTTP); ok {
		if code := gjson.GetBytes(raw, "code").Int(); code > 0 {
			return int(code)
		}
	}
	return 200
}
