// Package codec defines the value codec plug point. Concrete
// wire formats (rest-json, rest-xml, rpc-v2-cbor) live outside the core;
// the pipeline and dispatcher use a Codec opaquely, keyed by Schema.
package codec

import (
	"io"

	"github.com/modelbridge/rtcore/schema"
)

// Codec creates serializers and deserializers for one wire format.
type Codec interface {
	CreateSerializer(out io.Writer) ShapeSerializer
	CreateDeserializer(in io.Reader) ShapeDeserializer
	ContentType() string
}

// ShapeSerializer writes one shape value, guided by its Schema. Values are
// document-typed: structures and maps are map[string]any keyed by member
// name, lists are []any, leaves are Go scalars.
type ShapeSerializer interface {
	Serialize(s *schema.Schema, value any) error
}

// ShapeDeserializer reads one shape value, guided by its Schema.
type ShapeDeserializer interface {
	Deserialize(s *schema.Schema) (any, error)
}
