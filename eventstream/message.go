// Package eventstream implements the bit-exact event-stream framing
// codec: the prelude/headers/payload/CRC32 wire layout, a staged decode
// state machine, and an encoder producing the identical layout. The
// decoder consumes one frame at a time and never reads ahead of the
// frame it is delivering.
package eventstream

import (
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

const (
	// MaxTotalLength bounds a single message's on-wire size, enforced
	// before any allocation sized from the prelude.
	MaxTotalLength = 16 * 1024 * 1024
	// MaxHeadersLength bounds the encoded headers block.
	MaxHeadersLength = 128 * 1024

	preludeLength = 12
	crcLength     = 4
)

// HeaderType enumerates the wire type tags for header values.
type HeaderType byte

const (
	HeaderTypeBoolTrue  HeaderType = 0
	HeaderTypeBoolFalse HeaderType = 1
	HeaderTypeByte      HeaderType = 2
	HeaderTypeShort     HeaderType = 3
	HeaderTypeInteger   HeaderType = 4
	HeaderTypeLong      HeaderType = 5
	HeaderTypeBytes     HeaderType = 6
	HeaderTypeString    HeaderType = 7
	HeaderTypeTimestamp HeaderType = 8
	HeaderTypeUUID      HeaderType = 9
)

// Special header names reserved by the framing protocol.
const (
	HeaderMessageType   = ":message-type"
	HeaderEventType     = ":event-type"
	HeaderExceptionType = ":exception-type"
	HeaderContentType   = ":content-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"
)

// MessageType is the value of the reserved :message-type header.
type MessageType string

const (
	MessageTypeEvent     MessageType = "event"
	MessageTypeException MessageType = "exception"
	MessageTypeError     MessageType = "error"
)

// HeaderValue is a tagged-variant header value; Type selects which field
// is meaningful, keeping type assertions out of the codec.
type HeaderValue struct {
	Type      HeaderType
	BoolVal   bool
	ByteVal   int8
	ShortVal  int16
	IntVal    int32
	LongVal   int64
	BytesVal  []byte
	StringVal string
	TimeVal   time.Time
	UUIDVal   [16]byte
}

func BoolValue(b bool) HeaderValue {
	if b {
		return HeaderValue{Type: HeaderTypeBoolTrue, BoolVal: true}
	}
	return HeaderValue{Type: HeaderTypeBoolFalse}
}
func ByteValue(v int8) HeaderValue      { return HeaderValue{Type: HeaderTypeByte, ByteVal: v} }
func ShortValue(v int16) HeaderValue    { return HeaderValue{Type: HeaderTypeShort, ShortVal: v} }
func IntValue(v int32) HeaderValue      { return HeaderValue{Type: HeaderTypeInteger, IntVal: v} }
func LongValue(v int64) HeaderValue     { return HeaderValue{Type: HeaderTypeLong, LongVal: v} }
func BytesValue(v []byte) HeaderValue   { return HeaderValue{Type: HeaderTypeBytes, BytesVal: v} }
func StringValue(v string) HeaderValue  { return HeaderValue{Type: HeaderTypeString, StringVal: v} }
func TimestampValue(t time.Time) HeaderValue {
	return HeaderValue{Type: HeaderTypeTimestamp, TimeVal: t}
}
func UUIDValue(v [16]byte) HeaderValue { return HeaderValue{Type: HeaderTypeUUID, UUIDVal: v} }

// Message is one decoded or to-be-encoded event-stream frame: ordered
// headers (duplicate names overwrite earlier values) plus a payload.
type Message struct {
	Headers []Header
	Payload []byte
}

// Header is one name/value pair; Message.Headers preserves wire order.
type Header struct {
	Name  string
	Value HeaderValue
}

// Get returns the first-to-last-overwritten value of the named header.
func (m *Message) Get(name string) (HeaderValue, bool) {
	var found HeaderValue
	ok := false
	for _, h := range m.Headers {
		if h.Name == name {
			found = h.Value
			ok = true
		}
	}
	return found, ok
}

// GetString is a convenience accessor for string-typed headers.
func (m *Message) GetString(name string) (string, bool) {
	v, ok := m.Get(name)
	if !ok || v.Type != HeaderTypeString {
		return "", false
	}
	return v.StringVal, true
}

// MessageTypeOf returns the message's :message-type header value.
func (m *Message) MessageTypeOf() (MessageType, bool) {
	v, ok := m.GetString(HeaderMessageType)
	if !ok {
		return "", false
	}
	return MessageType(v), true
}

func tooLargeErr(field string, got, max int64) error {
	return rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultClient, "eventstream: %s %d exceeds max %d", field, got, max)
}

func crcMismatchErr(stage string) error {
	return rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: crc mismatch at %s", stage)
}
