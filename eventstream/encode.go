package eventstream

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/modelbridge/rtcore/rterrors"
)

// Encode serializes msg to the bit-exact frame layout and returns the
// complete frame bytes.
func Encode(msg *Message) ([]byte, error) {
	headerBytes, err := encodeHeaders(msg.Headers)
	if err != nil {
		return nil, err
	}
	if len(headerBytes) > MaxHeadersLength {
		return nil, tooLargeErr("headersLength", int64(len(headerBytes)), MaxHeadersLength)
	}

	totalLen := preludeLength + len(headerBytes) + len(msg.Payload) + crcLength
	if totalLen > MaxTotalLength {
		return nil, tooLargeErr("totalLength", int64(totalLen), MaxTotalLength)
	}

	out := make([]byte, 0, totalLen)
	prelude := make([]byte, preludeLength)
	binary.BigEndian.PutUint32(prelude[0:4], uint32(totalLen))
	binary.BigEndian.PutUint32(prelude[4:8], uint32(len(headerBytes)))
	preludeCRC := crc32.ChecksumIEEE(prelude[0:8])
	binary.BigEndian.PutUint32(prelude[8:12], preludeCRC)

	out = append(out, prelude...)
	out = append(out, headerBytes...)
	out = append(out, msg.Payload...)

	messageCRC := crc32.ChecksumIEEE(out)
	crcBuf := make([]byte, crcLength)
	binary.BigEndian.PutUint32(crcBuf, messageCRC)
	out = append(out, crcBuf...)

	return out, nil
}

func encodeHeaders(headers []Header) ([]byte, error) {
	var out []byte
	for _, h := range headers {
		if len(h.Name) > 255 {
			return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultClient, "eventstream: header name %q exceeds 255 bytes", h.Name)
		}
		out = append(out, byte(len(h.Name)))
		out = append(out, h.Name...)
		out = append(out, byte(h.Value.Type))

		switch h.Value.Type {
		case HeaderTypeBoolTrue, HeaderTypeBoolFalse:
			// no value bytes
		case HeaderTypeByte:
			out = append(out, byte(h.Value.ByteVal))
		case HeaderTypeShort:
			buf := make([]byte, 2)
			binary.BigEndian.PutUint16(buf, uint16(h.Value.ShortVal))
			out = append(out, buf...)
		case HeaderTypeInteger:
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, uint32(h.Value.IntVal))
			out = append(out, buf...)
		case HeaderTypeLong:
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(h.Value.LongVal))
			out = append(out, buf...)
		case HeaderTypeBytes:
			if len(h.Value.BytesVal) > 0xFFFF {
				return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultClient, "eventstream: header %q bytes value too long", h.Name)
			}
			lenBuf := make([]byte, 2)
			binary.BigEndian.PutUint16(lenBuf, uint16(len(h.Value.BytesVal)))
			out = append(out, lenBuf...)
			out = append(out, h.Value.BytesVal...)
		case HeaderTypeString:
			if len(h.Value.StringVal) > 0xFFFF {
				return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultClient, "eventstream: header %q string value too long", h.Name)
			}
			lenBuf := make([]byte, 2)
			binary.BigEndian.PutUint16(lenBuf, uint16(len(h.Value.StringVal)))
			out = append(out, lenBuf...)
			out = append(out, h.Value.StringVal...)
		case HeaderTypeTimestamp:
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(timeToMs(h.Value.TimeVal)))
			out = append(out, buf...)
		case HeaderTypeUUID:
			out = append(out, h.Value.UUIDVal[:]...)
		default:
			return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultClient, "eventstream: unknown header type %d", h.Value.Type)
		}
	}
	return out, nil
}

// NewEvent builds a Message for an outgoing event frame: :message-type =
// "event", :event-type = eventName (the union arm's member name), plus
// :content-type and the caller's extra headers.
func NewEvent(eventName, contentType string, payload []byte, extra ...Header) *Message {
	headers := []Header{
		{Name: HeaderMessageType, Value: StringValue(string(MessageTypeEvent))},
		{Name: HeaderEventType, Value: StringValue(eventName)},
		{Name: HeaderContentType, Value: StringValue(contentType)},
	}
	headers = append(headers, extra...)
	return &Message{Headers: headers, Payload: payload}
}

// NewModeledException builds a Message for a modeled exception frame:
// :message-type = "exception", :exception-type = the exception's member
// name in the event-stream union.
func NewModeledException(exceptionName, contentType string, payload []byte) *Message {
	return &Message{
		Headers: []Header{
			{Name: HeaderMessageType, Value: StringValue(string(MessageTypeException))},
			{Name: HeaderExceptionType, Value: StringValue(exceptionName)},
			{Name: HeaderContentType, Value: StringValue(contentType)},
		},
		Payload: payload,
	}
}

// NewFramingError builds a Message for an unmodeled "error" frame
// carrying errorCode/errorMessage.
func NewFramingError(code, message string) *Message {
	return &Message{
		Headers: []Header{
			{Name: HeaderMessageType, Value: StringValue(string(MessageTypeError))},
			{Name: HeaderErrorCode, Value: StringValue(code)},
			{Name: HeaderErrorMessage, Value: StringValue(message)},
		},
	}
}
