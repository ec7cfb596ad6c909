package eventstream

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/modelbridge/rtcore/rterrors"
)

// decodeState names the decoder's state-machine stages.
type decodeState int

const (
	stateReadPrelude decodeState = iota
	stateValidatePreludeCRC
	stateReadHeaders
	stateReadPayload
	stateValidateMessageCRC
	stateEmit
)

// Decoder reads length-delimited event-stream messages one at a time from
// an underlying io.Reader, requesting exactly the bytes of one message
// per Decode call and never reading ahead, so the caller's upstream chunk
// consumption stays one frame behind delivery.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads and fully validates the next message, or returns io.EOF if
// the underlying reader is exhausted before any bytes of a new message
// arrive. A message is never emitted partially: Decode either returns a
// complete, CRC-verified Message or a non-nil error.
func (d *Decoder) Decode() (*Message, error) {
	state := stateReadPrelude

	prelude := make([]byte, preludeLength)
	if _, err := io.ReadFull(d.r, prelude); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, rterrors.Wrap(rterrors.KindFramingEventStream, rterrors.FaultUnknown, err, "eventstream: truncated prelude")
		}
		return nil, err
	}

	totalLen := binary.BigEndian.Uint32(prelude[0:4])
	headersLen := binary.BigEndian.Uint32(prelude[4:8])
	preludeCRC := binary.BigEndian.Uint32(prelude[8:12])

	state = stateValidatePreludeCRC
	if uint64(totalLen) > MaxTotalLength {
		return nil, tooLargeErr("totalLength", int64(totalLen), MaxTotalLength)
	}
	if uint64(headersLen) > MaxHeadersLength {
		return nil, tooLargeErr("headersLength", int64(headersLen), MaxHeadersLength)
	}
	if totalLen < preludeLength+crcLength || uint64(headersLen) > uint64(totalLen) {
		return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: invalid totalLength/headersLength combination")
	}
	if crc32.ChecksumIEEE(prelude[0:8]) != preludeCRC {
		return nil, crcMismatchErr("prelude")
	}

	state = stateReadHeaders
	payloadLen := int64(totalLen) - int64(headersLen) - int64(preludeLength) - int64(crcLength)
	if payloadLen < 0 {
		return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: negative payload length")
	}

	rest := make([]byte, int64(headersLen)+payloadLen+crcLength)
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return nil, rterrors.Wrap(rterrors.KindFramingEventStream, rterrors.FaultUnknown, err, "eventstream: truncated message body")
	}

	headerBytes := rest[:headersLen]
	payload := rest[headersLen : uint32(len(rest))-crcLength]
	wireCRC := binary.BigEndian.Uint32(rest[len(rest)-crcLength:])

	headers, err := decodeHeaders(headerBytes)
	if err != nil {
		return nil, err
	}

	state = stateReadPayload
	_ = state

	state = stateValidateMessageCRC
	full := make([]byte, 0, preludeLength+len(rest))
	full = append(full, prelude...)
	full = append(full, rest...)
	computed := crc32.ChecksumIEEE(full[:len(full)-crcLength])
	if computed != wireCRC {
		return nil, crcMismatchErr("message")
	}

	state = stateEmit
	_ = state
	return &Message{Headers: headers, Payload: payload}, nil
}

func decodeHeaders(buf []byte) ([]Header, error) {
	var headers []Header
	pos := 0
	for pos < len(buf) {
		if pos+1 > len(buf) {
			return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: truncated header name length")
		}
		nameLen := int(buf[pos])
		pos++
		if pos+nameLen > len(buf) {
			return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: truncated header name")
		}
		name := string(buf[pos : pos+nameLen])
		pos += nameLen

		if pos+1 > len(buf) {
			return nil, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: truncated header type")
		}
		typ := HeaderType(buf[pos])
		pos++

		value, n, err := decodeHeaderValue(typ, buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

func decodeHeaderValue(typ HeaderType, buf []byte) (HeaderValue, int, error) {
	switch typ {
	case HeaderTypeBoolTrue:
		return HeaderValue{Type: typ, BoolVal: true}, 0, nil
	case HeaderTypeBoolFalse:
		return HeaderValue{Type: typ}, 0, nil
	case HeaderTypeByte:
		if len(buf) < 1 {
			return HeaderValue{}, 0, shortHeaderErr("byte")
		}
		return HeaderValue{Type: typ, ByteVal: int8(buf[0])}, 1, nil
	case HeaderTypeShort:
		if len(buf) < 2 {
			return HeaderValue{}, 0, shortHeaderErr("short")
		}
		return HeaderValue{Type: typ, ShortVal: int16(binary.BigEndian.Uint16(buf))}, 2, nil
	case HeaderTypeInteger:
		if len(buf) < 4 {
			return HeaderValue{}, 0, shortHeaderErr("int")
		}
		return HeaderValue{Type: typ, IntVal: int32(binary.BigEndian.Uint32(buf))}, 4, nil
	case HeaderTypeLong:
		if len(buf) < 8 {
			return HeaderValue{}, 0, shortHeaderErr("long")
		}
		return HeaderValue{Type: typ, LongVal: int64(binary.BigEndian.Uint64(buf))}, 8, nil
	case HeaderTypeBytes:
		if len(buf) < 2 {
			return HeaderValue{}, 0, shortHeaderErr("bytes-len")
		}
		n := int(binary.BigEndian.Uint16(buf))
		if len(buf) < 2+n {
			return HeaderValue{}, 0, shortHeaderErr("bytes")
		}
		out := make([]byte, n)
		copy(out, buf[2:2+n])
		return HeaderValue{Type: typ, BytesVal: out}, 2 + n, nil
	case HeaderTypeString:
		if len(buf) < 2 {
			return HeaderValue{}, 0, shortHeaderErr("string-len")
		}
		n := int(binary.BigEndian.Uint16(buf))
		if len(buf) < 2+n {
			return HeaderValue{}, 0, shortHeaderErr("string")
		}
		return HeaderValue{Type: typ, StringVal: string(buf[2 : 2+n])}, 2 + n, nil
	case HeaderTypeTimestamp:
		if len(buf) < 8 {
			return HeaderValue{}, 0, shortHeaderErr("timestamp")
		}
		ms := int64(binary.BigEndian.Uint64(buf))
		return HeaderValue{Type: typ, TimeVal: msToTime(ms)}, 8, nil
	case HeaderTypeUUID:
		if len(buf) < 16 {
			return HeaderValue{}, 0, shortHeaderErr("uuid")
		}
		var id [16]byte
		copy(id[:], buf[:16])
		return HeaderValue{Type: typ, UUIDVal: id}, 16, nil
	default:
		return HeaderValue{}, 0, rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: unknown header type %d", typ)
	}
}

func shortHeaderErr(field string) error {
	return rterrors.New(rterrors.KindFramingEventStream, rterrors.FaultUnknown, "eventstream: truncated header value (%s)", field)
}
