package stream

import (
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/modelbridge/rtcore/rterrors"
)

// compressedStream wraps an underlying DataStream, transparently
// deflating its bytes on ToBuffer/ToIterator/Subscribe. Content length is
// always reported as unknown since the compressed size cannot be derived
// from the source's declared length.
type compressedStream struct {
	underlying DataStream
}

// OfCompressed returns a DataStream that deflates underlying's bytes using
// klauspost/compress/flate, for callers that want to shrink a body before
// handing it to the transport (e.g. a large event-stream payload).
func OfCompressed(underlying DataStream) DataStream {
	return &compressedStream{underlying: underlying}
}

func (c *compressedStream) ContentLength() int64 { return UnknownLength }
func (c *compressedStream) ContentType() string  { return c.underlying.ContentType() }
func (c *compressedStream) IsReplayable() bool   { return c.underlying.IsReplayable() }

func (c *compressedStream) ToBuffer(ctx context.Context) ([]byte, error) {
	raw, err := c.underlying.ToBuffer(ctx)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "stream: construct deflate writer")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "stream: deflate write")
	}
	if err := w.Close(); err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "stream: deflate close")
	}
	return out.Bytes(), nil
}

func (c *compressedStream) ToIterator() (Iterator, error) {
	buf, err := c.ToBuffer(context.Background())
	if err != nil {
		return nil, err
	}
	return &singleChunkIterator{chunk: buf}, nil
}

func (c *compressedStream) Subscribe(sub Subscriber) {
	buf, err := c.ToBuffer(context.Background())
	if err != nil {
		sub.OnSubscribe(&Subscription{requests: make(chan int64), cancel: make(chan struct{})})
		sub.OnError(err)
		return
	}
	publishChunks(sub, [][]byte{buf}, nil)
}

// Decompress reverses OfCompressed, returning a plain byte DataStream.
func Decompress(r io.Reader, contentType string) (DataStream, error) {
	fr := flate.NewReader(r)
	defer fr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, fr); err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "stream: inflate")
	}
	return OfBytes(out.Bytes(), contentType), nil
}
