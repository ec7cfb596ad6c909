// Package stream implements the data stream abstraction: a uniform
// interface over in-memory, file, publisher, or generic input-source
// bodies, carrying length/content-type metadata and a replayability
// flag, with both a materialize-to-buffer path and a backpressured
// Subscribe path.
package stream

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/modelbridge/rtcore/rterrors"
)

// UnknownLength is the sentinel ContentLength value meaning "unknown".
const UnknownLength int64 = -1

// Subscriber receives Chunks emitted by a DataStream's Subscribe producer
// under cooperative backpressure: the producer emits at most the
// cumulative count requested via Request.
type Subscriber interface {
	// OnSubscribe is called once, before any OnNext, with the Subscription
	// the subscriber uses to signal demand or cancel.
	OnSubscribe(sub *Subscription)
	// OnNext delivers one chunk of bytes.
	OnNext(chunk []byte)
	// OnError terminates the subscription with a failure.
	OnError(err error)
	// OnComplete terminates the subscription successfully.
	OnComplete()
}

// Subscription is the demand-signaling handle passed to a Subscriber.
type Subscription struct {
	requests chan int64
	cancel   chan struct{}
}

// Request signals willingness to receive up to n additional chunks.
func (s *Subscription) Request(n int64) {
	if n <= 0 {
		return
	}
	select {
	case s.requests <- n:
	case <-s.cancel:
	}
}

// Cancel terminates the subscription; no further OnNext/OnError/OnComplete
// calls are made once Cancel returns.
func (s *Subscription) Cancel() {
	select {
	case <-s.cancel:
	default:
		close(s.cancel)
	}
}

// DataStream is a lazy, possibly-infinite sequence of bytes with optional
// content-type and length metadata.
type DataStream interface {
	ContentLength() int64
	ContentType() string
	IsReplayable() bool
	ToBuffer(ctx context.Context) ([]byte, error)
	ToIterator() (Iterator, error)
	Subscribe(sub Subscriber)
}

// Iterator is a one-shot byte chunk iterator.
type Iterator interface {
	// Next returns the next chunk, or io.EOF when exhausted.
	Next() ([]byte, error)
	Close() error
}

// byteStream implements DataStream over an in-memory buffer. It is always
// replayable: ToIterator/Subscribe may be called any number of times.
type byteStream struct {
	buf         []byte
	contentType string
}

// OfBytes returns a DataStream backed by an in-memory buffer.
func OfBytes(buf []byte, contentType string) DataStream {
	return &byteStream{buf: buf, contentType: contentType}
}

func (b *byteStream) ContentLength() int64 { return int64(len(b.buf)) }
func (b *byteStream) ContentType() string  { return b.contentType }
func (b *byteStream) IsReplayable() bool   { return true }

func (b *byteStream) ToBuffer(ctx context.Context) ([]byte, error) {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

func (b *byteStream) ToIterator() (Iterator, error) {
	return &singleChunkIterator{chunk: b.buf}, nil
}

func (b *byteStream) Subscribe(sub Subscriber) {
	publishChunks(sub, [][]byte{b.buf}, nil)
}

type singleChunkIterator struct {
	chunk []byte
	done  bool
}

func (it *singleChunkIterator) Next() ([]byte, error) {
	if it.done {
		return nil, io.EOF
	}
	it.done = true
	return it.chunk, nil
}
func (it *singleChunkIterator) Close() error { return nil }

// fileStream implements DataStream over a file path. Files are always
// replayable: each ToIterator/Subscribe/ToBuffer call reopens the file.
type fileStream struct {
	path        string
	contentType string
	size        int64
}

// OfFile returns a DataStream backed by a file on disk.
func OfFile(path string, contentType string) (DataStream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "stream: stat %s", path)
	}
	return &fileStream{path: path, contentType: contentType, size: info.Size()}, nil
}

func (f *fileStream) ContentLength() int64 { return f.size }
func (f *fileStream) ContentType() string  { return f.contentType }
func (f *fileStream) IsReplayable() bool   { return true }

func (f *fileStream) ToBuffer(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "stream: read %s", f.path)
	}
	return data, nil
}

func (f *fileStream) ToIterator() (Iterator, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "stream: open %s", f.path)
	}
	return &readerIterator{r: file, closer: file, chunkSize: 32 * 1024}, nil
}

func (f *fileStream) Subscribe(sub Subscriber) {
	it, err := f.ToIterator()
	if err != nil {
		sub.OnSubscribe(&Subscription{requests: make(chan int64), cancel: make(chan struct{})})
		sub.OnError(err)
		return
	}
	publishFromIterator(sub, it)
}

// readerIterator adapts an io.ReadCloser to Iterator, emitting fixed-size
// chunks.
type readerIterator struct {
	r         io.Reader
	closer    io.Closer
	chunkSize int
}

func (it *readerIterator) Next() ([]byte, error) {
	buf := make([]byte, it.chunkSize)
	n, err := it.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (it *readerIterator) Close() error {
	if it.closer != nil {
		return it.closer.Close()
	}
	return nil
}

// inputSourceStream implements DataStream over an arbitrary io.Reader. It
// is non-replayable unless the source also implements io.Seeker, in which
// case it is rewound to its starting offset on each new subscription.
type inputSourceStream struct {
	source      io.Reader
	contentType string
	length      int64
	seeker      io.Seeker
	startPos    int64
}

// OfInputSource returns a DataStream wrapping an arbitrary io.Reader.
// length is UnknownLength if not known in advance.
func OfInputSource(source io.Reader, contentType string, length int64) DataStream {
	s := &inputSourceStream{source: source, contentType: contentType, length: length}
	if seeker, ok := source.(io.Seeker); ok {
		if pos, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = seeker
			s.startPos = pos
		}
	}
	return s
}

func (s *inputSourceStream) ContentLength() int64 { return s.length }
func (s *inputSourceStream) ContentType() string  { return s.contentType }
func (s *inputSourceStream) IsReplayable() bool   { return s.seeker != nil }

// rewind seeks a seekable source back to its starting offset. For a
// non-seekable source it does nothing and returns nil: a second pass is
// not rejected and reads only what earlier passes left unread.
func (s *inputSourceStream) rewind() error {
	if s.seeker == nil {
		return nil
	}
	_, err := s.seeker.Seek(s.startPos, io.SeekStart)
	return err
}

func (s *inputSourceStream) ToBuffer(ctx context.Context) ([]byte, error) {
	if err := s.rewind(); err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "stream: rewind")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, s.source); err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "stream: read input source")
	}
	return buf.Bytes(), nil
}

func (s *inputSourceStream) ToIterator() (Iterator, error) {
	if err := s.rewind(); err != nil {
		return nil, rterrors.Wrap(rterrors.KindCallValidation, rterrors.FaultClient, err, "stream: rewind")
	}
	return &readerIterator{r: s.source, chunkSize: 32 * 1024}, nil
}

func (s *inputSourceStream) Subscribe(sub Subscriber) {
	if err := s.rewind(); err != nil {
		sub.OnSubscribe(&Subscription{requests: make(chan int64), cancel: make(chan struct{})})
		sub.OnError(err)
		return
	}
	publishFromIterator(sub, &readerIterator{r: s.source, chunkSize: 32 * 1024})
}

// Publisher produces chunks on demand; implementations of ofPublisher
// streams (e.g. an event-stream encoder, or a paginator's item feed) adapt
// to this shape.
type Publisher interface {
	// Produce is called with the requested demand and a done channel the
	// producer must select on to honor cancellation; it sends chunks on
	// out and closes out when finished (nil error) or sends a final error.
	Produce(ctx context.Context, demand <-chan int64, done <-chan struct{}, out chan<- []byte, errs chan<- error)
}

type publisherStream struct {
	pub         Publisher
	contentType string
	length      int64
}

// OfPublisher returns a DataStream backed by a Publisher; such streams are
// never replayable (a fresh Publisher must be constructed to replay).
func OfPublisher(pub Publisher, contentType string, length int64) DataStream {
	return &publisherStream{pub: pub, contentType: contentType, length: length}
}

func (p *publisherStream) ContentLength() int64 { return p.length }
func (p *publisherStream) ContentType() string  { return p.contentType }
func (p *publisherStream) IsReplayable() bool   { return false }

func (p *publisherStream) ToBuffer(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	collector := &collectingSubscriber{onChunk: func(c []byte) { buf.Write(c) }}
	p.Subscribe(collector)
	<-collector.done
	if collector.err != nil {
		return nil, collector.err
	}
	return buf.Bytes(), nil
}

func (p *publisherStream) ToIterator() (Iterator, error) {
	ch := make(chan []byte, 1)
	errCh := make(chan error, 1)
	doneCh := make(chan struct{})
	sub := &channelSubscriber{chunks: ch, errs: errCh, done: doneCh}
	p.Subscribe(sub)
	return &channelIterator{chunks: ch, errs: errCh, done: doneCh}, nil
}

func (p *publisherStream) Subscribe(sub Subscriber) {
	requests := make(chan int64, 8)
	cancel := make(chan struct{})
	subscription := &Subscription{requests: requests, cancel: cancel}
	sub.OnSubscribe(subscription)

	out := make(chan []byte)
	errs := make(chan error, 1)
	go p.pub.Produce(context.Background(), requests, cancel, out, errs)

	go func() {
		for {
			select {
			case chunk, ok := <-out:
				if !ok {
					select {
					case err := <-errs:
						if err != nil {
							sub.OnError(err)
							return
						}
					default:
					}
					sub.OnComplete()
					return
				}
				sub.OnNext(chunk)
			case err := <-errs:
				if err != nil {
					sub.OnError(err)
					return
				}
			case <-cancel:
				return
			}
		}
	}()
}

// publishChunks emits a fixed slice of chunks to sub honoring demand.
func publishChunks(sub Subscriber, chunks [][]byte, err error) {
	requests := make(chan int64, 8)
	cancel := make(chan struct{})
	sub.OnSubscribe(&Subscription{requests: requests, cancel: cancel})
	go func() {
		idx := 0
		var pending int64
		for idx < len(chunks) {
			select {
			case n := <-requests:
				pending += n
			case <-cancel:
				return
			}
			for pending > 0 && idx < len(chunks) {
				sub.OnNext(chunks[idx])
				idx++
				pending--
			}
		}
		if err != nil {
			sub.OnError(err)
			return
		}
		sub.OnComplete()
	}()
}

// publishFromIterator drains it and delivers chunks to sub honoring demand.
func publishFromIterator(sub Subscriber, it Iterator) {
	requests := make(chan int64, 8)
	cancel := make(chan struct{})
	sub.OnSubscribe(&Subscription{requests: requests, cancel: cancel})
	go func() {
		defer it.Close()
		var pending int64
		for {
			if pending == 0 {
				select {
				case n := <-requests:
					pending += n
				case <-cancel:
					return
				}
			}
			chunk, err := it.Next()
			if err != nil {
				if err == io.EOF {
					sub.OnComplete()
				} else {
					sub.OnError(err)
				}
				return
			}
			sub.OnNext(chunk)
			pending--
		}
	}()
}

// collectingSubscriber requests unbounded demand and calls onChunk for
// every chunk, used by ToBuffer to materialize a Publisher-backed stream.
type collectingSubscriber struct {
	onChunk func([]byte)
	done    chan struct{}
	err     error
}

func (c *collectingSubscriber) OnSubscribe(sub *Subscription) {
	c.done = make(chan struct{})
	sub.Request(1 << 30)
}
func (c *collectingSubscriber) OnNext(chunk []byte) { c.onChunk(chunk) }
func (c *collectingSubscriber) OnError(err error)   { c.err = err; close(c.done) }
func (c *collectingSubscriber) OnComplete()         { close(c.done) }

// channelSubscriber/channelIterator adapt Subscribe to a pull-based
// Iterator for ToIterator on publisher-backed streams.
type channelSubscriber struct {
	chunks chan []byte
	errs   chan error
	done   chan struct{}
	sub    *Subscription
}

func (c *channelSubscriber) OnSubscribe(sub *Subscription) {
	c.sub = sub
	sub.Request(1)
}
func (c *channelSubscriber) OnNext(chunk []byte) {
	c.chunks <- chunk
	c.sub.Request(1)
}
func (c *channelSubscriber) OnError(err error) {
	c.errs <- err
	close(c.done)
}
func (c *channelSubscriber) OnComplete() { close(c.done) }

type channelIterator struct {
	chunks chan []byte
	errs   chan error
	done   chan struct{}
}

func (it *channelIterator) Next() ([]byte, error) {
	select {
	case chunk := <-it.chunks:
		return chunk, nil
	case err := <-it.errs:
		return nil, err
	case <-it.done:
		select {
		case chunk := <-it.chunks:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	}
}

func (it *channelIterator) Close() error { return nil }
