package stream

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
)

func TestOfBytesMetadataAndReplay(t *testing.T) {
	s := OfBytes([]byte("hello"), "text/plain")
	if s.ContentLength() != 5 {
		t.Fatalf("ContentLength = %d, want 5", s.ContentLength())
	}
	if s.ContentType() != "text/plain" {
		t.Fatalf("ContentType = %q", s.ContentType())
	}
	if !s.IsReplayable() {
		t.Fatalf("byte stream must be replayable")
	}
	buf1, err := s.ToBuffer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := s.ToBuffer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf1, buf2) {
		t.Fatalf("replay produced different bytes")
	}
}

func TestOfInputSourceNonSeekableIsNotReplayable(t *testing.T) {
	r := bytes.NewBufferString("abc") // *bytes.Buffer is not an io.Seeker
	s := OfInputSource(io.NopCloser(r), "application/octet-stream", 3)
	if s.IsReplayable() {
		t.Fatalf("non-seekable input source must not be replayable")
	}
}

func TestOfInputSourceSeekableIsReplayable(t *testing.T) {
	r := bytes.NewReader([]byte("abcdef")) // *bytes.Reader implements io.Seeker
	s := OfInputSource(r, "application/octet-stream", 6)
	if !s.IsReplayable() {
		t.Fatalf("seekable input source must be replayable")
	}
	buf1, err := s.ToBuffer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := s.ToBuffer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf1, buf2) || string(buf1) != "abcdef" {
		t.Fatalf("rewind-replay mismatch: %q vs %q", buf1, buf2)
	}
}

// demandSubscriber requests chunks one at a time and records what it saw.
type demandSubscriber struct {
	mu        sync.Mutex
	chunks    [][]byte
	completed bool
	err       error
	done      chan struct{}
	maxChunks int
}

func newDemandSubscriber(maxChunks int) *demandSubscriber {
	return &demandSubscriber{done: make(chan struct{}), maxChunks: maxChunks}
}

func (d *demandSubscriber) OnSubscribe(sub *Subscription) {
	go func() {
		for i := 0; i < d.maxChunks; i++ {
			sub.Request(1)
		}
	}()
}

func (d *demandSubscriber) OnNext(chunk []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	d.chunks = append(d.chunks, cp)
}

func (d *demandSubscriber) OnError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	close(d.done)
}

func (d *demandSubscriber) OnComplete() {
	d.mu.Lock()
	d.completed = true
	d.mu.Unlock()
	close(d.done)
}

func TestSubscribeHonorsDemandAndCompletes(t *testing.T) {
	s := OfBytes([]byte("payload"), "application/octet-stream")
	sub := newDemandSubscriber(1)
	s.Subscribe(sub)
	<-sub.done

	if !sub.completed {
		t.Fatalf("expected OnComplete, err=%v", sub.err)
	}
	if len(sub.chunks) != 1 || string(sub.chunks[0]) != "payload" {
		t.Fatalf("unexpected chunks: %v", sub.chunks)
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s := OfFileChunksForTest(t)
	cancelled := make(chan struct{})
	sub := &cancelingSubscriber{cancelled: cancelled}
	s.Subscribe(sub)
	<-cancelled
}

// cancelingSubscriber cancels immediately on subscribe and must never see
// OnNext/OnComplete afterward.
type cancelingSubscriber struct {
	cancelled chan struct{}
}

func (c *cancelingSubscriber) OnSubscribe(sub *Subscription) {
	sub.Cancel()
	close(c.cancelled)
}
func (c *cancelingSubscriber) OnNext(chunk []byte) {}
func (c *cancelingSubscriber) OnError(err error)   {}
func (c *cancelingSubscriber) OnComplete()         {}

// OfFileChunksForTest returns a DataStream over a temp file, used only to
// exercise the file-backed Subscribe path without depending on test
// ordering against the filesystem elsewhere in the package.
func OfFileChunksForTest(t *testing.T) DataStream {
	t.Helper()
	path := t.TempDir() + "/data.bin"
	if err := writeFile(path, []byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	s, err := OfFile(path, "application/octet-stream")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
