package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modelbridge/rtcore/eventstream"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
)

const eventStreamContentType = "application/vnd.amazon.eventstream"

// StreamHandler serves an event-stream operation: it reads decoded
// incoming events from es.Events() (closed when the request body ends)
// and emits outgoing events via es.Send.
type StreamHandler func(ctx context.Context, rc *rtcontext.Context, input map[string]any, es *EventStream) error

// EventStream is the handler's view of one bidirectional event stream.
type EventStream struct {
	in  <-chan *eventstream.Message
	out chan *eventstream.Message
}

// Events returns the decoded incoming events, delivered in arrival order,
// one frame at a time.
func (s *EventStream) Events() <-chan *eventstream.Message {
	return s.in
}

// Send queues one outgoing event; frames are written in Send order.
func (s *EventStream) Send(ctx context.Context, msg *eventstream.Message) error {
	select {
	case s.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type keepAliveConfig struct {
	seconds int
}

// dispatchStream splices the request body through the event-stream codec,
// runs the handler, and forwards outgoing frames with a select loop:
// client disconnect, data, terminal error, and keep-alive heartbeats each
// get a case.
func (d *Dispatcher) dispatchStream(c *gin.Context, op *Operation, rc *rtcontext.Context, input map[string]any) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		d.writeError(c, op, rterrors.New(rterrors.KindCallServer5xx, rterrors.FaultServer, "InternalFailure"))
		return
	}

	in := make(chan *eventstream.Message)
	out := make(chan *eventstream.Message)
	errs := make(chan error, 1)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Decode incoming frames one at a time; the unbuffered channel defers
	// the next read until the previous frame has been consumed.
	var bodyReader io.Reader = c.Request.Body
	if bodyReader == nil {
		bodyReader = bytes.NewReader(nil)
	}

	go func() {
		defer close(in)
		dec := eventstream.NewDecoder(bodyReader)
		for {
			msg, err := dec.Decode()
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					d.logger.WithField("operation", op.Schema.ID()).WithField("error", err).Warn("event stream decode")
				}
				return
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(out)
		if err := op.StreamHandler(ctx, rc, input, &EventStream{in: in, out: out}); err != nil {
			errs <- err
		}
	}()

	status := successStatus(op.Schema)
	c.Writer.Header().Set("Content-Type", eventStreamContentType)
	c.Writer.WriteHeader(status)
	flusher.Flush()

	var keepAliveC <-chan time.Time
	if d.keepAlive.seconds > 0 {
		ticker := time.NewTicker(time.Duration(d.keepAlive.seconds) * time.Second)
		defer ticker.Stop()
		keepAliveC = ticker.C
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case msg, open := <-out:
			if !open {
				select {
				case err := <-errs:
					d.writeErrorFrame(c, flusher, err)
				default:
				}
				return
			}
			if !d.writeFrame(c, flusher, msg) {
				return
			}
		case err := <-errs:
			d.writeErrorFrame(c, flusher, err)
			return
		case <-keepAliveC:
			if !d.writeFrame(c, flusher, eventstream.NewEvent("keepalive", "", nil)) {
				return
			}
		}
	}
}

func (d *Dispatcher) writeFrame(c *gin.Context, flusher http.Flusher, msg *eventstream.Message) bool {
	frame, err := eventstream.Encode(msg)
	if err != nil {
		d.logger.WithField("error", err).Error("event stream encode")
		return false
	}
	if _, err := c.Writer.Write(frame); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// writeErrorFrame terminates the stream with an exception frame for
// modeled errors or an error frame for everything else, never exposing
// an internal cause.
func (d *Dispatcher) writeErrorFrame(c *gin.Context, flusher http.Flusher, err error) {
	rerr, ok := rterrors.As(err)
	if !ok {
		d.logger.WithField("error", err).Error("event stream handler failure")
		d.writeFrame(c, flusher, eventstream.NewFramingError("InternalFailure", "internal failure"))
		return
	}
	if rerr.Kind == rterrors.KindCallModeled && rerr.SchemaID != "" {
		payload, _ := json.Marshal(map[string]string{"message": rerr.Message})
		d.writeFrame(c, flusher, eventstream.NewModeledException(rerr.SchemaID, d.protocol.ContentType(), payload))
		return
	}
	d.writeFrame(c, flusher, eventstream.NewFramingError(string(rerr.Kind), rerr.Message))
}
