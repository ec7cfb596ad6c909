// Package server implements the server-side dispatcher: it composes the
// URI router, a wire protocol, and the registered handlers into one
// request -> response task hosted inside a gin engine. gin is the
// transport shell only; operation resolution is this module's
// specificity router.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/modelbridge/rtcore/internal/logging"
	"github.com/modelbridge/rtcore/router"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
	"github.com/modelbridge/rtcore/stream"
)

// RequestIDKey carries the request id in the per-request typed context.
var RequestIDKey = rtcontext.NewKey[string]("server.requestID")

// Handler is the user function registered for one modeled operation.
type Handler func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error)

// Operation binds a schema, its URI pattern, and a handler.
type Operation struct {
	Schema *schema.Schema
	// Method and Path define the URI pattern ("/things/{id}").
	Method string
	Path   string
	// Query optionally constrains/captures query parameters.
	Query *router.QueryPattern
	// Handler serves unary operations.
	Handler Handler
	// StreamHandler serves operations whose output is an event stream;
	// required when Schema.IsEventStream() is true.
	StreamHandler StreamHandler
}

// Dispatcher routes wire requests to registered operations.
type Dispatcher struct {
	router    *router.Router
	ops       map[string]*Operation
	protocol  Protocol
	keepAlive keepAliveConfig
	logger    *log.Entry
}

// Config configures a Dispatcher.
type Config struct {
	Protocol Protocol
	// AllowEmptyPathSegments opts consecutive-slash paths into matching.
	AllowEmptyPathSegments bool
	// StreamKeepAliveSeconds inserts heartbeat frames into idle event
	// streams; <= 0 disables them.
	StreamKeepAliveSeconds int
}

// New builds a Dispatcher over ops, failing fast on any URI pattern
// conflict: an ambiguous route set is a configuration bug.
func New(cfg Config, ops ...*Operation) (*Dispatcher, error) {
	if cfg.Protocol == nil {
		cfg.Protocol = JSONProtocol{}
	}
	d := &Dispatcher{
		ops:      make(map[string]*Operation, len(ops)),
		protocol: cfg.Protocol,
		keepAlive: keepAliveConfig{
			seconds: cfg.StreamKeepAliveSeconds,
		},
		logger: log.WithField("component", "dispatcher"),
	}

	builder := router.NewBuilder(cfg.AllowEmptyPathSegments)
	for _, op := range ops {
		opID := string(op.Schema.ID())
		if op.Schema.IsEventStream() && op.StreamHandler == nil {
			return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
				"server: event-stream operation %s needs a StreamHandler", opID)
		}
		if !op.Schema.IsEventStream() && op.Handler == nil {
			return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient,
				"server: operation %s needs a Handler", opID)
		}
		pattern, err := router.ParsePattern(op.Method, op.Path)
		if err != nil {
			return nil, err
		}
		pattern.OpID = opID
		pattern.Query = op.Query
		builder.Register(pattern)
		d.ops[opID] = op
	}
	r, err := builder.Build()
	if err != nil {
		return nil, err
	}
	d.router = r
	return d, nil
}

// Engine returns a gin engine hosting the dispatcher: recovery and access
// logging middleware, with every unmatched route handed to Dispatch.
func (d *Dispatcher) Engine() *gin.Engine {
	logging.Setup()
	engine := gin.New()
	engine.Use(logging.Recovery(), logging.AccessLogger())
	engine.NoRoute(d.Dispatch)
	return engine
}

// Dispatch serves one wire request: route, deserialize, invoke the
// handler, serialize the output or error.
func (d *Dispatcher) Dispatch(c *gin.Context) {
	match := d.router.Match(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
	switch match.Failure {
	case router.FailureNone:
	case router.FailureMethodNotAllowed:
		c.Status(http.StatusMethodNotAllowed)
		return
	case router.FailureBadQuery:
		d.writeError(c, nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "MalformedRequest"))
		return
	default:
		// UnknownOperation: 404, empty body.
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	op := d.ops[match.OpID]
	rc := rtcontext.New()
	rtcontext.Put(rc, RequestIDKey, logging.GinRequestID(c))

	var body stream.DataStream
	// An event-stream body is framed, not a JSON document: dispatchStream
	// reads it, so only the labels and headers are deserialized here.
	if c.Request.Body != nil && !op.Schema.IsEventStream() {
		body = stream.OfInputSource(c.Request.Body, c.ContentType(), c.Request.ContentLength)
	}
	input, err := d.protocol.DeserializeRequest(op.Schema, match.Labels, c.Request.Header, body)
	if err != nil {
		d.logger.WithField("request_id", logging.GinRequestID(c)).
			WithField("operation", match.OpID).
			WithField("error", err).Warn("malformed request")
		d.writeError(c, op, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "MalformedRequest"))
		return
	}

	if op.Schema.IsEventStream() {
		d.dispatchStream(c, op, rc, input)
		return
	}

	output, handlerErr := op.Handler(c.Request.Context(), rc, input)
	if handlerErr != nil {
		d.writeHandlerError(c, op, handlerErr)
		return
	}

	status, payload, serr := d.protocol.SerializeOutput(op.Schema, output)
	if serr != nil {
		d.logger.WithField("operation", match.OpID).WithField("error", serr).Error("serialize output")
		d.writeError(c, op, rterrors.New(rterrors.KindCallServer5xx, rterrors.FaultServer, "InternalFailure"))
		return
	}
	c.Data(status, d.protocol.ContentType(), payload)
}

// writeHandlerError maps a handler failure per the taxonomy: modeled
// errors keep their httpError binding, anything unrecognized becomes a
// 500 InternalFailure that never exposes its cause.
func (d *Dispatcher) writeHandlerError(c *gin.Context, op *Operation, err error) {
	rerr, ok := rterrors.As(err)
	if !ok {
		d.logger.WithField("operation", op.Schema.ID()).WithField("error", err).Error("handler failure")
		rerr = rterrors.New(rterrors.KindCallServer5xx, rterrors.FaultServer, "InternalFailure")
	}
	d.writeError(c, op, rerr)
}

func (d *Dispatcher) writeError(c *gin.Context, op *Operation, rerr *rterrors.Error) {
	var opSchema *schema.Schema
	if op != nil {
		opSchema = op.Schema
	}
	status, payload := d.protocol.SerializeError(opSchema, rerr)
	c.Data(status, d.protocol.ContentType(), payload)
}
