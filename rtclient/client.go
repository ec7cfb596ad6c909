// Package rtclient implements the client invocation pipeline: auth-scheme
// resolution, endpoint resolution, input serialization, the signed retry
// loop, transport dispatch, and typed output or error surfacing, with the
// interceptor chain wrapped around every stage.
package rtclient

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modelbridge/rtcore/interceptor"
	"github.com/modelbridge/rtcore/retry"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/schema"
	"github.com/modelbridge/rtcore/transport"
)

// Client drives modeled operation calls through the pipeline. Concurrent
// calls are independent; they share only the immutable configuration
// below, the signing cache inside the registered signers, and the retry
// strategy.
type Client struct {
	transport    transport.Transport
	schemes      map[string]*AuthScheme
	authResolver AuthSchemeResolver
	endpoint     EndpointResolver
	retryer      retry.Strategy
	interceptors *interceptor.Chain
	clock        func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	ctx          *rtcontext.Context
	logger       *log.Entry
}

// Option configures a Client at build time.
type Option func(*Client)

// WithTransport sets the wire transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithAuthScheme registers an auth scheme the pipeline may select.
func WithAuthScheme(s *AuthScheme) Option {
	return func(c *Client) { c.schemes[s.ID] = s }
}

// WithAuthSchemeResolver overrides the modeled auth scheme resolver.
func WithAuthSchemeResolver(r AuthSchemeResolver) Option {
	return func(c *Client) { c.authResolver = r }
}

// WithEndpointResolver sets the endpoint resolver.
func WithEndpointResolver(r EndpointResolver) Option {
	return func(c *Client) { c.endpoint = r }
}

// WithRetryStrategy sets the retry strategy shared by all calls.
func WithRetryStrategy(s retry.Strategy) Option {
	return func(c *Client) { c.retryer = s }
}

// WithInterceptor appends an interceptor to the chain in registration
// order.
func WithInterceptor(i *interceptor.Interceptor) Option {
	return func(c *Client) { c.interceptors.Add(i) }
}

// WithClock overrides the clock used for retry-after date arithmetic.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// WithContext seeds every call's context with the given client-level
// entries.
func WithContext(ctx *rtcontext.Context) Option {
	return func(c *Client) { c.ctx = ctx }
}

// New builds a Client. A transport and an endpoint resolver are required;
// everything else has a default.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		schemes:      map[string]*AuthScheme{},
		authResolver: ModeledAuthSchemeResolver{},
		retryer:      retry.NewStandard(retry.StandardConfig{}),
		interceptors: interceptor.NewChain(),
		clock:        time.Now,
		ctx:          rtcontext.New(),
		logger:       log.WithField("component", "rtclient"),
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "rtclient: a transport is required")
	}
	if c.endpoint == nil {
		return nil, rterrors.New(rterrors.KindCallValidation, rterrors.FaultClient, "rtclient: an endpoint resolver is required")
	}
	if _, ok := c.schemes[SchemeNone]; !ok {
		c.schemes[SchemeNone] = &AuthScheme{ID: SchemeNone, Signer: NoneSigner{}}
	}
	return c, nil
}

// Call describes one operation invocation: the operation schema, the typed
// input, and the protocol glue that turns input into a request and a
// response back into typed output or a modeled error.
type Call struct {
	Op    *schema.Schema
	Input any
	// Errors lists the operation's modeled error shapes, consulted for
	// retryable/throttling traits when classifying a modeled failure.
	Errors []*schema.Schema

	// SerializeInput builds the protocol request for the input. The request
	// URL is relative; the pipeline grafts the resolved endpoint onto it.
	SerializeInput func(ctx context.Context, input any) (*transport.HTTPRequest, error)
	// DeserializeOutput turns a success response into the typed output.
	DeserializeOutput func(ctx context.Context, resp *transport.HTTPResponse) (any, error)
	// DeserializeError turns an error response into a modeled error. It may
	// return nil to fall back to generic status classification.
	DeserializeError func(ctx context.Context, resp *transport.HTTPResponse) *rterrors.Error
}
