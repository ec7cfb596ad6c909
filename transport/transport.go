// Package transport defines the wire transport abstraction of the client
// pipeline: a Transport sends an HTTPRequest and resolves to an
// HTTPResponse, with every failure remapped to the nearest Transport/*
// kind of the error taxonomy before surfacing.
package transport

import (
	"context"
	"net/http"
	"net/url"

	"github.com/modelbridge/rtcore/stream"
)

// HTTPRequest is the mutable request artifact threaded through the
// interceptor chain and finally handed to a Transport.
type HTTPRequest struct {
	Method  string
	URL     *url.URL
	Version string
	Headers http.Header
	Body    stream.DataStream
}

// Clone returns a shallow copy with an independent header map. The body
// stream is shared: streams are single-owner and cloning a request does
// not duplicate consumption rights.
func (r *HTTPRequest) Clone() *HTTPRequest {
	if r == nil {
		return nil
	}
	cp := *r
	if r.URL != nil {
		u := *r.URL
		cp.URL = &u
	}
	cp.Headers = r.Headers.Clone()
	return &cp
}

// HTTPResponse is the response artifact produced by a Transport.
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       stream.DataStream
}

// Transport sends one request and resolves to its response. Implementations
// must honor ctx cancellation and must return *rterrors.Error values of a
// Transport/* kind for every transport-level failure.
type Transport interface {
	Send(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}
