package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/stream"
)

// HTTPTransport is the reference Transport over net/http. The pipeline
// treats it as one plug point among many; nothing outside this file
// depends on net/http's error types.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client, defaulting to http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if req.Body != nil {
		it, err := req.Body.ToIterator()
		if err != nil {
			return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultClient, err, "transport: open request body")
		}
		body = &iteratorReader{it: it}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultClient, err, "transport: build request")
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && req.Body.ContentLength() >= 0 {
		httpReq.ContentLength = req.Body.ContentLength()
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, remapError(err)
	}

	length := stream.UnknownLength
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil && n >= 0 {
			length = n
		}
	}
	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       stream.OfInputSource(&bodyCloser{rc: resp.Body}, resp.Header.Get("Content-Type"), length),
	}, nil
}

// remapError translates a net/http failure into the nearest Transport/*
// taxonomy kind so nothing downstream depends on net/http error types.
func remapError(err error) *rterrors.Error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return rterrors.Wrap(rterrors.KindTransportSocketTimeout, rterrors.FaultUnknown, err, "transport: timeout")
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return rterrors.Wrap(rterrors.KindTransportSocketTimeout, rterrors.FaultUnknown, err, "transport: timeout")
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return rterrors.Wrap(rterrors.KindTransportTLS, rterrors.FaultClient, err, "transport: tls handshake")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return rterrors.Wrap(rterrors.KindTransportConnect, rterrors.FaultUnknown, err, "transport: connect")
	}
	if errors.Is(err, http.ErrSchemeMismatch) {
		return rterrors.Wrap(rterrors.KindTransportProtocol, rterrors.FaultClient, err, "transport: protocol")
	}
	return rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "transport: send")
}

// iteratorReader adapts a stream.Iterator to io.Reader for net/http.
type iteratorReader struct {
	it  stream.Iterator
	buf []byte
}

func (r *iteratorReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		chunk, err := r.it.Next()
		if err != nil {
			return 0, err
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// bodyCloser keeps the response body reader closable through the stream
// abstraction; the pipeline materializes or iterates it exactly once.
type bodyCloser struct {
	rc io.ReadCloser
}

func (b *bodyCloser) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err == io.EOF {
		_ = b.rc.Close()
	}
	return n, err
}
