package rtclient

import (
	"context"
	"strings"
	"time"

	"github.com/modelbridge/rtcore/identity"
	"github.com/modelbridge/rtcore/interceptor"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/transport"
)

// resolvedAuth is the scheme the pipeline selected for one call, with its
// resolved credential and signer properties.
type resolvedAuth struct {
	scheme *AuthScheme
	cred   *identity.Credential
	props  *rtcontext.Context
}

// Execute drives one operation call through the full pipeline and returns
// the typed output or a single structured error. readAfterExecution runs
// exactly once, success or failure.
func (c *Client) Execute(ctx context.Context, call *Call) (output any, err error) {
	hook := &interceptor.Hook{
		Ctx:   rtcontext.ModifiableCopy(c.ctx),
		Input: call.Input,
	}

	defer func() {
		hook.Output = output
		hook.Err = err
		if hookFail := c.interceptors.ReadAfterExecution(hook); hookFail != nil && err == nil {
			output, err = nil, hookFail
		}
	}()

	if hookFail := c.interceptors.ReadBeforeExecution(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyInputBeforeSerialization(hook); hookFail != nil {
		return nil, hookFail
	}
	injectIdempotencyTokens(call.Op, hook.Input)
	if hookFail := c.interceptors.ReadBeforeSerialization(hook); hookFail != nil {
		return nil, hookFail
	}

	auth, err := c.resolveAuth(ctx, call)
	if err != nil {
		return nil, err
	}

	endpoint, err := c.endpoint.ResolveEndpoint(ctx, call.Op, hook.Input)
	if err != nil {
		return nil, err
	}

	req, err := call.SerializeInput(ctx, hook.Input)
	if err != nil {
		return nil, err
	}
	applyEndpoint(req, endpoint)
	hook.Request = req
	if hookFail := c.interceptors.ReadAfterSerialization(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyRequestBeforeRetryLoop(hook); hookFail != nil {
		return nil, hookFail
	}

	return c.retryLoop(ctx, call, hook, auth)
}

// resolveAuth walks the resolver's priority-ordered options and picks the
// first whose scheme is registered and whose identity chain resolves; when
// none succeeds, the error concatenates every miss.
func (c *Client) resolveAuth(ctx context.Context, call *Call) (*resolvedAuth, error) {
	options := c.authResolver.ResolveAuthSchemes(ctx, call.Op)
	var misses []string
	for _, opt := range options {
		scheme, ok := c.schemes[opt.SchemeID]
		if !ok {
			misses = append(misses, opt.SchemeID+": scheme not registered")
			continue
		}
		if scheme.Identity == nil {
			return &resolvedAuth{scheme: scheme, props: opt.SignerProperties}, nil
		}
		cred, err := scheme.Identity.Resolve(ctx)
		if err != nil {
			misses = append(misses, opt.SchemeID+": "+err.Error())
			continue
		}
		return &resolvedAuth{scheme: scheme, cred: cred, props: opt.SignerProperties}, nil
	}
	return nil, rterrors.New(rterrors.KindIdentityNotFound, rterrors.FaultClient,
		"rtclient: no auth scheme usable for %s: %s", call.Op.ID(), strings.Join(misses, "; "))
}

// applyEndpoint grafts the resolved endpoint onto the serialized request:
// scheme and host come from the endpoint, endpoint headers merge in, and
// the endpoint path prefixes the operation path.
func applyEndpoint(req *transport.HTTPRequest, ep *Endpoint) {
	req.URL.Scheme = ep.URI.Scheme
	req.URL.Host = ep.URI.Host
	if basePath := strings.TrimSuffix(ep.URI.Path, "/"); basePath != "" {
		req.URL.Path = basePath + req.URL.Path
	}
	for k, vs := range ep.Headers {
		for _, v := range vs {
			req.Headers.Add(k, v)
		}
	}
}

// retryLoop acquires the initial token and runs attempts until success,
// a non-retryable failure, or the attempt budget runs out.
func (c *Client) retryLoop(ctx context.Context, call *Call, hook *interceptor.Hook, auth *resolvedAuth) (any, error) {
	scope := string(call.Op.ID())
	token, delay, err := c.retryer.AcquireInitialToken(scope)
	if err != nil {
		if _, ok := rterrors.As(err); ok {
			return nil, err
		}
		return nil, rterrors.Wrap(rterrors.KindRetryAcquisition, rterrors.FaultClient, err, "rtclient: acquire retry token")
	}
	if err := c.sleep(ctx, delay); err != nil {
		return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultClient, err, "rtclient: cancelled before first attempt")
	}

	baseReq := hook.Request
	attempt := 0
	for {
		attempt++
		if ctx.Err() != nil {
			return nil, rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultClient, ctx.Err(), "rtclient: cancelled")
		}

		_, callErr := c.attempt(ctx, call, hook, auth, baseReq)
		if callErr == nil {
			c.retryer.RecordSuccess(token)
			if hookFail := c.interceptors.ModifyOutputBeforeCompletion(hook); hookFail != nil {
				return nil, hookFail
			}
			return hook.Output, nil
		}

		lastErr, ok := rterrors.As(callErr)
		if !ok {
			return nil, callErr
		}
		if !lastErr.IsRetrySafe() {
			return nil, lastErr
		}
		if attempt >= c.retryer.MaxAttempts() {
			return nil, lastErr
		}

		nextToken, retryDelay, refreshErr := c.retryer.RefreshRetryToken(token, lastErr, lastErr.RetryAfter)
		if refreshErr != nil {
			// Exhausted budget surfaces the last call error, not the
			// strategy's bookkeeping failure.
			c.logger.WithField("error", refreshErr).Debugf("retry budget exhausted after attempt %d for %s", attempt, scope)
			return nil, lastErr
		}
		token = nextToken

		if lastErr.RetryAfter > retryDelay {
			retryDelay = lastErr.RetryAfter
		}
		if err := c.sleep(ctx, retryDelay); err != nil {
			return nil, lastErr
		}
	}
}

// attempt executes one SIGN -> TRANSMIT -> RECEIVE -> CLASSIFY round.
func (c *Client) attempt(ctx context.Context, call *Call, hook *interceptor.Hook, auth *resolvedAuth, baseReq *transport.HTTPRequest) (any, error) {
	hook.Request = baseReq.Clone()
	hook.Response = nil
	hook.Err = nil

	if hookFail := c.interceptors.ReadBeforeAttempt(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyRequestBeforeSigning(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ReadBeforeSigning(hook); hookFail != nil {
		return nil, hookFail
	}
	if err := auth.scheme.Signer.SignRequest(ctx, hook.Request, auth.cred, auth.props); err != nil {
		return nil, err
	}
	if hookFail := c.interceptors.ReadAfterSigning(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyRequestBeforeTransmit(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ReadBeforeTransmit(hook); hookFail != nil {
		return nil, hookFail
	}

	resp, sendErr := c.transport.Send(ctx, hook.Request)
	if sendErr != nil {
		terr := c.classifyTransportError(call, sendErr)
		hook.Err = terr
		if hookFail := c.interceptors.ReadAfterAttempt(hook); hookFail != nil {
			return nil, hookFail
		}
		return nil, terr
	}
	hook.Response = resp

	if hookFail := c.interceptors.ReadAfterTransmit(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyResponseBeforeDeserialization(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ReadResponseBeforeDeserialization(hook); hookFail != nil {
		return nil, hookFail
	}

	if hook.Response.StatusCode >= 400 {
		callErr := c.classifyResponseError(ctx, call, hook.Response)
		hook.Err = callErr
		if hookFail := c.interceptors.ReadAfterAttempt(hook); hookFail != nil {
			return nil, hookFail
		}
		return nil, callErr
	}

	output, err := call.DeserializeOutput(ctx, hook.Response)
	if err != nil {
		return nil, err
	}
	hook.Output = output
	if hookFail := c.interceptors.ReadAfterDeserialization(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ModifyOutputBeforeAttemptCompletion(hook); hookFail != nil {
		return nil, hookFail
	}
	if hookFail := c.interceptors.ReadAfterAttempt(hook); hookFail != nil {
		return nil, hookFail
	}
	return hook.Output, nil
}

// classifyTransportError upgrades a transport failure's retry safety from
// the operation's traits: reads and idempotent writes are safe to resend
// after a connection-level failure.
func (c *Client) classifyTransportError(call *Call, err error) *rterrors.Error {
	terr, ok := rterrors.As(err)
	if !ok {
		terr = rterrors.Wrap(rterrors.KindTransportGeneric, rterrors.FaultUnknown, err, "rtclient: transport failure")
	}
	if terr.RetrySafe == rterrors.RetrySafeNo || terr.RetrySafe == "" {
		terr.RetrySafe = rterrors.RetrySafeMaybe
	}
	applyOperationHints(call, terr)
	return terr
}

// classifyResponseError maps an error response to the taxonomy: the
// protocol's error deserializer first, generic status classification as
// the fallback, with model-derived retry hints applied on top.
func (c *Client) classifyResponseError(ctx context.Context, call *Call, resp *transport.HTTPResponse) *rterrors.Error {
	var callErr *rterrors.Error
	if call.DeserializeError != nil {
		callErr = call.DeserializeError(ctx, resp)
	}
	if callErr == nil {
		callErr = genericStatusError(resp.StatusCode)
	}
	if callErr.HTTPStatus == 0 {
		callErr.HTTPStatus = resp.StatusCode
	}
	if callErr.RetryAfter == 0 {
		callErr.RetryAfter = retryAfterHint(resp, c.clock)
	}
	applyOperationHints(call, callErr)
	return callErr
}

// genericStatusError is the classification used when no modeled error
// matches: 429 is a retryable throttle, other 4xx are terminal client
// faults, 5xx are retryable server faults.
func genericStatusError(status int) *rterrors.Error {
	switch {
	case status == 429:
		return &rterrors.Error{
			Kind:       rterrors.KindCallClient4xx,
			Fault:      rterrors.FaultClient,
			RetrySafe:  rterrors.RetrySafeYes,
			Throttle:   true,
			Message:    "throttled",
			HTTPStatus: status,
		}
	case status >= 500:
		return &rterrors.Error{
			Kind:       rterrors.KindCallServer5xx,
			Fault:      rterrors.FaultServer,
			RetrySafe:  rterrors.RetrySafeYes,
			Message:    "server error",
			HTTPStatus: status,
		}
	default:
		return &rterrors.Error{
			Kind:       rterrors.KindCallClient4xx,
			Fault:      rterrors.FaultClient,
			RetrySafe:  rterrors.RetrySafeNo,
			Message:    "client error",
			HTTPStatus: status,
		}
	}
}

// retryAfterHint parses a transport-level retry-after header: either
// delta-seconds or an HTTP date compared against the configured clock.
func retryAfterHint(resp *transport.HTTPResponse, clock func() time.Time) time.Duration {
	raw := resp.Headers.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := time.ParseDuration(raw + "s"); err == nil && secs >= 0 {
		return secs
	}
	if at, err := time.Parse(time.RFC1123, raw); err == nil {
		if d := at.Sub(clock()); d > 0 {
			return d
		}
	}
	return 0
}
