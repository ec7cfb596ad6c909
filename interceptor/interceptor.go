// Package interceptor implements the ordered hook chain wrapped around
// the client pipeline. Hooks return errors instead of panicking. modify*
// and readBefore* stages stop at the first error; readAfter* stages visit
// every interceptor and report the first error. The pipeline converts
// that error to a Pipeline/Interceptor failure.
package interceptor

import (
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/rterrors"
	"github.com/modelbridge/rtcore/transport"
)

// Hook carries the call state visible to interceptors at one stage. The
// pipeline owns the struct; modify* stages replace artifacts by returning
// new values, read* stages must not mutate anything they can reach.
type Hook struct {
	Ctx      *rtcontext.Context
	Input    any
	Output   any
	Request  *transport.HTTPRequest
	Response *transport.HTTPResponse
	Err      error
}

// Interceptor is one registered set of optional stage callbacks. A nil
// field skips the stage for this interceptor.
type Interceptor struct {
	Name string

	ReadBeforeExecution            func(*Hook) error
	ModifyInputBeforeSerialization func(*Hook) (any, error)
	ReadBeforeSerialization        func(*Hook) error
	ReadAfterSerialization         func(*Hook) error
	ModifyRequestBeforeRetryLoop   func(*Hook) (*transport.HTTPRequest, error)

	ReadBeforeAttempt                   func(*Hook) error
	ModifyRequestBeforeSigning          func(*Hook) (*transport.HTTPRequest, error)
	ReadBeforeSigning                   func(*Hook) error
	ReadAfterSigning                    func(*Hook) error
	ModifyRequestBeforeTransmit         func(*Hook) (*transport.HTTPRequest, error)
	ReadBeforeTransmit                  func(*Hook) error
	ReadAfterTransmit                   func(*Hook) error
	ModifyResponseBeforeDeserialization func(*Hook) (*transport.HTTPResponse, error)
	ReadResponseBeforeDeserialization   func(*Hook) error
	ReadAfterDeserialization            func(*Hook) error
	ModifyOutputBeforeAttemptCompletion func(*Hook) (any, error)
	ReadAfterAttempt                    func(*Hook) error

	ModifyOutputBeforeCompletion func(*Hook) (any, error)
	ReadAfterExecution           func(*Hook) error
}

// Chain is an ordered list of interceptors. modify*/readBefore* stages run
// in registration order; readAfter* stages run in reverse registration
// order at the same stage level.
type Chain struct {
	interceptors []*Interceptor
}

// NewChain returns a Chain over the given interceptors, in order.
func NewChain(interceptors ...*Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// Add appends an interceptor to the chain.
func (c *Chain) Add(i *Interceptor) {
	if i != nil {
		c.interceptors = append(c.interceptors, i)
	}
}

func hookErr(name string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := rterrors.As(err); ok {
		return err
	}
	return rterrors.Wrap(rterrors.KindPipelineInterceptor, rterrors.FaultClient, err, "interceptor %q", name)
}

// readForward runs a read* stage in registration order, stopping at the
// first error.
func (c *Chain) readForward(h *Hook, pick func(*Interceptor) func(*Hook) error) error {
	for _, i := range c.interceptors {
		fn := pick(i)
		if fn == nil {
			continue
		}
		if err := fn(h); err != nil {
			return hookErr(i.Name, err)
		}
	}
	return nil
}

// readReverse runs a readAfter* stage in reverse registration order. Every
// interceptor runs even if an earlier one fails; the first error wins.
func (c *Chain) readReverse(h *Hook, pick func(*Interceptor) func(*Hook) error) error {
	var first error
	for idx := len(c.interceptors) - 1; idx >= 0; idx-- {
		i := c.interceptors[idx]
		fn := pick(i)
		if fn == nil {
			continue
		}
		if err := fn(h); err != nil && first == nil {
			first = hookErr(i.Name, err)
		}
	}
	return first
}

func (c *Chain) ReadBeforeExecution(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadBeforeExecution })
}

func (c *Chain) ModifyInputBeforeSerialization(h *Hook) error {
	for _, i := range c.interceptors {
		if i.ModifyInputBeforeSerialization == nil {
			continue
		}
		input, err := i.ModifyInputBeforeSerialization(h)
		if err != nil {
			return hookErr(i.Name, err)
		}
		h.Input = input
	}
	return nil
}

func (c *Chain) ReadBeforeSerialization(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadBeforeSerialization })
}

func (c *Chain) ReadAfterSerialization(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterSerialization })
}

func (c *Chain) modifyRequest(h *Hook, pick func(*Interceptor) func(*Hook) (*transport.HTTPRequest, error)) error {
	for _, i := range c.interceptors {
		fn := pick(i)
		if fn == nil {
			continue
		}
		req, err := fn(h)
		if err != nil {
			return hookErr(i.Name, err)
		}
		h.Request = req
	}
	return nil
}

func (c *Chain) ModifyRequestBeforeRetryLoop(h *Hook) error {
	return c.modifyRequest(h, func(i *Interceptor) func(*Hook) (*transport.HTTPRequest, error) {
		return i.ModifyRequestBeforeRetryLoop
	})
}

func (c *Chain) ReadBeforeAttempt(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadBeforeAttempt })
}

func (c *Chain) ModifyRequestBeforeSigning(h *Hook) error {
	return c.modifyRequest(h, func(i *Interceptor) func(*Hook) (*transport.HTTPRequest, error) {
		return i.ModifyRequestBeforeSigning
	})
}

func (c *Chain) ReadBeforeSigning(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadBeforeSigning })
}

func (c *Chain) ReadAfterSigning(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterSigning })
}

func (c *Chain) ModifyRequestBeforeTransmit(h *Hook) error {
	return c.modifyRequest(h, func(i *Interceptor) func(*Hook) (*transport.HTTPRequest, error) {
		return i.ModifyRequestBeforeTransmit
	})
}

func (c *Chain) ReadBeforeTransmit(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadBeforeTransmit })
}

func (c *Chain) ReadAfterTransmit(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterTransmit })
}

func (c *Chain) ModifyResponseBeforeDeserialization(h *Hook) error {
	for _, i := range c.interceptors {
		if i.ModifyResponseBeforeDeserialization == nil {
			continue
		}
		resp, err := i.ModifyResponseBeforeDeserialization(h)
		if err != nil {
			return hookErr(i.Name, err)
		}
		h.Response = resp
	}
	return nil
}

func (c *Chain) ReadResponseBeforeDeserialization(h *Hook) error {
	return c.readForward(h, func(i *Interceptor) func(*Hook) error { return i.ReadResponseBeforeDeserialization })
}

func (c *Chain) ReadAfterDeserialization(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterDeserialization })
}

func (c *Chain) modifyOutput(h *Hook, pick func(*Interceptor) func(*Hook) (any, error)) error {
	for _, i := range c.interceptors {
		fn := pick(i)
		if fn == nil {
			continue
		}
		out, err := fn(h)
		if err != nil {
			return hookErr(i.Name, err)
		}
		h.Output = out
	}
	return nil
}

func (c *Chain) ModifyOutputBeforeAttemptCompletion(h *Hook) error {
	return c.modifyOutput(h, func(i *Interceptor) func(*Hook) (any, error) {
		return i.ModifyOutputBeforeAttemptCompletion
	})
}

func (c *Chain) ReadAfterAttempt(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterAttempt })
}

func (c *Chain) ModifyOutputBeforeCompletion(h *Hook) error {
	return c.modifyOutput(h, func(i *Interceptor) func(*Hook) (any, error) {
		return i.ModifyOutputBeforeCompletion
	})
}

// ReadAfterExecution runs for every interceptor regardless of earlier
// failures; the pipeline invokes it exactly once per call, success or not.
func (c *Chain) ReadAfterExecution(h *Hook) error {
	return c.readReverse(h, func(i *Interceptor) func(*Hook) error { return i.ReadAfterExecution })
}
