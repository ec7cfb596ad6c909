// Package waiter implements the polling waiter engine: an operation is
// polled until an acceptor transitions the waiter into a terminal state,
// with exponential backoff clamped to the time remaining.
package waiter

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

// State is an acceptor's target state.
type State int

const (
	// Retry keeps polling after the backoff sleep.
	Retry State = iota
	// Success terminates the wait successfully.
	Success
	// Failure terminates the wait with a WaiterFailure error.
	Failure
)

// Matcher inspects one poll outcome. Exactly one of output/err is set per
// poll, mirroring the operation's success/error split; input is the
// original poll input.
type Matcher func(input, output map[string]any, err error) bool

// OutputMatcher matches on a successful poll's output.
func OutputMatcher(pred func(output map[string]any) bool) Matcher {
	return func(_, output map[string]any, err error) bool {
		return err == nil && output != nil && pred(output)
	}
}

// InputOutputMatcher matches on the input/output pair of a successful poll.
func InputOutputMatcher(pred func(input, output map[string]any) bool) Matcher {
	return func(input, output map[string]any, err error) bool {
		return err == nil && output != nil && pred(input, output)
	}
}

// SuccessMatcher matches any successful poll (success=true) or any failed
// poll (success=false), regardless of payload.
func SuccessMatcher(success bool) Matcher {
	return func(_, _ map[string]any, err error) bool {
		return (err == nil) == success
	}
}

// ErrorTypeMatcher matches a failed poll whose modeled error schema id
// equals name.
func ErrorTypeMatcher(name string) Matcher {
	return func(_, _ map[string]any, err error) bool {
		re, ok := rterrors.As(err)
		return ok && re.SchemaID == name
	}
}

// Acceptor pairs a matcher with the state it drives the waiter into.
type Acceptor struct {
	Matcher Matcher
	State   State
}

// Config tunes a Waiter's timing.
type Config struct {
	// MaxWait bounds total elapsed time. Defaults to 5 minutes.
	MaxWait time.Duration
	// BaseDelay is the first sleep's backoff unit. Defaults to 2s.
	BaseDelay time.Duration
	// MaxDelay caps a single sleep. Defaults to 2 minutes.
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWait <= 0 {
		c.MaxWait = 5 * time.Minute
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Minute
	}
	return c
}

// PollFunc issues one poll of the underlying operation.
type PollFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Waiter polls an operation until an acceptor reaches a terminal state.
type Waiter struct {
	poll      PollFunc
	acceptors []Acceptor
	cfg       Config

	// clock and sleep are swapped in tests.
	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Waiter polling via poll and deciding via acceptors, in
// declaration order.
func New(poll PollFunc, acceptors []Acceptor, cfg Config) *Waiter {
	w := &Waiter{poll: poll, acceptors: acceptors, cfg: cfg.withDefaults(), clock: time.Now}
	w.sleep = func(ctx context.Context, d time.Duration) error {
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
	return w
}

// Wait runs the poll/match/sleep loop, returning the final poll's output
// on success.
func (w *Waiter) Wait(ctx context.Context, input map[string]any) (map[string]any, error) {
	start := w.clock()
	attempt := 0
	for {
		attempt++
		output, pollErr := w.poll(ctx, input)

		matched := false
		var state State
		for _, a := range w.acceptors {
			if a.Matcher(input, output, pollErr) {
				matched = true
				state = a.State
				break
			}
		}

		elapsed := w.clock().Sub(start)
		switch {
		case matched && state == Success:
			return output, nil
		case matched && state == Failure:
			return nil, rterrors.New(rterrors.KindWaiterUnmatchedFailure, rterrors.FaultClient,
				"waiter: failure state reached on attempt %d after %s", attempt, elapsed)
		case !matched && pollErr != nil:
			return nil, pollErr
		}

		remaining := w.cfg.MaxWait - elapsed
		if remaining <= 0 {
			return nil, timeoutErr(attempt, elapsed)
		}
		delay := w.backoff(attempt, remaining)
		if delay >= remaining {
			return nil, timeoutErr(attempt, elapsed)
		}
		if err := w.sleep(ctx, delay); err != nil {
			return nil, rterrors.Wrap(rterrors.KindWaiterTimeout, rterrors.FaultClient, err,
				"waiter: cancelled on attempt %d", attempt)
		}
	}
}

func timeoutErr(attempt int, elapsed time.Duration) *rterrors.Error {
	return rterrors.New(rterrors.KindWaiterTimeout, rterrors.FaultClient,
		"waiter: exceeded max wait on attempt %d after %s", attempt, elapsed)
}

// backoff computes clamp(base * 2^(attempt-1) + jitter, 0, remaining),
// further capped by MaxDelay.
func (w *Waiter) backoff(attempt int, remaining time.Duration) time.Duration {
	d := w.cfg.BaseDelay << (attempt - 1)
	if d <= 0 || d > w.cfg.MaxDelay {
		d = w.cfg.MaxDelay
	}
	d += time.Duration(rand.Int64N(int64(w.cfg.BaseDelay)))
	if d > w.cfg.MaxDelay {
		d = w.cfg.MaxDelay
	}
	if d > remaining {
		d = remaining
	}
	return d
}
