// Package retry implements the retry strategy plug point: opaque token
// acquisition, refresh with backoff guidance, and success recording,
// bounded by a total attempt count.
package retry

import (
	"math/rand/v2"
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

// Token is the opaque handle a Strategy mints for one call. Only the
// strategy that issued a token may consume it; the pipeline just carries
// it between attempts.
type Token interface {
	isRetryToken()
}

// Strategy coordinates the pipeline's retry loop.
type Strategy interface {
	// AcquireInitialToken admits a new call into the retry budget for the
	// given scope, returning the first attempt's token and a delay to wait
	// before that attempt (usually zero). Failure terminates the pipeline
	// before the first attempt.
	AcquireInitialToken(scope string) (Token, time.Duration, error)
	// RefreshRetryToken exchanges the previous attempt's token for the next
	// one after lastErr, honoring a server-supplied delay hint when given.
	// Failure means the pipeline surfaces lastErr.
	RefreshRetryToken(token Token, lastErr *rterrors.Error, serverDelay time.Duration) (Token, time.Duration, error)
	// RecordSuccess reports a successful attempt, optionally returning a
	// replacement token for continued budget tracking.
	RecordSuccess(token Token) Token
	// MaxAttempts is the total attempt bound, initial attempt included.
	MaxAttempts() int
}

// StandardConfig configures the Standard strategy.
type StandardConfig struct {
	// MaxAttempts bounds total attempts (initial + retries). Defaults to 3.
	MaxAttempts int
	// BaseDelay is the first retry's backoff unit. Defaults to 100ms.
	BaseDelay time.Duration
	// MaxDelay caps a single computed backoff. Defaults to 20s.
	MaxDelay time.Duration
	// ThrottleDelay replaces BaseDelay when the last error was a throttle.
	// Defaults to 500ms.
	ThrottleDelay time.Duration
}

func (c StandardConfig) withDefaults() StandardConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 20 * time.Second
	}
	if c.ThrottleDelay <= 0 {
		c.ThrottleDelay = 500 * time.Millisecond
	}
	return c
}

// Standard is the default Strategy: exponential backoff with full jitter,
// a throttle-aware base delay, and a hard attempt cap.
type Standard struct {
	cfg StandardConfig
}

// NewStandard returns a Standard strategy with cfg's zero fields defaulted.
func NewStandard(cfg StandardConfig) *Standard {
	return &Standard{cfg: cfg.withDefaults()}
}

type standardToken struct {
	issuer  *Standard
	scope   string
	attempt int // 1-based attempt this token admits
}

func (*standardToken) isRetryToken() {}

// AcquireInitialToken implements Strategy.
func (s *Standard) AcquireInitialToken(scope string) (Token, time.Duration, error) {
	return &standardToken{issuer: s, scope: scope, attempt: 1}, 0, nil
}

// RefreshRetryToken implements Strategy.
func (s *Standard) RefreshRetryToken(token Token, lastErr *rterrors.Error, serverDelay time.Duration) (Token, time.Duration, error) {
	t, ok := token.(*standardToken)
	if !ok || t.issuer != s {
		return nil, 0, rterrors.New(rterrors.KindRetryAcquisition, rterrors.FaultClient,
			"retry: token was not issued by this strategy")
	}
	if t.attempt >= s.cfg.MaxAttempts {
		return nil, 0, rterrors.New(rterrors.KindRetryExhausted, rterrors.FaultClient,
			"retry: %d attempts exhausted for scope %q", s.cfg.MaxAttempts, t.scope)
	}

	base := s.cfg.BaseDelay
	if lastErr != nil && lastErr.IsThrottle() {
		base = s.cfg.ThrottleDelay
	}
	delay := backoff(base, s.cfg.MaxDelay, t.attempt)
	if serverDelay > delay {
		delay = serverDelay
	}
	return &standardToken{issuer: s, scope: t.scope, attempt: t.attempt + 1}, delay, nil
}

// RecordSuccess implements Strategy.
func (s *Standard) RecordSuccess(token Token) Token {
	return token
}

// MaxAttempts implements Strategy.
func (s *Standard) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

// backoff computes base * 2^(attempt-1) with full jitter, capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(rand.Int64N(int64(d)) + 1)
}
