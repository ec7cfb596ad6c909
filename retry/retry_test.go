package retry

import (
	"testing"
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

func TestStandardAttemptBound(t *testing.T) {
	s := NewStandard(StandardConfig{MaxAttempts: 3})
	token, delay, err := s.AcquireInitialToken("svc")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if delay != 0 {
		t.Fatalf("initial delay = %v, want 0", delay)
	}

	lastErr := rterrors.New(rterrors.KindCallServer5xx, rterrors.FaultServer, "boom")
	refreshes := 0
	for {
		next, _, err := s.RefreshRetryToken(token, lastErr, 0)
		if err != nil {
			re, ok := rterrors.As(err)
			if !ok || re.Kind != rterrors.KindRetryExhausted {
				t.Fatalf("refresh error = %v, want Retry/Exhausted", err)
			}
			break
		}
		refreshes++
		token = next
	}
	// maxAttempts=3 admits exactly attempts-1 = 2 refreshes.
	if refreshes != 2 {
		t.Fatalf("refreshes = %d, want 2", refreshes)
	}
}

func TestStandardServerDelayHintWins(t *testing.T) {
	s := NewStandard(StandardConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	token, _, _ := s.AcquireInitialToken("svc")

	throttled := &rterrors.Error{Kind: rterrors.KindCallClient4xx, Fault: rterrors.FaultClient, Throttle: true}
	_, delay, err := s.RefreshRetryToken(token, throttled, 2*time.Second)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if delay < 2*time.Second {
		t.Fatalf("delay = %v, want >= 2s (server hint)", delay)
	}
}

func TestStandardRejectsForeignToken(t *testing.T) {
	a := NewStandard(StandardConfig{})
	b := NewStandard(StandardConfig{})
	token, _, _ := a.AcquireInitialToken("svc")

	_, _, err := b.RefreshRetryToken(token, nil, 0)
	re, ok := rterrors.As(err)
	if !ok || re.Kind != rterrors.KindRetryAcquisition {
		t.Fatalf("foreign token error = %v, want Retry/Acquisition", err)
	}
}

func TestBackoffCapped(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoff(100*time.Millisecond, time.Second, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("backoff(attempt=%d) = %v, want (0, 1s]", attempt, d)
		}
	}
}
