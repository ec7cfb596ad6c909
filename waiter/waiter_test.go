package waiter

import (
	"context"
	"testing"
	"time"

	"github.com/modelbridge/rtcore/rterrors"
)

func instantSleep(w *Waiter) []time.Duration {
	var slept []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return slept
}

func TestWaitSucceedsOnThirdPoll(t *testing.T) {
	outputs := []string{"A", "A", "B"}
	attempt := 0
	poll := func(ctx context.Context, input map[string]any) (map[string]any, error) {
		out := map[string]any{"state": outputs[attempt]}
		attempt++
		return out, nil
	}
	w := New(poll, []Acceptor{
		{Matcher: OutputMatcher(func(o map[string]any) bool { return o["state"] == "B" }), State: Success},
	}, Config{MaxWait: time.Minute, BaseDelay: time.Millisecond})
	instantSleep(w)

	out, err := w.Wait(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if attempt != 3 || out["state"] != "B" {
		t.Fatalf("attempt = %d, out = %v; want success on attempt 3", attempt, out)
	}
}

func TestAcceptorOrderIsDeclarationOrder(t *testing.T) {
	poll := func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"state": "done"}, nil
	}
	w := New(poll, []Acceptor{
		{Matcher: SuccessMatcher(true), State: Success},
		{Matcher: OutputMatcher(func(o map[string]any) bool { return o["state"] == "done" }), State: Failure},
	}, Config{MaxWait: time.Minute})
	instantSleep(w)

	if _, err := w.Wait(context.Background(), nil); err != nil {
		t.Fatalf("first acceptor should win: %v", err)
	}
}

func TestFailureStateSurfaces(t *testing.T) {
	poll := func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"state": "broken"}, nil
	}
	w := New(poll, []Acceptor{
		{Matcher: OutputMatcher(func(o map[string]any) bool { return o["state"] == "broken" }), State: Failure},
	}, Config{MaxWait: time.Minute})
	instantSleep(w)

	_, err := w.Wait(context.Background(), nil)
	re, ok := rterrors.As(err)
	if !ok || re.Kind != rterrors.KindWaiterUnmatchedFailure {
		t.Fatalf("error = %v, want waiter failure", err)
	}
}

func TestUnmatchedErrorRethrown(t *testing.T) {
	pollErr := rterrors.New(rterrors.KindCallModeled, rterrors.FaultClient, "modeled failure")
	pollErr.SchemaID = "test#Unexpected"
	poll := func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, pollErr
	}
	w := New(poll, []Acceptor{
		{Matcher: ErrorTypeMatcher("test#SomethingElse"), State: Retry},
	}, Config{MaxWait: time.Minute})
	instantSleep(w)

	_, err := w.Wait(context.Background(), nil)
	if err != pollErr {
		t.Fatalf("error = %v, want the poll error rethrown unchanged", err)
	}
}

func TestMatchedErrorTypeRetriesThenTimesOut(t *testing.T) {
	pollErr := rterrors.New(rterrors.KindCallModeled, rterrors.FaultClient, "not ready")
	pollErr.SchemaID = "test#NotReady"
	polls := 0
	poll := func(ctx context.Context, input map[string]any) (map[string]any, error) {
		polls++
		return nil, pollErr
	}

	now := time.Unix(0, 0)
	w := New(poll, []Acceptor{
		{Matcher: ErrorTypeMatcher("test#NotReady"), State: Retry},
	}, Config{MaxWait: 10 * time.Second, BaseDelay: time.Second, MaxDelay: 4 * time.Second})
	w.clock = func() time.Time { return now }
	w.sleep = func(ctx context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}

	_, err := w.Wait(context.Background(), nil)
	re, ok := rterrors.As(err)
	if !ok || re.Kind != rterrors.KindWaiterTimeout {
		t.Fatalf("error = %v, want Waiter/Timeout", err)
	}
	if polls < 2 {
		t.Fatalf("polls = %d, want retries before timeout", polls)
	}
}

func TestBackoffClampedToRemaining(t *testing.T) {
	w := New(nil, nil, Config{MaxWait: time.Minute, BaseDelay: time.Second, MaxDelay: 30 * time.Second})
	for attempt := 1; attempt < 20; attempt++ {
		if d := w.backoff(attempt, 3*time.Second); d > 3*time.Second {
			t.Fatalf("backoff(attempt=%d) = %v exceeds remaining", attempt, d)
		}
	}
}
