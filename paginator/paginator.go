// Package paginator implements the lazy async paginator: a page publisher
// that issues at most one underlying call per unit of downstream demand,
// honoring item and page-size caps and terminating on stale continuation
// tokens.
package paginator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Page is one emitted page: the raw operation output, the items slice the
// paginator extracted (possibly truncated by MaxItems), and the page's
// continuation token.
type Page struct {
	Output map[string]any
	Items  []any
	Token  string
}

// Config binds the paginator to the operation's pagination members.
type Config struct {
	// InputTokenKey is the input member receiving the continuation token.
	InputTokenKey string
	// OutputTokenKey is the output member carrying the next token.
	OutputTokenKey string
	// ItemsKey is the output member holding the page's items.
	ItemsKey string
	// PageSizeKey is the input member carrying the preferred page size;
	// empty when the operation models none.
	PageSizeKey string
	// PageSize is the preferred page size; 0 leaves the operation default.
	PageSize int
	// MaxItems caps total items across all pages; 0 means unbounded.
	MaxItems int
}

// FetchFunc issues one page call with the prepared input.
type FetchFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Subscriber receives pages under explicit demand.
type Subscriber interface {
	OnSubscribe(sub *Subscription)
	OnPage(page *Page)
	OnError(err error)
	OnComplete()
}

// Subscription signals page demand and cancellation.
type Subscription struct {
	requests chan int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Request signals willingness to receive up to n additional pages; each
// unit of demand permits at most one underlying operation call.
func (s *Subscription) Request(n int64) {
	if n <= 0 {
		return
	}
	select {
	case s.requests <- n:
	case <-s.done:
	}
}

// Cancel stops the paginator: no further calls are issued and the
// in-flight call's context is cancelled.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Paginator publishes pages of one operation lazily.
type Paginator struct {
	fetch FetchFunc
	input map[string]any
	cfg   Config
}

// New returns a Paginator over fetch, starting from input (copied; the
// caller's map is never mutated).
func New(fetch FetchFunc, input map[string]any, cfg Config) *Paginator {
	seed := make(map[string]any, len(input))
	for k, v := range input {
		seed[k] = v
	}
	return &Paginator{fetch: fetch, input: seed, cfg: cfg}
}

// Subscribe starts the page loop. Pages are fetched one at a time, only
// under demand; a page whose token is absent, empty, or equal to the
// previous page's token completes the publisher.
func (p *Paginator) Subscribe(ctx context.Context, sub Subscriber) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	subscription := &Subscription{
		requests: make(chan int64, 8),
		cancel:   cancel,
		done:     done,
	}
	sub.OnSubscribe(subscription)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(done)
		defer cancel()

		var pending int64
		emitted := 0
		prevToken := ""
		first := true

		for {
			for pending == 0 {
				select {
				case n := <-subscription.requests:
					pending += n
				case <-ctx.Done():
					return nil
				}
			}

			input := p.nextInput(prevToken, first, emitted)
			output, err := p.fetch(ctx, input)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				sub.OnError(err)
				return nil
			}

			page := p.extractPage(output, emitted)
			emitted += len(page.Items)
			pending--
			sub.OnPage(page)

			terminal := page.Token == "" || (!first && page.Token == prevToken)
			if p.cfg.MaxItems > 0 && emitted >= p.cfg.MaxItems {
				terminal = true
			}
			if terminal {
				sub.OnComplete()
				return nil
			}
			prevToken = page.Token
			first = false
		}
	})
	go func() { _ = group.Wait() }()
}

// nextInput prepares the next call's input: the previous token copied into
// the token member, and the page-size member adjusted down when the next
// full page would overshoot MaxItems.
func (p *Paginator) nextInput(prevToken string, first bool, emitted int) map[string]any {
	input := make(map[string]any, len(p.input)+2)
	for k, v := range p.input {
		input[k] = v
	}
	if !first && p.cfg.InputTokenKey != "" {
		input[p.cfg.InputTokenKey] = prevToken
	}
	if p.cfg.PageSizeKey != "" {
		size := p.cfg.PageSize
		if p.cfg.MaxItems > 0 {
			remaining := p.cfg.MaxItems - emitted
			if size == 0 || remaining < size {
				size = remaining
			}
		}
		if size > 0 {
			input[p.cfg.PageSizeKey] = size
		}
	}
	return input
}

// extractPage pulls items and token out of output, post-filtering items
// against the remaining MaxItems budget whenever MaxItems is set, whether
// or not the operation exposes a page-size member.
func (p *Paginator) extractPage(output map[string]any, emitted int) *Page {
	page := &Page{Output: output}
	if items, ok := output[p.cfg.ItemsKey].([]any); ok {
		page.Items = items
	}
	if p.cfg.MaxItems > 0 {
		remaining := p.cfg.MaxItems - emitted
		if remaining < 0 {
			remaining = 0
		}
		if len(page.Items) > remaining {
			page.Items = page.Items[:remaining]
		}
	}
	if tok, ok := output[p.cfg.OutputTokenKey].(string); ok {
		page.Token = tok
	}
	return page
}

// ForEach subscribes with demand 1, invoking fn per page; returning false
// cancels the subscription. A panic-free fn error model is kept simple:
// fn signals continuation, errors arrive via the returned error.
func (p *Paginator) ForEach(ctx context.Context, fn func(page *Page) bool) error {
	s := &forEachSubscriber{fn: fn, done: make(chan struct{})}
	p.Subscribe(ctx, s)
	<-s.done
	return s.err
}

type forEachSubscriber struct {
	fn     func(page *Page) bool
	sub    *Subscription
	err    error
	done   chan struct{}
	finish sync.Once
}

func (s *forEachSubscriber) OnSubscribe(sub *Subscription) {
	s.sub = sub
	sub.Request(1)
}

func (s *forEachSubscriber) OnPage(page *Page) {
	if s.fn(page) {
		s.sub.Request(1)
		return
	}
	s.sub.Cancel()
	s.finish.Do(func() { close(s.done) })
}

func (s *forEachSubscriber) OnError(err error) {
	s.err = err
	s.finish.Do(func() { close(s.done) })
}

func (s *forEachSubscriber) OnComplete() {
	s.finish.Do(func() { close(s.done) })
}
