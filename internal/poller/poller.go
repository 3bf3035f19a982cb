// Package poller implements the fixed-interval status polling primitive
// the job trackers are built on. The interval and the consecutive-failure
// budget are deliberately constants, not backoff: a halted poll is resumed
// by an explicit user action, never automatically.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is the gap between poll attempts. A new attempt is
	// never issued while a previous one is outstanding.
	DefaultInterval = 4 * time.Second

	// DefaultFinalDelay is how long to wait before the last confirming
	// fetch once the continue predicate turns false, to avoid racing a
	// last-moment server-side transition.
	DefaultFinalDelay = 2 * time.Second

	// DefaultFailureBudget is the number of consecutive fetch failures
	// tolerated before polling halts with the last known value retained.
	DefaultFailureBudget = 3
)

// Config tunes a Poller. Zero values take the package defaults.
type Config struct {
	Interval      time.Duration
	FinalDelay    time.Duration
	FailureBudget int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.FinalDelay <= 0 {
		c.FinalDelay = DefaultFinalDelay
	}
	if c.FailureBudget <= 0 {
		c.FailureBudget = DefaultFailureBudget
	}
	return c
}

// StopReason records why a poll loop ended.
type StopReason string

const (
	StopPredicate       StopReason = "predicate"
	StopHalted          StopReason = "halted"
	StopBudgetExhausted StopReason = "failure_budget"
)

// Poller repeatedly invokes fetch at a fixed interval while shouldContinue
// holds for the last fetched value. Successful values are delivered to
// onValue, gated on the context so a torn-down owner never observes a
// late result.
type Poller[T any] struct {
	cfg            Config
	fetch          func(ctx context.Context) (T, error)
	shouldContinue func(T) bool
	onValue        func(T)
	log            *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	reason StopReason
}

// New creates a poller. onValue may be nil.
func New[T any](cfg Config, fetch func(ctx context.Context) (T, error), shouldContinue func(T) bool, onValue func(T)) *Poller[T] {
	return &Poller[T]{
		cfg:            cfg.withDefaults(),
		fetch:          fetch,
		shouldContinue: shouldContinue,
		onValue:        onValue,
		log:            zap.L().With(zap.String("component", "poller")),
	}
}

// Start launches the poll loop. It is a no-op if the poller already ran.
// The first fetch happens immediately; later ones follow the interval.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)
}

// Stop halts the loop and waits for it to exit. Safe to call more than
// once, and before Start (then it does nothing). In-flight fetches are not
// aborted; their results are discarded by the context gate.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the loop has fully exited.
func (p *Poller[T]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Reason reports why the loop stopped. Valid after Done is closed.
func (p *Poller[T]) Reason() StopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		value, err := p.fetch(ctx)
		if ctx.Err() != nil {
			p.setReason(StopHalted)
			return
		}

		if err != nil {
			failures++
			p.log.Warn("status fetch failed",
				zap.Int("consecutive_failures", failures),
				zap.Int("budget", p.cfg.FailureBudget),
				zap.Error(err),
			)
			if failures >= p.cfg.FailureBudget {
				// Halt with the last known value retained. No final
				// fetch: the budget counts total attempts.
				p.setReason(StopBudgetExhausted)
				return
			}
		} else {
			failures = 0
			p.deliver(ctx, value)
			if !p.shouldContinue(value) {
				p.finalFetch(ctx)
				p.setReason(StopPredicate)
				return
			}
		}

		select {
		case <-ctx.Done():
			p.setReason(StopHalted)
			return
		case <-ticker.C:
		}
	}
}

// finalFetch performs one confirming fetch after a short delay, so a state
// change committed just as polling stopped is still observed.
func (p *Poller[T]) finalFetch(ctx context.Context) {
	timer := time.NewTimer(p.cfg.FinalDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	value, err := p.fetch(ctx)
	if err != nil || ctx.Err() != nil {
		return
	}
	p.deliver(ctx, value)
}

func (p *Poller[T]) deliver(ctx context.Context, value T) {
	if p.onValue == nil || ctx.Err() != nil {
		return
	}
	p.onValue(value)
}

func (p *Poller[T]) setReason(r StopReason) {
	p.mu.Lock()
	p.reason = r
	p.mu.Unlock()
}
