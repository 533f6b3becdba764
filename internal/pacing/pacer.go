// Package pacing enforces a minimum gap between consecutive generative-service calls.
//
// The gap is measured from the end of one call to the start of the next, so a slow
// call never lets the following one through early. Callers bracket every call with
// Wait and Done.
package pacing

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source a Pacer consults. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Pacer is a shared inter-call delay. It is safe for concurrent use, although the
// pipeline calls it from a single goroutine.
type Pacer struct {
	interval time.Duration
	clock    Clock
	observe  func(time.Duration)

	mu       sync.Mutex
	lastDone time.Time
	hasLast  bool
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithObserver reports every non-zero wait, e.g. to a histogram.
func WithObserver(fn func(time.Duration)) Option {
	return func(p *Pacer) {
		p.observe = fn
	}
}

// New creates a Pacer with the given minimum interval.
func New(interval time.Duration, clock Clock, opts ...Option) *Pacer {
	if interval < 0 {
		interval = 0
	}
	p := &Pacer{interval: interval, clock: clock}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured minimum gap.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until at least Interval has passed since the previous Done.
// The first call never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	if !p.hasLast || p.interval == 0 {
		p.mu.Unlock()
		return nil
	}
	wait := p.lastDone.Add(p.interval).Sub(p.clock.Now())
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	if p.observe != nil {
		p.observe(wait)
	}
	return p.clock.Sleep(ctx, wait)
}

// Done records the completion of a call, successful or not.
func (p *Pacer) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDone = p.clock.Now()
	p.hasLast = true
}
