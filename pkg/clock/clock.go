// Package clock abstracts wall time and repeating timers so that every
// cadence in the pipeline can be fast-forwarded deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Ticker delivers repeated time signals until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock provides the time primitives used by the pipeline.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// New returns a Clock backed by real wall time.
func New() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }

// Fake is a manually advanced Clock for tests. Advance moves logical time
// forward and fires any tickers or timers that come due, in order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	waiters []*fakeWaiter
}

// NewFake creates a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		ch:     make(chan time.Time, 1),
		period: d,
		next:   f.now.Add(d),
	}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{ch: make(chan time.Time, 1), due: f.now.Add(d)}
	f.waiters = append(f.waiters, w)
	return w.ch
}

// Sleep on a fake clock returns immediately; tests drive time explicitly.
func (f *Fake) Sleep(time.Duration) {}

// Advance moves logical time by d, delivering ticks and expiring timers as
// their deadlines pass.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		var earliest time.Time
		for _, t := range f.tickers {
			if !t.stopped && (earliest.IsZero() || t.next.Before(earliest)) {
				earliest = t.next
			}
		}
		for _, w := range f.waiters {
			if !w.fired && (earliest.IsZero() || w.due.Before(earliest)) {
				earliest = w.due
			}
		}
		if earliest.IsZero() || earliest.After(target) {
			break
		}
		f.now = earliest
		for _, t := range f.tickers {
			for !t.stopped && !t.next.After(f.now) {
				select {
				case t.ch <- f.now:
				default:
				}
				t.next = t.next.Add(t.period)
			}
		}
		for _, w := range f.waiters {
			if !w.fired && !w.due.After(f.now) {
				w.fired = true
				w.ch <- f.now
			}
		}
	}
	f.now = target
	f.mu.Unlock()
}

type fakeTicker struct {
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() { t.stopped = true }

type fakeWaiter struct {
	ch    chan time.Time
	due   time.Time
	fired bool
}
