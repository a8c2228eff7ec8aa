// Package pace provides a minimum-interval call limiter. The analyzer's
// rate limit is respected by construction: callers Wait before every
// invocation, and the limiter guarantees two waits never complete closer
// together than the configured interval.
package pace

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall-clock time so tests can drive the limiter without
// sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter enforces a minimum interval between successive calls.
type Limiter struct {
	clock    Clock
	last     time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewLimiter creates a limiter with the given minimum interval.
func NewLimiter(interval time.Duration) *Limiter {
	return NewLimiterWithClock(interval, realClock{})
}

// NewLimiterWithClock creates a limiter using a caller-supplied clock.
func NewLimiterWithClock(interval time.Duration, clock Clock) *Limiter {
	return &Limiter{interval: interval, clock: clock}
}

// Wait blocks until at least the configured interval has elapsed since
// the previous Wait returned, or the context is canceled. The first call
// returns immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		elapsed := l.clock.Now().Sub(l.last)
		if remaining := l.interval - elapsed; remaining > 0 {
			if err := l.clock.Sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}

	l.last = l.clock.Now()
	return nil
}
