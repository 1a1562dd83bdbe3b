// Package throttle paces I/O operations.
//
// Two limiters are provided:
//
//   - FixedWindow counts operations in consecutive one-second windows. When
//     the count reaches the limit the caller sleeps out the rest of the window.
//     Bursts of up to twice the limit are possible across a window boundary.
//   - TokenBucket delegates to golang.org/x/time/rate and spreads operations
//     evenly, with a burst equal to the per-second limit.
package throttle

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Window is the length of a FixedWindow interval.
const Window = time.Second

// Limiter paces a single I/O operation per Wait call.
//
// onThrottle is invoked, before sleeping, when the call has to be delayed.
type Limiter interface {
	Wait(ctx context.Context, onThrottle func()) error
}

// FixedWindow limits operations per one-second window.
type FixedWindow struct {
	limit uint64

	// lock guards count and start. It is a one-slot semaphore rather than a
	// mutex so that queued callers can give up when their context ends.
	lock  *semaphore.Weighted
	count uint64
	start time.Time

	now func() time.Time
}

// NewFixedWindow creates a limiter allowing limit operations per window.
// The first window starts immediately.
func NewFixedWindow(limit uint64) *FixedWindow {
	return &FixedWindow{
		limit: limit,
		lock:  semaphore.NewWeighted(1),
		start: time.Now(),
		now:   time.Now,
	}
}

// Wait implements Limiter.
//
// An expired window is restarted and the call passes for free. Otherwise the
// call is counted; once the window already holds limit operations the caller
// sleeps for the remainder of the window, which then restarts with this call
// as its first operation. The window lock is held across the sleep, so
// concurrent callers queue behind a throttled one.
func (w *FixedWindow) Wait(ctx context.Context, onThrottle func()) error {
	if err := w.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.lock.Release(1)

	elapsed := w.now().Sub(w.start)
	if elapsed >= Window {
		w.count = 0
		w.start = w.now()
		return nil
	}

	current := w.count
	w.count++
	if current < w.limit {
		return nil
	}

	if onThrottle != nil {
		onThrottle()
	}
	if err := Sleep(ctx, Window-elapsed); err != nil {
		return err
	}

	w.count = 1
	w.start = w.now()
	return nil
}

// TokenBucket limits operations with a token bucket.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket refilling perSecond tokens per second
// with a burst of perSecond.
func NewTokenBucket(perSecond uint64) *TokenBucket {
	burst := perSecond
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Wait implements Limiter.
func (b *TokenBucket) Wait(ctx context.Context, onThrottle func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := b.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	if onThrottle != nil {
		onThrottle()
	}
	if err := Sleep(ctx, delay); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
