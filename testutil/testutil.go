package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

// PeakTracker records the current and the highest number of concurrent
// holders. It is safe for concurrent use.
type PeakTracker struct {
	current atomic.Int64
	peak    atomic.Int64
}

// Enter registers a holder and returns the func that unregisters it.
func (p *PeakTracker) Enter() (leave func()) {
	n := p.current.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	return func() { p.current.Add(-1) }
}

// Current returns the number of registered holders.
func (p *PeakTracker) Current() int64 {
	return p.current.Load()
}

// Peak returns the highest number of simultaneous holders seen.
func (p *PeakTracker) Peak() int64 {
	return p.peak.Load()
}

// Elapsed runs fn and returns how long it took.
func Elapsed(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

// WaitBlocked fails the test if done is closed or receives within d.
func WaitBlocked[T any](t testing.TB, done <-chan T, d time.Duration) {
	t.Helper()
	select {
	case <-done:
		t.Fatalf("expected operation to block for %v", d)
	case <-time.After(d):
	}
}

// WaitDone fails the test unless done fires within d and returns the value.
func WaitDone[T any](t testing.TB, done <-chan T, d time.Duration) T {
	t.Helper()
	select {
	case v := <-done:
		return v
	case <-time.After(d):
		t.Fatalf("operation did not complete within %v", d)
	}
	var zero T
	return zero
}
