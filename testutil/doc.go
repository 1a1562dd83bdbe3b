// Package testutil provides testing utilities for governor.
//
// This package is intended for use in tests only.
//
// # Concurrency Tracking
//
//	peak := &testutil.PeakTracker{}
//	leave := peak.Enter()
//	defer leave()
//	...
//	assert.LessOrEqual(t, peak.Peak(), int64(limit))
//
// # Timing
//
//	elapsed := testutil.Elapsed(func() { _ = g.ThrottleIO(ctx) })
//
//	testutil.WaitBlocked(t, done, 50*time.Millisecond) // fails if done fires early
package testutil
