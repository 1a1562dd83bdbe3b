// Package governor provides a shared, in-process resource governor.
//
// A Governor admits or throttles units of work according to limits on
// concurrency, CPU usage, RAM usage and I/O rate. It also supports pausing
// all admission, a deterministic random source for reproducible runs and an
// informational sandbox flag.
//
// # Quick Start
//
//	g, err := governor.New(governor.Config{
//	    CPUCapPercent:           governor.Ptr[uint8](80),
//	    RAMCapBytes:             governor.Ptr[uint64](4 << 30),
//	    IOOpsPerSecond:          governor.Ptr[uint64](1000),
//	    MaxConcurrentOperations: 64,
//	})
//	if err != nil {
//	    return err // *governor.ConfigError
//	}
//	defer g.Close()
//
//	p, err := g.AcquirePermit(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release()
//
// # Admission
//
// AcquirePermit runs these steps in order:
//
//  1. Count the attempt (TotalOperations), even if it later fails.
//  2. Wait while paused. Resume wakes all waiters; each re-checks the flag.
//  3. Wait for a concurrency slot (at most MaxConcurrentOperations permits
//     are outstanding). Waiters are not guaranteed strict FIFO order.
//  4. CPU above the cap: count a throttle and back off for CPUBackoff. The
//     permit is still granted (soft throttle).
//  5. RAM above the cap: return the slot and fail with a
//     *ResourceExhaustedError (hard rejection).
//
// There is no built-in timeout; pass a context with a deadline. Cancellation
// at any step returns the slot if one was taken.
//
// # Resource Reports
//
// The governor never measures the machine. External reporters push numbers:
//
//	g.UpdateCPUUsage(73)           // absolute percent, clamped to 100
//	g.TrackRAMAllocation(1 << 20)  // running counter
//	g.TrackRAMDeallocation(1 << 20)
//
// The reporter package runs such a reporter on a ticker.
//
// # I/O Throttling
//
// ThrottleIO is called once per I/O operation. The default fixed-window mode
// counts operations per one-second window and sleeps out the rest of the
// window once the limit is reached; up to twice the limit can pass around a
// window boundary. IOThrottleTokenBucket smooths this at the cost of a
// different burst profile. The resource package wraps io.Reader and io.Writer
// so every call is throttled.
//
// # Determinism
//
// RNG returns a PCG source seeded with DeterministicSeed when
// DeterministicMode is set, and an entropy-seeded ChaCha8 source otherwise.
//
// # Observability
//
// Pass WithLogger for structured slog output and WithMetricsCollector to
// record admissions, throttles and releases. Statistics returns a snapshot of
// the counters; ResetStatistics zeroes the operation counters only.
package governor
