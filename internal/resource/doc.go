// Package resource implements the shared state behind a governor.
//
// The Controller groups three independent counters:
//
//   - Concurrency: a weighted semaphore handing out one slot per admitted operation
//   - CPU: the last externally reported usage percent (clamped to 100)
//   - RAM: a running byte counter fed by allocation/release reports
//
// # Concurrency Slots
//
//	rc := resource.NewController(4)
//
//	if err := rc.AcquireSlot(ctx); err != nil {
//	    return err // ctx error or ErrClosed
//	}
//	defer rc.ReleaseSlot()
//
// Waiters are served by the semaphore in arrival order, but callers that
// reach AcquireSlot at the same moment race for their position.
//
// # Shutdown
//
// Close cancels an internal context. Bind derives caller contexts from it so
// that any wait, not only the slot wait, is interrupted with cause ErrClosed:
//
//	ctx, cancel := rc.Bind(ctx)
//	defer cancel()
//
// # Thread Safety
//
// All Controller methods are safe for concurrent use. Counters are plain
// atomics; no method takes a lock.
package resource
