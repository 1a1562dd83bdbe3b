package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when a slot is requested from a closed controller.
var ErrClosed = errors.New("resource controller closed")

// MaxCPUPercent is the upper clamp for reported CPU usage.
const MaxCPUPercent = 100

// Controller holds the shared counters admission decisions are made against:
// concurrency slots, reported CPU percent and tracked RAM bytes.
type Controller struct {
	// Concurrency
	slots    *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64

	// Usage
	cpuPercent atomic.Uint64
	ramBytes   atomic.Uint64

	// Lifecycle
	done     context.Context
	shutdown context.CancelFunc
}

// NewController creates a controller with maxConcurrent slots.
// If maxConcurrent <= 0, it defaults to 1.
func NewController(maxConcurrent int64) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	done, shutdown := context.WithCancel(context.Background())

	return &Controller{
		slots:    semaphore.NewWeighted(maxConcurrent),
		capacity: maxConcurrent,
		done:     done,
		shutdown: shutdown,
	}
}

// Bind derives a context from parent that is additionally canceled, with
// cause ErrClosed, when the controller is closed.
func (c *Controller) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(c.done, func() { cancel(ErrClosed) })

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// AcquireSlot reserves one concurrency slot.
// Blocks until a slot is free, ctx is done or the controller is closed.
func (c *Controller) AcquireSlot(ctx context.Context) error {
	if c.Closed() {
		return ErrClosed
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		if errors.Is(context.Cause(ctx), ErrClosed) {
			return ErrClosed
		}
		return err
	}

	c.inFlight.Add(1)
	return nil
}

// ReleaseSlot returns a slot obtained from AcquireSlot.
func (c *Controller) ReleaseSlot() {
	c.inFlight.Add(-1)
	c.slots.Release(1)
}

// InFlight returns the number of slots currently held.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Capacity returns the configured number of slots.
func (c *Controller) Capacity() int64 {
	return c.capacity
}

// Close stops handing out slots and wakes everyone bound via Bind.
// Slots already held can still be released. Close is idempotent.
func (c *Controller) Close() {
	c.shutdown()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	return c.done.Err() != nil
}

// SetCPU stores the reported CPU usage, clamped to MaxCPUPercent.
func (c *Controller) SetCPU(percent uint8) {
	v := uint64(percent)
	if v > MaxCPUPercent {
		v = MaxCPUPercent
	}
	c.cpuPercent.Store(v)
}

// CPU returns the last reported CPU usage.
func (c *Controller) CPU() uint64 {
	return c.cpuPercent.Load()
}

// AllocateRAM adds bytes to the tracked RAM usage.
func (c *Controller) AllocateRAM(bytes uint64) {
	c.ramBytes.Add(bytes)
}

// ReleaseRAM subtracts bytes from the tracked RAM usage, saturating at zero.
// It returns how many bytes could not be subtracted (0 unless the caller
// released more than was tracked).
func (c *Controller) ReleaseRAM(bytes uint64) (underflow uint64) {
	for {
		cur := c.ramBytes.Load()
		next, short := uint64(0), uint64(0)
		if bytes > cur {
			short = bytes - cur
		} else {
			next = cur - bytes
		}
		if c.ramBytes.CompareAndSwap(cur, next) {
			return short
		}
	}
}

// RAM returns the tracked RAM usage in bytes.
func (c *Controller) RAM() uint64 {
	return c.ramBytes.Load()
}
