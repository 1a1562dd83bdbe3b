package governor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/governor/internal/pause"
	"github.com/hupe1980/governor/internal/resource"
	"github.com/hupe1980/governor/internal/throttle"
)

// CPUBackoff is the delay an admission takes while CPU usage is above the cap.
const CPUBackoff = 10 * time.Millisecond

// Governor admits or throttles units of work against concurrency, CPU, RAM
// and IO limits.
//
// A Governor is shared by pointer; every method is safe for concurrent use.
// Independent governors share no state.
type Governor struct {
	cfg Config

	res   *resource.Controller
	pause pause.Gate
	io    throttle.Limiter // nil if unlimited

	totalOps     atomic.Uint64
	throttledOps atomic.Uint64

	logger  *Logger
	metrics MetricsCollector
}

// New validates cfg and creates a Governor.
// It returns a *ConfigError if cfg contains impossible limits.
func New(cfg Config, optFns ...Option) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg = cfg.Clone()
	if cfg.IOThrottleMode == "" {
		cfg.IOThrottleMode = IOThrottleFixedWindow
	}

	g := &Governor{
		cfg:     cfg,
		res:     resource.NewController(int64(cfg.MaxConcurrentOperations)),
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}

	if cfg.IOOpsPerSecond != nil {
		switch cfg.IOThrottleMode {
		case IOThrottleTokenBucket:
			g.io = throttle.NewTokenBucket(*cfg.IOOpsPerSecond)
		default:
			g.io = throttle.NewFixedWindow(*cfg.IOOpsPerSecond)
		}
	}

	g.logger.Debug("governor created",
		"max_concurrent_operations", cfg.MaxConcurrentOperations,
		"io_throttle_mode", string(cfg.IOThrottleMode),
		"deterministic", cfg.DeterministicMode,
		"sandbox", cfg.SandboxMode,
	)

	return g, nil
}

// Config returns a copy of the configuration the governor was built with.
func (g *Governor) Config() Config {
	return g.cfg.Clone()
}

// AcquirePermit admits one unit of work.
//
// It counts the attempt, waits while the governor is paused, waits for a
// free concurrency slot, backs off for CPUBackoff if CPU usage is above the
// cap and finally rejects with a *ResourceExhaustedError if tracked RAM is
// above the cap. The returned permit must be released when the work is done:
//
//	p, err := g.AcquirePermit(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release()
//
// Waiters for concurrency slots are not guaranteed strict FIFO order. There is
// no built-in timeout; use ctx. A canceled ctx returns ctx.Err() and leaves
// no capacity behind. After Close, a *ConcurrencyError matching ErrClosed is
// returned.
func (g *Governor) AcquirePermit(ctx context.Context) (*Permit, error) {
	start := time.Now()
	g.totalOps.Add(1)

	p, err := g.admit(ctx)

	wait := time.Since(start)
	g.metrics.RecordAdmission(wait, err)
	id := uuid.Nil
	if p != nil {
		id = p.id
	}
	g.logger.LogAdmission(ctx, id, wait, err)

	return p, err
}

func (g *Governor) admit(parent context.Context) (*Permit, error) {
	ctx, cancel := g.res.Bind(parent)
	defer cancel()

	if _, err := g.pause.Wait(ctx); err != nil {
		return nil, g.interrupted(parent, "wait for resume", err)
	}

	if err := g.res.AcquireSlot(ctx); err != nil {
		return nil, g.interrupted(parent, "acquire capacity", err)
	}

	if capPercent := g.cfg.CPUCapPercent; capPercent != nil {
		if usage := g.res.CPU(); usage > uint64(*capPercent) {
			g.throttledOps.Add(1)
			g.logger.LogThrottle(ctx, ThrottleCPU, uint64(*capPercent))
			start := time.Now()
			err := throttle.Sleep(ctx, CPUBackoff)
			g.metrics.RecordThrottle(ThrottleCPU, time.Since(start))
			if err != nil {
				g.res.ReleaseSlot()
				return nil, g.interrupted(parent, "cpu backoff", err)
			}
		}
	}

	if capBytes := g.cfg.RAMCapBytes; capBytes != nil {
		if usage := g.res.RAM(); usage > *capBytes {
			g.res.ReleaseSlot()
			return nil, &ResourceExhaustedError{
				Field: "ram_usage",
				Usage: usage,
				Limit: *capBytes,
			}
		}
	}

	return newPermit(g), nil
}

// interrupted maps an aborted wait to the error returned to the caller:
// the caller's own context error, or a *ConcurrencyError once closed.
func (g *Governor) interrupted(parent context.Context, op string, err error) error {
	if errors.Is(err, resource.ErrClosed) || g.res.Closed() {
		return &ConcurrencyError{Op: op, cause: ErrClosed}
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	return err
}

// ThrottleIO paces one I/O operation against IOOpsPerSecond.
//
// Without a limit it returns immediately. Otherwise it may sleep until the
// rate allows the operation; a delayed call increments ThrottledOperations.
// With the default fixed-window mode, bursts of up to twice the limit are
// possible across a window boundary.
func (g *Governor) ThrottleIO(ctx context.Context) error {
	if g.io == nil {
		return nil
	}

	bound, cancel := g.res.Bind(ctx)
	defer cancel()

	var throttled bool
	start := time.Now()
	err := g.io.Wait(bound, func() {
		throttled = true
		g.throttledOps.Add(1)
		g.logger.LogThrottle(ctx, ThrottleIO, *g.cfg.IOOpsPerSecond)
	})
	if throttled {
		g.metrics.RecordThrottle(ThrottleIO, time.Since(start))
	}
	if err != nil {
		return g.interrupted(ctx, "throttle io", err)
	}
	return nil
}

// UpdateCPUUsage records the current CPU usage. Values above 100 are
// clamped. Callers report absolute usage, not deltas.
func (g *Governor) UpdateCPUUsage(percent uint8) {
	g.res.SetCPU(percent)
}

// TrackRAMAllocation adds bytes to the tracked RAM usage.
func (g *Governor) TrackRAMAllocation(bytes uint64) {
	g.res.AllocateRAM(bytes)
}

// TrackRAMDeallocation subtracts bytes from the tracked RAM usage.
//
// Releasing more than is tracked is a caller bug; the counter saturates at
// zero and the event is logged and reported to the metrics collector.
func (g *Governor) TrackRAMDeallocation(bytes uint64) {
	if short := g.res.ReleaseRAM(bytes); short > 0 {
		g.metrics.RecordRAMUnderflow(short)
		g.logger.LogRAMUnderflow(context.Background(), bytes, short)
	}
}

// CurrentCPUUsage returns the last reported CPU usage percent.
func (g *Governor) CurrentCPUUsage() uint64 {
	return g.res.CPU()
}

// CurrentRAMUsage returns the tracked RAM usage in bytes.
func (g *Governor) CurrentRAMUsage() uint64 {
	return g.res.RAM()
}

// Pause blocks future admissions. Permits already granted are unaffected.
func (g *Governor) Pause() {
	if g.pause.Pause() {
		g.logger.LogPause(context.Background(), true)
	}
}

// Resume unblocks admissions and wakes every caller waiting in AcquirePermit.
func (g *Governor) Resume() {
	if g.pause.Resume() {
		g.logger.LogPause(context.Background(), false)
	}
}

// IsPaused reports whether admissions are paused.
func (g *Governor) IsPaused() bool {
	return g.pause.Paused()
}

// IsDeterministic reports whether deterministic mode is enabled.
func (g *Governor) IsDeterministic() bool {
	return g.cfg.DeterministicMode
}

// IsSandboxed reports whether sandbox mode is enabled. The flag is
// informational; enforcing it is up to the caller.
func (g *Governor) IsSandboxed() bool {
	return g.cfg.SandboxMode
}

// InFlight returns the number of outstanding permits.
func (g *Governor) InFlight() int64 {
	return g.res.InFlight()
}
