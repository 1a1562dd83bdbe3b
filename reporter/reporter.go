// Package reporter pushes externally sampled CPU and RAM numbers into a
// governor on a fixed interval.
//
// The governor never measures the machine itself. A Sampler supplies the
// numbers (from cgroup files, a process metrics library, runtime.MemStats or
// a test double) and the Reporter forwards them:
//
//	r := reporter.New(g, reporter.SamplerFunc(sample), reporter.WithInterval(500*time.Millisecond))
//	go r.Run(ctx)
package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/governor"
)

// DefaultInterval is the reporting period used when WithInterval is not set.
const DefaultInterval = time.Second

// Sample is one observation. Nil fields are not reported.
type Sample struct {
	// CPUPercent is the current CPU usage, clamped to 100 by the governor.
	CPUPercent *uint8
	// RAMBytes is the absolute RAM usage. The reporter converts it into
	// allocation and deallocation deltas against the previous sample.
	RAMBytes *uint64
}

// Sampler produces observations.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Sample, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// Target receives usage reports. *governor.Governor implements it.
type Target interface {
	UpdateCPUUsage(percent uint8)
	TrackRAMAllocation(bytes uint64)
	TrackRAMDeallocation(bytes uint64)
}

type options struct {
	interval time.Duration
	logger   *governor.Logger
}

// Option configures a Reporter.
type Option func(*options)

// WithInterval sets the reporting period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger sets the logger for sampling failures.
func WithLogger(l *governor.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Reporter forwards samples to a Target.
type Reporter struct {
	target   Target
	sampler  Sampler
	interval time.Duration
	logger   *governor.Logger

	mu      sync.Mutex
	lastRAM uint64
}

// New creates a Reporter. It does not start reporting; call Run.
func New(target Target, sampler Sampler, opts ...Option) *Reporter {
	o := options{
		interval: DefaultInterval,
		logger:   governor.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Reporter{
		target:   target,
		sampler:  sampler,
		interval: o.interval,
		logger:   o.logger.WithComponent("reporter"),
	}
}

// Interval returns the reporting period.
func (r *Reporter) Interval() time.Duration {
	return r.interval
}

// Run reports once immediately and then on every tick until ctx is done.
// Sampling errors are logged and skipped. Run returns nil on cancellation.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.ReportOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.WarnContext(ctx, "usage sample failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReportOnce takes one sample and pushes it to the target.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := r.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("reporter: sample: %w", err)
	}

	if s.CPUPercent != nil {
		r.target.UpdateCPUUsage(*s.CPUPercent)
	}

	if s.RAMBytes != nil {
		r.pushRAM(*s.RAMBytes)
	}

	return nil
}

func (r *Reporter) pushRAM(current uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.lastRAM
	r.lastRAM = current

	switch {
	case current > prev:
		r.target.TrackRAMAllocation(current - prev)
	case current < prev:
		r.target.TrackRAMDeallocation(prev - current)
	}
}
