package governor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ThrottleKind names the limit that caused a soft throttle.
type ThrottleKind string

const (
	// ThrottleCPU is the fixed backoff taken when CPU usage is above the cap.
	ThrottleCPU ThrottleKind = "cpu"

	// ThrottleIO is the wait imposed by ThrottleIO.
	ThrottleIO ThrottleKind = "io"
)

// Admission outcomes as returned by AdmissionOutcome.
const (
	OutcomeAdmitted = "admitted"
	OutcomeRejected = "rejected"
	OutcomeCanceled = "canceled"
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
)

// AdmissionOutcome classifies an AcquirePermit error into a low-cardinality
// label suitable for metrics.
func AdmissionOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAdmitted
	case errors.Is(err, ErrRAMLimitExceeded):
		return OutcomeRejected
	case errors.Is(err, ErrClosed):
		return OutcomeClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prommetrics and otelmetrics packages provide Prometheus and OpenTelemetry
// implementations.
type MetricsCollector interface {
	// RecordAdmission is called after each AcquirePermit call.
	// wait is the time spent inside AcquirePermit, err is nil if a permit
	// was granted.
	RecordAdmission(wait time.Duration, err error)

	// RecordThrottle is called after each soft throttle with the time the
	// caller was delayed.
	RecordThrottle(kind ThrottleKind, wait time.Duration)

	// RecordRelease is called when a permit is released.
	// held is the time between admission and release.
	RecordRelease(held time.Duration)

	// RecordRAMUnderflow is called when a deallocation report exceeds the
	// tracked RAM usage. bytes is the part that could not be subtracted.
	RecordRAMUnderflow(bytes uint64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdmission(time.Duration, error)       {}
func (NoopMetricsCollector) RecordThrottle(ThrottleKind, time.Duration) {}
func (NoopMetricsCollector) RecordRelease(time.Duration)                {}
func (NoopMetricsCollector) RecordRAMUnderflow(uint64)                  {}

// MultiMetricsCollector forwards every record to each collector in order.
type MultiMetricsCollector []MetricsCollector

// NewMultiMetricsCollector drops nil entries and returns the remaining
// collectors as one.
func NewMultiMetricsCollector(cs ...MetricsCollector) MultiMetricsCollector {
	out := make(MultiMetricsCollector, 0, len(cs))
	for _, c := range cs {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (m MultiMetricsCollector) RecordAdmission(wait time.Duration, err error) {
	for _, c := range m {
		c.RecordAdmission(wait, err)
	}
}

func (m MultiMetricsCollector) RecordThrottle(kind ThrottleKind, wait time.Duration) {
	for _, c := range m {
		c.RecordThrottle(kind, wait)
	}
}

func (m MultiMetricsCollector) RecordRelease(held time.Duration) {
	for _, c := range m {
		c.RecordRelease(held)
	}
}

func (m MultiMetricsCollector) RecordRAMUnderflow(bytes uint64) {
	for _, c := range m {
		c.RecordRAMUnderflow(bytes)
	}
}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AdmissionCount      atomic.Int64
	AdmissionRejected   atomic.Int64
	AdmissionCanceled   atomic.Int64
	AdmissionErrors     atomic.Int64
	AdmissionTotalNanos atomic.Int64
	CPUThrottleCount    atomic.Int64
	IOThrottleCount     atomic.Int64
	ThrottleTotalNanos  atomic.Int64
	ReleaseCount        atomic.Int64
	HeldTotalNanos      atomic.Int64
	RAMUnderflowCount   atomic.Int64
	RAMUnderflowBytes   atomic.Int64
}

// RecordAdmission implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdmission(wait time.Duration, err error) {
	b.AdmissionCount.Add(1)
	b.AdmissionTotalNanos.Add(wait.Nanoseconds())
	switch AdmissionOutcome(err) {
	case OutcomeAdmitted:
	case OutcomeRejected:
		b.AdmissionRejected.Add(1)
	case OutcomeCanceled:
		b.AdmissionCanceled.Add(1)
	default:
		b.AdmissionErrors.Add(1)
	}
}

// RecordThrottle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordThrottle(kind ThrottleKind, wait time.Duration) {
	switch kind {
	case ThrottleCPU:
		b.CPUThrottleCount.Add(1)
	case ThrottleIO:
		b.IOThrottleCount.Add(1)
	}
	b.ThrottleTotalNanos.Add(wait.Nanoseconds())
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(held time.Duration) {
	b.ReleaseCount.Add(1)
	b.HeldTotalNanos.Add(held.Nanoseconds())
}

// RecordRAMUnderflow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRAMUnderflow(bytes uint64) {
	b.RAMUnderflowCount.Add(1)
	b.RAMUnderflowBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AdmissionCount:    b.AdmissionCount.Load(),
		AdmissionRejected: b.AdmissionRejected.Load(),
		AdmissionCanceled: b.AdmissionCanceled.Load(),
		AdmissionErrors:   b.AdmissionErrors.Load(),
		AdmissionAvgNanos: avg(b.AdmissionTotalNanos.Load(), b.AdmissionCount.Load()),
		CPUThrottleCount:  b.CPUThrottleCount.Load(),
		IOThrottleCount:   b.IOThrottleCount.Load(),
		ReleaseCount:      b.ReleaseCount.Load(),
		HeldAvgNanos:      avg(b.HeldTotalNanos.Load(), b.ReleaseCount.Load()),
		RAMUnderflowCount: b.RAMUnderflowCount.Load(),
		RAMUnderflowBytes: b.RAMUnderflowBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AdmissionCount    int64 `json:"admission_count" yaml:"admission_count"`
	AdmissionRejected int64 `json:"admission_rejected" yaml:"admission_rejected"`
	AdmissionCanceled int64 `json:"admission_canceled" yaml:"admission_canceled"`
	AdmissionErrors   int64 `json:"admission_errors" yaml:"admission_errors"`
	AdmissionAvgNanos int64 `json:"admission_avg_nanos" yaml:"admission_avg_nanos"`
	CPUThrottleCount  int64 `json:"cpu_throttle_count" yaml:"cpu_throttle_count"`
	IOThrottleCount   int64 `json:"io_throttle_count" yaml:"io_throttle_count"`
	ReleaseCount      int64 `json:"release_count" yaml:"release_count"`
	HeldAvgNanos      int64 `json:"held_avg_nanos" yaml:"held_avg_nanos"`
	RAMUnderflowCount int64 `json:"ram_underflow_count" yaml:"ram_underflow_count"`
	RAMUnderflowBytes int64 `json:"ram_underflow_bytes" yaml:"ram_underflow_bytes"`
}
