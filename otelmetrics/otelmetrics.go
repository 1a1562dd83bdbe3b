// Package otelmetrics records governor metrics with OpenTelemetry.
//
//	c, err := otelmetrics.New(nil) // global MeterProvider
//	g, _ := governor.New(cfg, governor.WithMetricsCollector(c))
//	reg, err := c.Observe(g)
//	defer reg.Unregister()
package otelmetrics

import (
	"context"
	"time"

	"github.com/hupe1980/governor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope used when New gets a nil meter.
const ScopeName = "github.com/hupe1980/governor"

// Attribute keys.
const (
	OutcomeKey = attribute.Key("governor.outcome")
	KindKey    = attribute.Key("governor.throttle.kind")
)

// StatsSource supplies the snapshot reported by the observable gauges.
// *governor.Governor implements it.
type StatsSource interface {
	Statistics() governor.Statistics
}

// Collector implements governor.MetricsCollector.
type Collector struct {
	meter metric.Meter

	admissions    metric.Int64Counter
	admissionWait metric.Float64Histogram
	throttles     metric.Int64Counter
	throttleWait  metric.Float64Histogram
	held          metric.Float64Histogram
	ramUnderflow  metric.Int64Counter
}

var _ governor.MetricsCollector = (*Collector)(nil)

// New creates the instruments on meter. A nil meter uses the global
// MeterProvider.
func New(meter metric.Meter) (*Collector, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(ScopeName)
	}

	c := &Collector{meter: meter}

	var err error
	if c.admissions, err = meter.Int64Counter("governor.admissions",
		metric.WithDescription("AcquirePermit calls partitioned by outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if c.admissionWait, err = meter.Float64Histogram("governor.admission.wait",
		metric.WithDescription("Time spent inside AcquirePermit"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.throttles, err = meter.Int64Counter("governor.throttles",
		metric.WithDescription("Soft throttles partitioned by kind"),
		metric.WithUnit("{throttle}"),
	); err != nil {
		return nil, err
	}

	if c.throttleWait, err = meter.Float64Histogram("governor.throttle.wait",
		metric.WithDescription("Delay imposed by soft throttles"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.held, err = meter.Float64Histogram("governor.permit.held",
		metric.WithDescription("Time between admission and release"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.ramUnderflow, err = meter.Int64Counter("governor.ram.underflow",
		metric.WithDescription("Deallocated bytes reported beyond the tracked RAM usage"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

// RecordAdmission implements governor.MetricsCollector.
func (c *Collector) RecordAdmission(wait time.Duration, err error) {
	attrs := metric.WithAttributes(OutcomeKey.String(governor.AdmissionOutcome(err)))
	ctx := context.Background()
	c.admissions.Add(ctx, 1, attrs)
	c.admissionWait.Record(ctx, wait.Seconds(), attrs)
}

// RecordThrottle implements governor.MetricsCollector.
func (c *Collector) RecordThrottle(kind governor.ThrottleKind, wait time.Duration) {
	attrs := metric.WithAttributes(KindKey.String(string(kind)))
	ctx := context.Background()
	c.throttles.Add(ctx, 1, attrs)
	c.throttleWait.Record(ctx, wait.Seconds(), attrs)
}

// RecordRelease implements governor.MetricsCollector.
func (c *Collector) RecordRelease(held time.Duration) {
	c.held.Record(context.Background(), held.Seconds())
}

// RecordRAMUnderflow implements governor.MetricsCollector.
func (c *Collector) RecordRAMUnderflow(bytes uint64) {
	c.ramUnderflow.Add(context.Background(), clampInt64(bytes))
}

// Observe registers observable gauges fed from src. Unregister the returned
// registration when src goes away.
func (c *Collector) Observe(src StatsSource) (metric.Registration, error) {
	operations, err := c.meter.Int64ObservableGauge("governor.operations",
		metric.WithDescription("Admission attempts since the last statistics reset"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	throttled, err := c.meter.Int64ObservableGauge("governor.operations.throttled",
		metric.WithDescription("Throttled operations since the last statistics reset"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	cpu, err := c.meter.Int64ObservableGauge("governor.cpu.usage",
		metric.WithDescription("Last reported CPU usage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return nil, err
	}

	ram, err := c.meter.Int64ObservableGauge("governor.ram.usage",
		metric.WithDescription("Tracked RAM usage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	paused, err := c.meter.Int64ObservableGauge("governor.paused",
		metric.WithDescription("1 if admission is paused"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := c.meter.Int64ObservableGauge("governor.permits.in_flight",
		metric.WithDescription("Outstanding permits"),
		metric.WithUnit("{permit}"),
	)
	if err != nil {
		return nil, err
	}

	capacity, err := c.meter.Int64ObservableGauge("governor.permits.capacity",
		metric.WithDescription("Maximum outstanding permits"),
		metric.WithUnit("{permit}"),
	)
	if err != nil {
		return nil, err
	}

	return c.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := src.Statistics()

		var p int64
		if s.IsPaused {
			p = 1
		}

		o.ObserveInt64(operations, clampInt64(s.TotalOperations))
		o.ObserveInt64(throttled, clampInt64(s.ThrottledOperations))
		o.ObserveInt64(cpu, clampInt64(s.CurrentCPUUsage))
		o.ObserveInt64(ram, clampInt64(s.CurrentRAMUsage))
		o.ObserveInt64(paused, p)
		o.ObserveInt64(inFlight, s.InFlight)
		o.ObserveInt64(capacity, s.Capacity)
		return nil
	}, operations, throttled, cpu, ram, paused, inFlight, capacity)
}

func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
