// Package prommetrics exports governor metrics to Prometheus.
//
//	c := prommetrics.New()
//	g, _ := governor.New(cfg, governor.WithMetricsCollector(c))
//	c.Observe(g)
//	prometheus.MustRegister(c)
package prommetrics

import (
	"sync"
	"time"

	"github.com/hupe1980/governor"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "governor"

// StatsSource supplies the snapshot exported as gauges at scrape time.
// *governor.Governor implements it.
type StatsSource interface {
	Statistics() governor.Statistics
}

type options struct {
	namespace   string
	constLabels prometheus.Labels
	buckets     []float64
}

// Option configures a Collector.
type Option func(*options)

// WithNamespace replaces DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithConstLabels attaches labels to every metric, e.g. to tell several
// governors apart in one registry.
func WithConstLabels(l prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = l
	}
}

// WithBuckets sets the histogram buckets in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		if len(b) > 0 {
			o.buckets = b
		}
	}
}

// Collector implements governor.MetricsCollector and prometheus.Collector.
type Collector struct {
	admissions    *prometheus.CounterVec
	admissionWait *prometheus.HistogramVec
	throttles     *prometheus.CounterVec
	throttleWait  *prometheus.HistogramVec
	held          prometheus.Histogram
	ramUnderflow  prometheus.Counter

	operationsDesc *prometheus.Desc
	throttledDesc  *prometheus.Desc
	cpuDesc        *prometheus.Desc
	ramDesc        *prometheus.Desc
	pausedDesc     *prometheus.Desc
	inFlightDesc   *prometheus.Desc
	capacityDesc   *prometheus.Desc

	mu  sync.RWMutex
	src StatsSource
}

var (
	_ governor.MetricsCollector = (*Collector)(nil)
	_ prometheus.Collector      = (*Collector)(nil)
)

// New creates a Collector. Register it with a prometheus.Registerer.
func New(opts ...Option) *Collector {
	o := options{
		namespace: DefaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&o)
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(o.namespace, "", name), help, nil, o.constLabels)
	}

	return &Collector{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "admissions_total",
			Help:        "AcquirePermit calls by outcome.",
			ConstLabels: o.constLabels,
		}, []string{"outcome"}),
		admissionWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "admission_wait_seconds",
			Help:        "Time spent inside AcquirePermit by outcome.",
			ConstLabels: o.constLabels,
			Buckets:     o.buckets,
		}, []string{"outcome"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "throttles_total",
			Help:        "Soft throttles by kind.",
			ConstLabels: o.constLabels,
		}, []string{"kind"}),
		throttleWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "throttle_wait_seconds",
			Help:        "Delay imposed by soft throttles by kind.",
			ConstLabels: o.constLabels,
			Buckets:     o.buckets,
		}, []string{"kind"}),
		held: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "permit_held_seconds",
			Help:        "Time between admission and release.",
			ConstLabels: o.constLabels,
			Buckets:     o.buckets,
		}),
		ramUnderflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "ram_underflow_bytes_total",
			Help:        "Deallocated bytes reported beyond the tracked RAM usage.",
			ConstLabels: o.constLabels,
		}),

		operationsDesc: desc("operations", "Admission attempts since the last statistics reset."),
		throttledDesc:  desc("throttled_operations", "Throttled operations since the last statistics reset."),
		cpuDesc:        desc("cpu_usage_percent", "Last reported CPU usage."),
		ramDesc:        desc("ram_usage_bytes", "Tracked RAM usage."),
		pausedDesc:     desc("paused", "1 if admission is paused."),
		inFlightDesc:   desc("permits_in_flight", "Outstanding permits."),
		capacityDesc:   desc("permits_capacity", "Maximum outstanding permits."),
	}
}

// Observe sets the source of the statistics gauges. Without a source only
// the event metrics are exported.
func (c *Collector) Observe(src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.src = src
}

// RecordAdmission implements governor.MetricsCollector.
func (c *Collector) RecordAdmission(wait time.Duration, err error) {
	outcome := governor.AdmissionOutcome(err)
	c.admissions.WithLabelValues(outcome).Inc()
	c.admissionWait.WithLabelValues(outcome).Observe(wait.Seconds())
}

// RecordThrottle implements governor.MetricsCollector.
func (c *Collector) RecordThrottle(kind governor.ThrottleKind, wait time.Duration) {
	c.throttles.WithLabelValues(string(kind)).Inc()
	c.throttleWait.WithLabelValues(string(kind)).Observe(wait.Seconds())
}

// RecordRelease implements governor.MetricsCollector.
func (c *Collector) RecordRelease(held time.Duration) {
	c.held.Observe(held.Seconds())
}

// RecordRAMUnderflow implements governor.MetricsCollector.
func (c *Collector) RecordRAMUnderflow(bytes uint64) {
	c.ramUnderflow.Add(float64(bytes))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.admissions.Describe(ch)
	c.admissionWait.Describe(ch)
	c.throttles.Describe(ch)
	c.throttleWait.Describe(ch)
	c.held.Describe(ch)
	c.ramUnderflow.Describe(ch)

	ch <- c.operationsDesc
	ch <- c.throttledDesc
	ch <- c.cpuDesc
	ch <- c.ramDesc
	ch <- c.pausedDesc
	ch <- c.inFlightDesc
	ch <- c.capacityDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.admissions.Collect(ch)
	c.admissionWait.Collect(ch)
	c.throttles.Collect(ch)
	c.throttleWait.Collect(ch)
	c.held.Collect(ch)
	c.ramUnderflow.Collect(ch)

	c.mu.RLock()
	src := c.src
	c.mu.RUnlock()
	if src == nil {
		return
	}

	s := src.Statistics()
	paused := 0.0
	if s.IsPaused {
		paused = 1
	}

	// ResetStatistics can lower the operation counts, so they are gauges.
	ch <- prometheus.MustNewConstMetric(c.operationsDesc, prometheus.GaugeValue, float64(s.TotalOperations))
	ch <- prometheus.MustNewConstMetric(c.throttledDesc, prometheus.GaugeValue, float64(s.ThrottledOperations))
	ch <- prometheus.MustNewConstMetric(c.cpuDesc, prometheus.GaugeValue, float64(s.CurrentCPUUsage))
	ch <- prometheus.MustNewConstMetric(c.ramDesc, prometheus.GaugeValue, float64(s.CurrentRAMUsage))
	ch <- prometheus.MustNewConstMetric(c.pausedDesc, prometheus.GaugeValue, paused)
	ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, float64(s.InFlight))
	ch <- prometheus.MustNewConstMetric(c.capacityDesc, prometheus.GaugeValue, float64(s.Capacity))
}
