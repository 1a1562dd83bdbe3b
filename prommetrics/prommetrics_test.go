package prommetrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/governor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGovernor(t *testing.T, c *Collector, cfg governor.Config) *governor.Governor {
	t.Helper()
	g, err := governor.New(cfg, governor.WithMetricsCollector(c))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	c.Observe(g)
	return g
}

func TestCollector_Register(t *testing.T) {
	c := New()
	newGovernor(t, c, governor.DefaultConfig())

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestCollector_Admissions(t *testing.T) {
	c := New()
	cfg := governor.DefaultConfig()
	cfg.RAMCapBytes = governor.Ptr[uint64](100)
	g := newGovernor(t, c, cfg)

	p, err := g.AcquirePermit(context.Background())
	require.NoError(t, err)
	p.Release()

	g.TrackRAMAllocation(200)
	_, err = g.AcquirePermit(context.Background())
	require.ErrorIs(t, err, governor.ErrRAMLimitExceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.admissions.WithLabelValues(governor.OutcomeAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.admissions.WithLabelValues(governor.OutcomeRejected)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.admissionWait))
	assert.Equal(t, 1, testutil.CollectAndCount(c.held))
}

func TestCollector_Throttles(t *testing.T) {
	c := New()
	cfg := governor.DefaultConfig()
	cfg.CPUCapPercent = governor.Ptr[uint8](10)
	g := newGovernor(t, c, cfg)

	g.UpdateCPUUsage(90)
	p, err := g.AcquirePermit(context.Background())
	require.NoError(t, err)
	p.Release()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.throttles.WithLabelValues(string(governor.ThrottleCPU))))
	assert.Equal(t, 1, testutil.CollectAndCount(c.throttleWait))
}

func TestCollector_RAMUnderflow(t *testing.T) {
	c := New()
	g := newGovernor(t, c, governor.DefaultConfig())

	g.TrackRAMAllocation(5)
	g.TrackRAMDeallocation(15)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.ramUnderflow))
}

func TestCollector_StatisticsGauges(t *testing.T) {
	c := New(WithNamespace("test"))
	g := newGovernor(t, c, governor.DefaultConfig())

	g.UpdateCPUUsage(42)
	g.TrackRAMAllocation(4096)
	g.Pause()

	expected := `
# HELP test_cpu_usage_percent Last reported CPU usage.
# TYPE test_cpu_usage_percent gauge
test_cpu_usage_percent 42
# HELP test_paused 1 if admission is paused.
# TYPE test_paused gauge
test_paused 1
# HELP test_permits_capacity Maximum outstanding permits.
# TYPE test_permits_capacity gauge
test_permits_capacity 1000
# HELP test_ram_usage_bytes Tracked RAM usage.
# TYPE test_ram_usage_bytes gauge
test_ram_usage_bytes 4096
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"test_cpu_usage_percent", "test_paused", "test_permits_capacity", "test_ram_usage_bytes")
	assert.NoError(t, err)
}

func TestCollector_ConstLabels(t *testing.T) {
	c := New(WithConstLabels(prometheus.Labels{"pool": "ingest"}))
	c.RecordRelease(time.Millisecond)

	expected := `
# HELP governor_ram_underflow_bytes_total Deallocated bytes reported beyond the tracked RAM usage.
# TYPE governor_ram_underflow_bytes_total counter
governor_ram_underflow_bytes_total{pool="ingest"} 0
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected), "governor_ram_underflow_bytes_total")
	assert.NoError(t, err)
}

func TestCollector_WithoutSource(t *testing.T) {
	c := New()
	c.RecordAdmission(time.Millisecond, errors.New("boom"))

	// admissions, admission wait, held and underflow; no statistics gauges.
	assert.Equal(t, 4, testutil.CollectAndCount(c))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.admissions.WithLabelValues(governor.OutcomeError)))
}
