package reporter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/governor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu       sync.Mutex
	cpu      []uint8
	allocs   []uint64
	deallocs []uint64
}

func (f *fakeTarget) UpdateCPUUsage(percent uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpu = append(f.cpu, percent)
}

func (f *fakeTarget) TrackRAMAllocation(bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocs = append(f.allocs, bytes)
}

func (f *fakeTarget) TrackRAMDeallocation(bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deallocs = append(f.deallocs, bytes)
}

// sequence returns the samples in order and then repeats the last one.
func sequence(samples ...Sample) SamplerFunc {
	var i int
	var mu sync.Mutex
	return func(context.Context) (Sample, error) {
		mu.Lock()
		defer mu.Unlock()
		s := samples[i]
		if i < len(samples)-1 {
			i++
		}
		return s, nil
	}
}

func TestReportOnce_RAMDeltas(t *testing.T) {
	target := &fakeTarget{}
	r := New(target, sequence(
		Sample{RAMBytes: governor.Ptr[uint64](100)},
		Sample{RAMBytes: governor.Ptr[uint64](150)},
		Sample{RAMBytes: governor.Ptr[uint64](120)},
		Sample{RAMBytes: governor.Ptr[uint64](120)},
	))

	ctx := context.Background()
	for range 4 {
		require.NoError(t, r.ReportOnce(ctx))
	}

	assert.Equal(t, []uint64{100, 50}, target.allocs)
	assert.Equal(t, []uint64{30}, target.deallocs)
	assert.Empty(t, target.cpu)
}

func TestReportOnce_CPU(t *testing.T) {
	target := &fakeTarget{}
	r := New(target, sequence(Sample{CPUPercent: governor.Ptr[uint8](42)}))

	require.NoError(t, r.ReportOnce(context.Background()))

	assert.Equal(t, []uint8{42}, target.cpu)
	assert.Empty(t, target.allocs)
}

func TestReportOnce_SamplerError(t *testing.T) {
	errSample := errors.New("boom")
	r := New(&fakeTarget{}, SamplerFunc(func(context.Context) (Sample, error) {
		return Sample{}, errSample
	}))

	err := r.ReportOnce(context.Background())
	assert.ErrorIs(t, err, errSample)
}

func TestReportOnce_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(&fakeTarget{}, sequence(Sample{}))
	assert.ErrorIs(t, r.ReportOnce(ctx), context.Canceled)
}

func TestReporter_Governor(t *testing.T) {
	g, err := governor.New(governor.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = g.Close() }()

	r := New(g, sequence(
		Sample{CPUPercent: governor.Ptr[uint8](200), RAMBytes: governor.Ptr[uint64](4096)},
		Sample{RAMBytes: governor.Ptr[uint64](1024)},
	))

	ctx := context.Background()
	require.NoError(t, r.ReportOnce(ctx))
	assert.Equal(t, uint64(100), g.CurrentCPUUsage())
	assert.Equal(t, uint64(4096), g.CurrentRAMUsage())

	require.NoError(t, r.ReportOnce(ctx))
	assert.Equal(t, uint64(1024), g.CurrentRAMUsage())
}

func TestRun_TicksUntilCanceled(t *testing.T) {
	var calls atomic.Int64
	sampler := SamplerFunc(func(context.Context) (Sample, error) {
		if calls.Add(1)%2 == 0 {
			return Sample{}, errors.New("flaky")
		}
		return Sample{CPUPercent: governor.Ptr[uint8](10)}, nil
	})

	r := New(&fakeTarget{}, sampler, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWithInterval(t *testing.T) {
	r := New(&fakeTarget{}, sequence(Sample{}))
	assert.Equal(t, DefaultInterval, r.Interval())

	r = New(&fakeTarget{}, sequence(Sample{}), WithInterval(-1))
	assert.Equal(t, DefaultInterval, r.Interval())

	r = New(&fakeTarget{}, sequence(Sample{}), WithInterval(time.Minute), WithLogger(nil))
	assert.Equal(t, time.Minute, r.Interval())
}
