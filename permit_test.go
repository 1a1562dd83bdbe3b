package governor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermit_ReleaseIdempotent(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	p, err := g.AcquirePermit(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, p.Governor())
	assert.False(t, p.Released())

	p.Release()
	p.Release()

	assert.True(t, p.Released())
	assert.Equal(t, int64(0), g.InFlight())

	var nilPermit *Permit
	nilPermit.Release()
}

func TestPermit_LeakedPermitReturnsSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentOperations = 1
	basic := &BasicMetricsCollector{}
	g := newTestGovernor(t, cfg, WithMetricsCollector(basic))

	func() {
		_, err := g.AcquirePermit(context.Background())
		require.NoError(t, err)
	}()
	require.Equal(t, int64(1), g.InFlight())

	assert.Eventually(t, func() bool {
		runtime.GC()
		return g.InFlight() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// The slot is usable again.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := g.AcquirePermit(ctx)
	require.NoError(t, err)
	p.Release()

	// Collected permits are not reported as releases.
	assert.Equal(t, int64(1), basic.GetStats().ReleaseCount)
}
