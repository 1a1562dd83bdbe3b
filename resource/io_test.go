package resource_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/hupe1980/governor"
	"github.com/hupe1980/governor/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGovernor(t *testing.T, opsPerSecond uint64) *governor.Governor {
	t.Helper()
	cfg := governor.DefaultConfig()
	cfg.IOOpsPerSecond = governor.Ptr(opsPerSecond)
	g, err := governor.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestThrottledWriter(t *testing.T) {
	g := newGovernor(t, 10000)
	ctx := context.Background()

	var buf bytes.Buffer
	w := resource.NewThrottledWriter(ctx, &buf, g)

	n, err := w.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestThrottledWriter_Seek(t *testing.T) {
	ctx := context.Background()

	// bytes.Buffer is not a seeker
	var buf bytes.Buffer
	w := resource.NewThrottledWriter(ctx, &buf, nil)
	_, err := w.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, resource.ErrNotSeeker)
}

func TestThrottledReader(t *testing.T) {
	g := newGovernor(t, 10000)
	ctx := context.Background()

	data := bytes.NewReader([]byte("hello world"))
	r := resource.NewThrottledReader(ctx, data, g)

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	// bytes.Reader is a seeker
	pos, err := r.Seek(6, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
	n, err = r.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestThrottledReader_CountsOperations(t *testing.T) {
	g := newGovernor(t, 3)
	ctx := context.Background()
	start := time.Now()

	// One byte per Read: 4 reads, the 4th crosses the limit of 3.
	r := resource.NewThrottledReader(ctx, bytes.NewReader([]byte("abcd")), g)
	buf := make([]byte, 1)
	for range 4 {
		_, err := r.Read(buf)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, uint64(1), g.Statistics().ThrottledOperations)
}

func TestThrottledReader_ContextCanceled(t *testing.T) {
	g := newGovernor(t, 1) // Very slow
	ctx, cancel := context.WithCancel(context.Background())

	data := bytes.NewReader([]byte("hello world"))
	r := resource.NewThrottledReader(ctx, data, g)

	buf := make([]byte, 1)
	_, err := r.Read(buf) // first op of the window
	require.NoError(t, err)

	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottled_NilThrottler(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	w := resource.NewThrottledWriter(ctx, &buf, nil)
	_, err := io.Copy(w, resource.NewThrottledReader(ctx, bytes.NewReader([]byte("x")), nil))
	require.NoError(t, err)
	assert.Equal(t, "x", buf.String())
}
