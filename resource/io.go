// Package resource wraps io.Reader and io.Writer so that every call counts
// as one governed I/O operation.
//
//	g, _ := governor.New(cfg)
//	w := resource.NewThrottledWriter(ctx, file, g)
//	r := resource.NewThrottledReader(ctx, file, g)
//
// A nil IOThrottler turns the wrappers into pass-throughs.
package resource

import (
	"context"
	"errors"
	"io"
)

// ErrNotSeeker is returned by Seek when the wrapped value is not an io.Seeker.
var ErrNotSeeker = errors.New("underlying value does not implement io.Seeker")

// IOThrottler paces one I/O operation per call. *governor.Governor
// implements it.
type IOThrottler interface {
	ThrottleIO(ctx context.Context) error
}

// ThrottledWriter wraps an io.Writer; each Write is throttled.
type ThrottledWriter struct {
	ctx context.Context
	w   io.Writer
	t   IOThrottler
}

// NewThrottledWriter creates a new ThrottledWriter.
func NewThrottledWriter(ctx context.Context, w io.Writer, t IOThrottler) *ThrottledWriter {
	return &ThrottledWriter{
		ctx: ctx,
		w:   w,
		t:   t,
	}
}

func (w *ThrottledWriter) Write(p []byte) (n int, err error) {
	if w.t != nil {
		if err := w.t.ThrottleIO(w.ctx); err != nil {
			return 0, err
		}
	}
	return w.w.Write(p)
}

// Seek implements io.Seeker if the wrapped writer does. Seeking is not
// throttled.
func (w *ThrottledWriter) Seek(offset int64, whence int) (int64, error) {
	s, ok := w.w.(io.Seeker)
	if !ok {
		return 0, ErrNotSeeker
	}
	return s.Seek(offset, whence)
}

// ThrottledReader wraps an io.Reader; each Read is throttled.
type ThrottledReader struct {
	ctx context.Context
	r   io.Reader
	t   IOThrottler
}

// NewThrottledReader creates a new ThrottledReader.
func NewThrottledReader(ctx context.Context, r io.Reader, t IOThrottler) *ThrottledReader {
	return &ThrottledReader{
		ctx: ctx,
		r:   r,
		t:   t,
	}
}

func (r *ThrottledReader) Read(p []byte) (n int, err error) {
	if r.t != nil {
		if err := r.t.ThrottleIO(r.ctx); err != nil {
			return 0, err
		}
	}
	return r.r.Read(p)
}

// Seek implements io.Seeker if the wrapped reader does. Seeking is not
// throttled.
func (r *ThrottledReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return 0, ErrNotSeeker
	}
	return s.Seek(offset, whence)
}
