package governor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run acquires a permit, calls fn and releases the permit on every exit
// path, including a panic in fn.
func (g *Governor) Run(ctx context.Context, fn func(ctx context.Context, p *Permit) error) error {
	p, err := g.AcquirePermit(ctx)
	if err != nil {
		return err
	}
	defer p.Release()

	return fn(ctx, p)
}

// RunAll runs every fn concurrently, each under its own permit, and returns
// the first error. The context passed to fns is canceled once any of them
// fails, which also aborts pending admissions.
func RunAll(ctx context.Context, g *Governor, fns ...func(ctx context.Context, p *Permit) error) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, fn := range fns {
		eg.Go(func() error {
			return g.Run(ctx, fn)
		})
	}

	return eg.Wait()
}
