package governor

import "context"

// Close tears the governor down. Pending and future AcquirePermit and
// ThrottleIO calls fail with a *ConcurrencyError matching ErrClosed.
// Outstanding permits can still be released. Close is idempotent and always
// returns nil.
func (g *Governor) Close() error {
	if g == nil || g.res.Closed() {
		return nil
	}
	g.res.Close()
	g.logger.InfoContext(context.Background(), "governor closed",
		"in_flight", g.res.InFlight(),
	)
	return nil
}
