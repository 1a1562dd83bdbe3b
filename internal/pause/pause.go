// Package pause implements a gate that suspends callers while paused and
// releases all of them at once on resume.
//
// Waiting is channel based: Resume closes the channel every waiter selects on,
// and each waiter re-checks the paused flag before returning, so a Pause that
// lands between the wake-up and the re-check sends it back to sleep.
package pause

import (
	"context"
	"sync"
)

// Gate is a pause/resume toggle. The zero value is a running gate.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{} // closed by Resume; replaced by Pause
}

// Pause closes the gate for new waiters. It reports whether the state changed.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return false
	}
	g.paused = true
	g.resumed = make(chan struct{})
	return true
}

// Resume opens the gate and wakes every waiter. It reports whether the
// state changed.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return false
	}
	g.paused = false
	close(g.resumed)
	return true
}

// Paused reports whether the gate is currently paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns once the gate is running. waited reports whether the caller
// had to block. If ctx is done first, Wait returns ctx.Err().
func (g *Gate) Wait(ctx context.Context) (waited bool, err error) {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return waited, nil
		}
		ch := g.resumed
		g.mu.Unlock()

		waited = true
		select {
		case <-ch:
		case <-ctx.Done():
			return waited, ctx.Err()
		}
	}
}
