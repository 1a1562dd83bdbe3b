package governor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Permit holds one unit of concurrency capacity for the duration of a
// governed unit of work. It is created by AcquirePermit and must be released
// with Release, typically deferred. Release is idempotent, so the capacity
// unit is returned exactly once.
//
// A permit that becomes unreachable without Release is returned to the
// governor by the garbage collector and logged as leaked; do not rely on it.
type Permit struct {
	id      uuid.UUID
	start   time.Time
	state   *permitState
	cleanup runtime.Cleanup
}

// permitState is what the GC cleanup needs; it must not reference the Permit.
type permitState struct {
	g        *Governor
	released atomic.Bool
}

func newPermit(g *Governor) *Permit {
	p := &Permit{
		id:    uuid.New(),
		start: time.Now(),
		state: &permitState{g: g},
	}

	id := p.id
	p.cleanup = runtime.AddCleanup(p, func(st *permitState) {
		if st.released.CompareAndSwap(false, true) {
			st.g.res.ReleaseSlot()
			st.g.logger.LogLeakedPermit(context.Background(), id)
		}
	}, p.state)

	return p
}

// ID returns the permit's unique id, used for log correlation.
func (p *Permit) ID() uuid.UUID {
	return p.id
}

// Governor returns the governor that granted the permit.
func (p *Permit) Governor() *Governor {
	return p.state.g
}

// Duration returns the time since the permit was granted.
func (p *Permit) Duration() time.Duration {
	return time.Since(p.start)
}

// Released reports whether Release has been called.
func (p *Permit) Released() bool {
	return p.state.released.Load()
}

// Release returns the permit's capacity unit. Subsequent calls are no-ops.
func (p *Permit) Release() {
	if p == nil || !p.state.released.CompareAndSwap(false, true) {
		return
	}
	p.cleanup.Stop()

	held := time.Since(p.start)
	g := p.state.g
	g.res.ReleaseSlot()
	g.metrics.RecordRelease(held)
	g.logger.LogRelease(context.Background(), p.id, held)
}
