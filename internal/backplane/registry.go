package backplane

import (
	"sync"

	"github.com/fathima-sithara/realtime-backplane/internal/bus"
)

// subscribeFunc opens the single bus subscription for a subject and
// starts whatever consumes it.
type subscribeFunc func(subject string) (bus.Subscription, error)

// registry reference-counts local interest per subject and owns exactly
// one bus subscription per subject while interest remains. One instance
// exists per routing category (connections, groups, users); a single
// mutex serializes all mutations of an instance so a subscribe and an
// unsubscribe for the same subject can never race. Group and connection
// churn is not the hot path, so correctness wins over per-subject
// parallelism here.
type registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	conns map[string]*tracked
	sub   bus.Subscription
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*registryEntry)}
}

// addInterest registers the connection's interest in subject, opening the
// bus subscription on first interest. A connection that is already going
// away is skipped; the check happens under the registry lock so it cannot
// race the disconnect path tearing the same connection down. A failed
// subscribe leaves no phantom entry behind.
func (r *registry) addInterest(subject string, conn *tracked, subscribe subscribeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.aborted() {
		return nil
	}

	e, ok := r.entries[subject]
	if !ok {
		sub, err := subscribe(subject)
		if err != nil {
			return err
		}
		e = &registryEntry{conns: make(map[string]*tracked), sub: sub}
		r.entries[subject] = e
	}
	e.conns[conn.ID()] = conn
	return nil
}

// removeInterest drops the connection's interest in subject, closing the
// bus subscription once nobody is left. Removing interest that was never
// added is a no-op.
func (r *registry) removeInterest(subject string, conn *tracked) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[subject]
	if !ok {
		return nil
	}
	delete(e.conns, conn.ID())
	if len(e.conns) > 0 {
		return nil
	}
	delete(r.entries, subject)
	return e.sub.Unsubscribe()
}

// interested snapshots the connections currently interested in subject.
func (r *registry) interested(subject string) []*tracked {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[subject]
	if !ok {
		return nil
	}
	out := make([]*tracked, 0, len(e.conns))
	for _, t := range e.conns {
		out = append(out, t)
	}
	return out
}

func (r *registry) subjectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
