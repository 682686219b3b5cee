package scheduler

import (
	"sync"
	"time"

	"github.com/hamed0406/resymon/internal/domain"
)

type entry struct {
	mon      *domain.Monitor
	gen      uint64 // bumped whenever Add replaces the record
	inFlight bool
}

// claim is a working copy handed to one checker invocation.
type claim struct {
	id   domain.MonitorID
	e    *entry
	gen  uint64
	work domain.Monitor
}

// Registry is the authoritative in-memory store of monitors. Records never
// leave it by reference: readers get clones and the poll loop commits
// checker results back under the lock.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.MonitorID]*entry
	order   []domain.MonitorID
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.MonitorID]*entry)}
}

// Add inserts m or replaces the record with the same ID, keeping its position.
func (r *Registry) Add(m domain.Monitor) {
	c := m.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[m.ID]; ok {
		e.mon = &c
		e.gen++
		return
	}
	r.entries[m.ID] = &entry{mon: &c}
	r.order = append(r.order, m.ID)
}

// Remove deletes the record; unknown ids are ignored.
func (r *Registry) Remove(id domain.MonitorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// List returns independent copies of every record in insertion order.
func (r *Registry) List() []domain.Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Monitor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].mon.Clone())
	}
	return out
}

func (r *Registry) Get(id domain.MonitorID) (domain.Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.Monitor{}, false
	}
	return e.mon.Clone(), true
}

// SetActive toggles the active flag; unknown ids are ignored.
func (r *Registry) SetActive(id domain.MonitorID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.mon.Active = active
	}
}

// Counts reports active and paused monitors.
func (r *Registry) Counts() (active, paused int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.mon.Active {
			active++
		} else {
			paused++
		}
	}
	return active, paused
}

// claimDue marks up to limit due, idle, active monitors as in flight and
// returns working copies of them in registry order.
func (r *Registry) claimDue(now time.Time, interval time.Duration, limit int) []claim {
	if limit <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []claim
	for _, id := range r.order {
		e := r.entries[id]
		if !e.mon.Active || e.inFlight || !e.mon.Due(now, interval) {
			continue
		}
		e.inFlight = true
		out = append(out, claim{id: id, e: e, gen: e.gen, work: e.mon.Clone()})
		if len(out) == limit {
			break
		}
	}
	return out
}

// commit stores a finished check. It reports false when the record was
// removed or replaced while the check ran; the result is dropped then.
// The active flag only ever moves to false here so a pause issued during
// the check is kept.
func (r *Registry) commit(c claim, work domain.Monitor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[c.id]
	if !ok || e != c.e {
		return false
	}
	e.inFlight = false
	if e.gen != c.gen {
		return false
	}
	active := e.mon.Active && work.Active
	*e.mon = work
	e.mon.Active = active
	return true
}
