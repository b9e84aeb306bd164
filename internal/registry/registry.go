package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"securechat/internal/domain"
)

// ErrDuplicateID is returned when an entry with the same ConnID is already
// registered.
var ErrDuplicateID = errors.New("registry: duplicate connection id")

// Registry implements domain.Registry.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.ConnID]domain.ConnectionEntry
	max     int
}

var _ domain.Registry = (*Registry)(nil)

// New returns an empty registry admitting at most max entries.
func New(max int) *Registry {
	return &Registry{
		entries: make(map[domain.ConnID]domain.ConnectionEntry, max),
		max:     max,
	}
}

// Register adds entry. The capacity check and the insert are one atomic
// step, so concurrent registrations never exceed Cap.
func (r *Registry) Register(entry domain.ConnectionEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
	}
	if len(r.entries) >= r.max {
		return fmt.Errorf("%w: %d/%d connections", domain.ErrCapacity, len(r.entries), r.max)
	}
	r.entries[entry.ID] = entry
	return nil
}

// Unregister removes id and returns the removed entry. Only the first call
// for a given id reports true.
func (r *Registry) Unregister(id domain.ConnID) (domain.ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

// Snapshot returns a copy of the current entries ordered by ID.
func (r *Registry) Snapshot() []domain.ConnectionEntry {
	r.mu.Lock()
	out := make([]domain.ConnectionEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NameInUse reports whether a registered entry already carries name.
func (r *Registry) NameInUse(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) Cap() int { return r.max }
