// Package registry holds executor descriptors and answers capability queries.
package registry

import (
	"context"
	"sync"

	"github.com/ShayCichocki/relay/pkg/models"
)

// Executor is the uniform contract every executor backend implements.
// Implementations report failure through the returned WorkResult.
type Executor interface {
	Execute(ctx context.Context, work models.UnitOfWork) models.WorkResult
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, work models.UnitOfWork) models.WorkResult

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, work models.UnitOfWork) models.WorkResult {
	return f(ctx, work)
}

type entry struct {
	desc models.ExecutorDescriptor
	exec Executor
}

// Registry is a thread-safe, registration-ordered set of executors keyed by id.
type Registry struct {
	// entries keeps registration order; index maps id to position.
	entries []*entry
	index   map[string]int
	// mu protects all fields. It is never held across an Execute call.
	mu sync.RWMutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds desc bound to exec. Re-registering an id replaces the prior
// descriptor and executor in place, keeping its original registration position.
func (r *Registry) Register(desc models.ExecutorDescriptor, exec Executor) {
	desc = cloneDescriptor(desc)
	if desc.Availability == "" {
		desc.Availability = models.AvailabilityAvailable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[desc.ID]; ok {
		r.entries[i] = &entry{desc: desc, exec: exec}
		return
	}
	r.index[desc.ID] = len(r.entries)
	r.entries = append(r.entries, &entry{desc: desc, exec: exec})
}

// Unregister removes id. Returns false if it was not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].desc.ID] = j
	}
	return true
}

// Get returns the descriptor registered under id.
func (r *Registry) Get(id string) (models.ExecutorDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return models.ExecutorDescriptor{}, false
	}
	return cloneDescriptor(r.entries[i].desc), true
}

// Executor returns the backend bound to id, or nil when id is unknown or
// was registered without one.
func (r *Registry) Executor(id string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	return r.entries[i].exec
}

// FindByCapability returns every descriptor listing tag, in registration order.
func (r *Registry) FindByCapability(tag string) []models.ExecutorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ExecutorDescriptor
	for _, e := range r.entries {
		if e.desc.HasCapability(tag) {
			out = append(out, cloneDescriptor(e.desc))
		}
	}
	return out
}

// FindBestMatch returns the descriptor satisfying the most of required.
// Only a strictly higher score displaces the current best, so ties go to the
// earliest registration and a zero score never matches.
// Availability is not considered.
func (r *Registry) FindBestMatch(required []string) (models.ExecutorDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *entry
	bestScore := 0
	for _, e := range r.entries {
		if s := Score(required, e.desc.Capabilities); s > bestScore {
			best, bestScore = e, s
		}
	}
	if best == nil {
		return models.ExecutorDescriptor{}, false
	}
	return cloneDescriptor(best.desc), true
}

// IsAvailable reports whether id is registered with availability "available".
func (r *Registry) IsAvailable(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	return ok && r.entries[i].desc.Availability == models.AvailabilityAvailable
}

// SetAvailability updates the availability of a registered executor.
// Returns false if id is unknown.
func (r *Registry) SetAvailability(id string, a models.Availability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.entries[i].desc.Availability = a
	return true
}

// All returns every descriptor in registration order.
func (r *Registry) All() []models.ExecutorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ExecutorDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneDescriptor(e.desc))
	}
	return out
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func cloneDescriptor(d models.ExecutorDescriptor) models.ExecutorDescriptor {
	if d.Capabilities != nil {
		d.Capabilities = append([]string(nil), d.Capabilities...)
	}
	return d
}
