package sensor

import (
	"sort"
	"sync"
	"time"
)

// Registry maps entry IDs to sensors.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]*BinarySensor
}

func NewRegistry() *Registry {
	return &Registry{sensors: map[string]*BinarySensor{}}
}

// Add registers s under its unique ID, replacing any previous sensor.
func (r *Registry) Add(s *BinarySensor) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sensors[s.UniqueID()] = s
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sensors[id]; !ok {
		return false
	}
	delete(r.sensors, id)
	return true
}

func (r *Registry) Get(id string) (*BinarySensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}

// List returns sensors ordered by name, then ID.
func (r *Registry) List() []*BinarySensor {
	r.mu.RLock()
	out := make([]*BinarySensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Name(), out[j].Name()
		if ni != nj {
			return ni < nj
		}
		return out[i].UniqueID() < out[j].UniqueID()
	})
	return out
}

// UpdateAll updates every sensor and returns the states that changed.
func (r *Registry) UpdateAll(now time.Time) []State {
	var changed []State
	for _, s := range r.List() {
		if s.Update(now) {
			changed = append(changed, s.State())
		}
	}
	return changed
}
