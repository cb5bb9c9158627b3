package pipeline

import (
	"maps"
	"sync"
)

// Vars is the variable store of a pipeline run. It is safe for concurrent
// use by parallel workers.
type Vars struct {
	mu   sync.RWMutex
	vals map[string]any
}

// NewVars returns an empty store.
func NewVars() *Vars {
	return &Vars{vals: make(map[string]any)}
}

// Get returns a variable.
func (v *Vars) Get(name string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.vals[name]
	return val, ok
}

// Set replaces a variable.
func (v *Vars) Set(name string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vals[name] = value
}

// Update replaces a variable with fn(old) atomically. old is nil when the
// variable does not exist.
func (v *Vars) Update(name string, fn func(old any) any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vals[name] = fn(v.vals[name])
}

// init sets the variables that are not there yet.
func (v *Vars) init(inits []varInit) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, in := range inits {
		if _, ok := v.vals[in.name]; !ok {
			v.vals[in.name] = in.value
		}
	}
}

// Snapshot returns a copy of every variable.
func (v *Vars) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.vals)
}
