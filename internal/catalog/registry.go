// Package catalog holds the run types the engine can instantiate.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mpataki/cadence/internal/models"
)

// Registry maps run type ids to validated, immutable run types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*models.RunType
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*models.RunType)}
}

// Load builds a registry from the built-in run types plus any files found in
// dirs. Files win over built-ins with the same id.
func Load(dirs []string) (*Registry, error) {
	r := NewRegistry()
	for _, rt := range Builtin() {
		if err := r.Register(rt); err != nil {
			return nil, err
		}
	}

	found, err := LoadAll(dirs)
	if err != nil {
		return nil, err
	}
	for _, rt := range found {
		if err := r.Register(rt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates rt and stores a private copy of it, replacing any run
// type with the same id.
func (r *Registry) Register(rt *models.RunType) error {
	if rt == nil {
		return fmt.Errorf("run type is nil")
	}
	if err := Validate(rt); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[rt.ID] = normalize(rt)
	return nil
}

// Lookup returns the run type with the given id. The result is shared and
// must not be modified.
func (r *Registry) Lookup(id string) (*models.RunType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[id]
	return rt, ok
}

// List returns copies of all run types ordered by id.
func (r *Registry) List() []*models.RunType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]*models.RunType, 0, len(r.types))
	for _, rt := range r.types {
		types = append(types, normalize(rt))
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types
}
