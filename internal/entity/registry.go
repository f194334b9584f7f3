package entity

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cargolog/console/model"
)

// snapshot is an immutable collection of all definitions indexed by name
// and by base route.
type snapshot struct {
	byName   map[string]model.EntityDefinition
	byRoute  map[string]model.EntityDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded entity
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.EntityDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.EntityDefinition) {
	s := &snapshot{
		byName:  make(map[string]model.EntityDefinition, len(defs)),
		byRoute: make(map[string]model.EntityDefinition, len(defs)),
	}

	var checksumParts []string
	for _, def := range defs {
		s.byName[def.Entity] = def
		s.byRoute[def.BaseRoute] = def
		checksumParts = append(checksumParts, def.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the entity definition with the given name.
func (r *Registry) Get(entity string) (model.EntityDefinition, bool) {
	d, ok := r.current().byName[entity]
	return d, ok
}

// GetByRoute returns the entity definition bound to the given base route.
func (r *Registry) GetByRoute(route string) (model.EntityDefinition, bool) {
	d, ok := r.current().byRoute[route]
	return d, ok
}

// All returns all entity definitions sorted by entity name.
func (r *Registry) All() []model.EntityDefinition {
	s := r.current()
	defs := make([]model.EntityDefinition, 0, len(s.byName))
	for _, d := range s.byName {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Entity < defs[j].Entity })
	return defs
}

// Count returns the number of loaded definitions.
func (r *Registry) Count() int {
	return len(r.current().byName)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
