// Package listing owns the collection view of an entity: a filter map, a
// reload flag, and a loader that guarantees only the most recent request's
// result becomes visible.
package listing

import "sort"

// FilterMap holds the active search constraints for a collection view.
// Keys are unique with last-write-wins; removal is per-key. Not safe for
// concurrent use on its own; the Controller serializes access.
type FilterMap struct {
	values       map[string]string
	singleFilter bool
}

// NewFilterMap creates an empty filter map. In single-filter mode every Set
// discards the previous constraints first.
func NewFilterMap(singleFilter bool) *FilterMap {
	return &FilterMap{
		values:       make(map[string]string),
		singleFilter: singleFilter,
	}
}

// Set stores a constraint, replacing any previous value under the same key.
func (f *FilterMap) Set(key, value string) {
	if f.singleFilter {
		f.values = make(map[string]string)
	}
	f.values[key] = value
}

// Remove clears a single constraint.
func (f *FilterMap) Remove(key string) {
	delete(f.values, key)
}

// Clear drops every constraint.
func (f *FilterMap) Clear() {
	f.values = make(map[string]string)
}

// Get returns the value for a key, with presence.
func (f *FilterMap) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of active constraints.
func (f *FilterMap) Len() int {
	return len(f.values)
}

// Values returns a copy of the constraints suitable for a query string.
func (f *FilterMap) Values() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Keys returns the constraint keys in sorted order.
func (f *FilterMap) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
