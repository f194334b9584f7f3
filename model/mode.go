package model

import (
	"fmt"
	"sort"
)

// Mode is the current phase of a record session. The four base modes are
// shared by every entity; entities may declare additional action modes
// (e.g. "approved", "reject", "reverse") that are reachable only from read
// and only while a guard over the record's status field holds.
type Mode string

// Base modes common to all entities.
const (
	ModeRead   Mode = "read"
	ModeInsert Mode = "insert"
	ModeEdit   Mode = "edit"
	ModeRemove Mode = "remove"
)

// IsBase reports whether m is one of the four shared base modes.
func (m Mode) IsBase() bool {
	switch m {
	case ModeRead, ModeInsert, ModeEdit, ModeRemove:
		return true
	}
	return false
}

// Mutating reports whether field values may be changed while in m.
func (m Mode) Mutating() bool {
	return m == ModeInsert || m == ModeEdit
}

// ModeSet is the full set of modes an entity supports: the base modes plus
// declared extensions. The zero value supports only the base modes.
type ModeSet struct {
	extensions map[Mode]struct{}
}

// NewModeSet builds a ModeSet with the given extension modes. Extension
// names must not collide with the base modes and must not be empty.
func NewModeSet(extensions ...Mode) (ModeSet, error) {
	set := ModeSet{extensions: make(map[Mode]struct{}, len(extensions))}
	for _, ext := range extensions {
		if ext == "" {
			return ModeSet{}, fmt.Errorf("model: empty extension mode")
		}
		if ext.IsBase() {
			return ModeSet{}, fmt.Errorf("model: extension mode %q shadows a base mode", ext)
		}
		set.extensions[ext] = struct{}{}
	}
	return set, nil
}

// Contains reports whether m is a valid mode for this set.
func (s ModeSet) Contains(m Mode) bool {
	if m.IsBase() {
		return true
	}
	_, ok := s.extensions[m]
	return ok
}

// IsExtension reports whether m is a declared extension mode of this set.
func (s ModeSet) IsExtension(m Mode) bool {
	_, ok := s.extensions[m]
	return ok
}

// Extensions returns the declared extension modes, sorted alphabetically.
func (s ModeSet) Extensions() []Mode {
	exts := make([]Mode, 0, len(s.extensions))
	for m := range s.extensions {
		exts = append(exts, m)
	}
	sort.Slice(exts, func(i, j int) bool { return exts[i] < exts[j] })
	return exts
}
