package storage

import (
	"fmt"
	"sync"
)

// ConstraintSet tracks unique (label, property) constraints for the embedded
// engines and the values currently claimed under them.
//
// Callers hold their own engine lock while checking and registering, so a
// check followed by a register is atomic with respect to other writers of the
// same engine.
type ConstraintSet struct {
	mu          sync.RWMutex
	constraints map[string][]string // label -> unique properties
	values      map[string]string   // label\x00property\x00valueKey -> vertex id
}

// NewConstraintSet creates a set enforcing the given constraints.
func NewConstraintSet(constraints ...UniqueConstraint) *ConstraintSet {
	cs := &ConstraintSet{
		constraints: make(map[string][]string),
		values:      make(map[string]string),
	}
	for _, c := range constraints {
		cs.Add(c)
	}
	return cs
}

// Add registers a constraint. Adding the same constraint twice is a no-op.
func (cs *ConstraintSet) Add(c UniqueConstraint) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, p := range cs.constraints[c.Label] {
		if p == c.Property {
			return
		}
	}
	cs.constraints[c.Label] = append(cs.constraints[c.Label], c.Property)
}

// Properties returns the unique properties of a label.
func (cs *ConstraintSet) Properties(label string) []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return append([]string(nil), cs.constraints[label]...)
}

// Check returns an ErrAlreadyExists-wrapping error if any unique property in
// props is already claimed by a vertex other than exclude.
func (cs *ConstraintSet) Check(label string, props map[string]any, exclude string) error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, p := range cs.constraints[label] {
		v, ok := props[p]
		if !ok {
			continue
		}
		if owner, taken := cs.values[uniqueKey(label, p, v)]; taken && owner != exclude {
			return fmt.Errorf("%w: %s with %s = %v", ErrAlreadyExists, label, p, v)
		}
	}
	return nil
}

// Register claims the unique values in props for vertex id.
func (cs *ConstraintSet) Register(label string, props map[string]any, id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, p := range cs.constraints[label] {
		if v, ok := props[p]; ok {
			cs.values[uniqueKey(label, p, v)] = id
		}
	}
}

// Unregister releases the unique values in props if they belong to id.
func (cs *ConstraintSet) Unregister(label string, props map[string]any, id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, p := range cs.constraints[label] {
		v, ok := props[p]
		if !ok {
			continue
		}
		key := uniqueKey(label, p, v)
		if cs.values[key] == id {
			delete(cs.values, key)
		}
	}
}

func uniqueKey(label, property string, value any) string {
	return label + "\x00" + property + "\x00" + valueKey(value)
}
