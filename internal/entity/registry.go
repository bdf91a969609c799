package entity

import (
	"fmt"
	"sort"
)

// Registry holds the static descriptor set. Registration order is preserved
// for deterministic sync cycles.
type Registry struct {
	byName map[string]*Descriptor
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register validates and adds a descriptor. Duplicate names are rejected.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("descriptor %q already registered", d.Name)
	}

	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns the named descriptor.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown descriptor %q", name)
	}
	return d, nil
}

// All returns descriptors in registration order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Counted returns the descriptors feeding the pendingAnswers counter,
// sorted by name for stable counting.
func (r *Registry) Counted() []*Descriptor {
	var out []*Descriptor
	for _, d := range r.byName {
		if d.Counted {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry registers the four field-service entity types.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, d := range []*Descriptor{
		WorkOrderTypes(),
		ChecklistAnswers(),
		Signatures(),
		WorkOrderNotes(),
	} {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}
