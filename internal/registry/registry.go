// Package registry holds the static trait dimension definitions.
// Definitions are loaded once at process start and never mutated.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Dimension is one axis of the trait matrix.
type Dimension struct {
	ID               string   `json:"id"`
	Name             string   `json:"attribute_name"`
	Definition       string   `json:"definition"`
	CanonicalTags    []string `json:"attribute_meta_tags"`
	ScoringGuideline string   `json:"ai_parsing_guidelines"`
}

// Registry is a read-only lookup of dimension definitions.
type Registry struct {
	byID  map[string]Dimension
	order []string // ids sorted ascending, for deterministic iteration
}

// New builds a Registry from the given dimensions, validating that ids
// are unique and every canonical tag set is non-empty.
func New(dims []Dimension) (*Registry, error) {
	byID := make(map[string]Dimension, len(dims))
	for _, d := range dims {
		if d.ID == "" {
			return nil, fmt.Errorf("dimension %q: empty id", d.Name)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("dimension %s: duplicate id", d.ID)
		}
		if len(d.CanonicalTags) == 0 {
			return nil, fmt.Errorf("dimension %s: no canonical tags", d.ID)
		}
		byID[d.ID] = d
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	sort.Strings(order)

	return &Registry{byID: byID, order: order}, nil
}

// Load reads dimension metadata from a JSON file. The file maps
// dimension id to definition, matching the upstream metadata layout.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var raw map[string]Dimension
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}

	dims := make([]Dimension, 0, len(raw))
	for id, d := range raw {
		d.ID = id
		dims = append(dims, d)
	}
	return New(dims)
}

// Get returns the dimension for id, or false if unknown.
func (r *Registry) Get(id string) (Dimension, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every dimension in ascending id order.
func (r *Registry) All() []Dimension {
	dims := make([]Dimension, 0, len(r.order))
	for _, id := range r.order {
		dims = append(dims, r.byID[id])
	}
	return dims
}

// Len returns the number of registered dimensions.
func (r *Registry) Len() int {
	return len(r.byID)
}
