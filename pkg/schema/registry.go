// Package schema holds the static collection registry: the curated set of
// collections the host exposes, their field type labels, and sample values.
//
// The registry is deliberately static. The tool schemas advertise the
// collection names as an enum so the planning LLM cannot hallucinate
// collections, and field lookups stay deterministic and cheap. Freshness is
// traded away: the bundled collections.json is versioned and updated with
// the product, not discovered from the database.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed collections.json
var collectionsJSON []byte

// Collection describes one curated collection.
type Collection struct {
	Name   string           `json:"name"`
	Fields map[string]string `json:"fields"`
	Values map[string][]any  `json:"values"`
}

type registryFile struct {
	Version     int          `json:"version"`
	Collections []Collection `json:"collections"`
}

// Registry is the immutable, process-wide schema registry. All lookups are
// lock-free after Load.
type Registry struct {
	version int
	order   []string
	byName  map[string]*Collection

	// normIndex maps collection → normalized field → canonical field, so
	// that max_budget, maxbudget and maxBudget all resolve identically.
	normIndex map[string]map[string]string
}

// Load parses the embedded collections.json.
func Load() (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(collectionsJSON, &file); err != nil {
		return nil, fmt.Errorf("parse embedded collections.json: %w", err)
	}
	if len(file.Collections) == 0 {
		return nil, fmt.Errorf("embedded collections.json lists no collections")
	}

	r := &Registry{
		version:   file.Version,
		byName:    make(map[string]*Collection, len(file.Collections)),
		normIndex: make(map[string]map[string]string, len(file.Collections)),
	}

	for i := range file.Collections {
		coll := &file.Collections[i]
		if _, dup := r.byName[coll.Name]; dup {
			continue
		}
		r.order = append(r.order, coll.Name)
		r.byName[coll.Name] = coll

		norm := make(map[string]string, len(coll.Fields))
		for field := range coll.Fields {
			norm[normalizeKey(field)] = field
		}
		r.normIndex[coll.Name] = norm
	}

	return r, nil
}

// Version returns the registry resource version.
func (r *Registry) Version() int {
	return r.version
}

// Collections returns the curated collection names in registry order.
func (r *Registry) Collections() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether the collection is in the registry.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Fields returns the field→type mapping for a collection.
func (r *Registry) Fields(name string) (map[string]string, bool) {
	coll, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return coll.Fields, true
}

// Values returns up to maxValues distinct sample values per field. Fields
// with no recorded samples map to an empty slice.
func (r *Registry) Values(name string, maxValues int) (map[string][]any, bool) {
	coll, ok := r.byName[name]
	if !ok {
		return nil, false
	}

	out := make(map[string][]any, len(coll.Fields))
	for field := range coll.Fields {
		samples := coll.Values[field]
		if maxValues >= 0 && len(samples) > maxValues {
			samples = samples[:maxValues]
		}
		out[field] = append([]any{}, samples...)
	}
	return out, true
}

// NormalizeField resolves a caller-supplied field name case- and
// underscore-insensitively against the collection's schema. Unknown fields
// (and unknown collections) pass through unchanged.
func (r *Registry) NormalizeField(collection, field string) string {
	norm, ok := r.normIndex[collection]
	if !ok {
		return field
	}
	if canonical, ok := norm[normalizeKey(field)]; ok {
		return canonical
	}
	return field
}

func normalizeKey(field string) string {
	return strings.ToLower(strings.ReplaceAll(field, "_", ""))
}
