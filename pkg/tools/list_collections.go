package tools

import (
	"context"

	"github.com/homelead/askdb/pkg/schema"
)

// ListCollectionsTool returns the curated, static collection list. The list
// is advertised to the planner as an enum so it cannot hallucinate
// collections; dynamic discovery is deliberately avoided.
type ListCollectionsTool struct {
	registry *schema.Registry
}

// NewListCollectionsTool creates the list_collections tool.
func NewListCollectionsTool(registry *schema.Registry) *ListCollectionsTool {
	return &ListCollectionsTool{registry: registry}
}

func (t *ListCollectionsTool) Name() string     { return "list_collections" }
func (t *ListCollectionsTool) Category() string { return "read" }

func (t *ListCollectionsTool) Description() string {
	return "List the collections available for querying."
}

func (t *ListCollectionsTool) Parameters() ParamSpec {
	return ParamSpec{
		"database": {
			Type:        TypeString,
			Description: "Ignored; the collection list is static.",
			Pattern:     nameRe,
		},
	}
}

func (t *ListCollectionsTool) Execute(_ context.Context, _ *Invocation) (any, error) {
	return map[string]any{"result": t.registry.Collections()}, nil
}
