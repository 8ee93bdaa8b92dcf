package tools

import (
	"context"

	"github.com/homelead/askdb/pkg/schema"
)

// CollectionSchemaTool returns field type labels and sample values for one
// curated collection. Everything comes from the static registry; no live
// sampling happens, trading freshness for determinism and latency.
type CollectionSchemaTool struct {
	registry *schema.Registry
}

// NewCollectionSchemaTool creates the collection_schema tool.
func NewCollectionSchemaTool(registry *schema.Registry) *CollectionSchemaTool {
	return &CollectionSchemaTool{registry: registry}
}

func (t *CollectionSchemaTool) Name() string     { return "collection_schema" }
func (t *CollectionSchemaTool) Category() string { return "read" }

func (t *CollectionSchemaTool) Description() string {
	return "Describe a collection: field names, type labels and sample values."
}

func (t *CollectionSchemaTool) Parameters() ParamSpec {
	min, max := IntRange(0, 100)
	return ParamSpec{
		"collection": {
			Type:        TypeString,
			Description: describeEnum(t.registry.Collections()),
			Required:    true,
			Pattern:     nameRe,
		},
		"maxValues": {
			Type:        TypeInteger,
			Description: "Maximum distinct sample values to return per field.",
			Minimum:     min,
			Maximum:     max,
			Default:     10,
		},
	}
}

func (t *CollectionSchemaTool) Execute(_ context.Context, inv *Invocation) (any, error) {
	collection := asString(inv.Args, "collection")
	maxValues := argInt(inv.Args, "maxValues", 10)

	fields, ok := t.registry.Fields(collection)
	if !ok {
		return nil, NewValidationError("unknown collection %q", collection)
	}
	values, _ := t.registry.Values(collection, maxValues)

	return map[string]any{"fields": fields, "values": values}, nil
}
