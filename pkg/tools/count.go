package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// CountTool counts documents matching a tenant-scoped filter.
type CountTool struct {
	store Store
}

// NewCountTool creates the count tool.
func NewCountTool(store Store) *CountTool {
	return &CountTool{store: store}
}

func (t *CountTool) Name() string     { return "count" }
func (t *CountTool) Category() string { return "read" }

func (t *CountTool) Description() string {
	return "Count documents in a collection matching a filter."
}

func (t *CountTool) Parameters() ParamSpec {
	return ParamSpec{
		"database": {
			Type:        TypeString,
			Description: "Database to query; omitted means the tenant database.",
			Pattern:     nameRe,
		},
		"collection": {
			Type:        TypeString,
			Description: "Collection to count.",
			Required:    true,
			Pattern:     nameRe,
		},
		"filter": {
			Type:        TypeObject,
			Description: "MongoDB query filter.",
		},
	}
}

func (t *CountTool) Execute(ctx context.Context, inv *Invocation) (any, error) {
	collection := asString(inv.Args, "collection")
	filter := argDoc(inv.Args, "filter")

	slog.Debug("count", "database", inv.Database, "collection", collection)

	n, err := t.store.Count(ctx, inv.Database, collection, filter)
	if err != nil {
		return nil, fmt.Errorf("count %s.%s: %w", inv.Database, collection, err)
	}
	return map[string]any{"result": n}, nil
}
