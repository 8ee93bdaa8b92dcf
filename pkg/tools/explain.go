package tools

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	explainOps       = []string{"find", "count", "aggregate"}
	explainVerbosity = []string{"queryPlanner", "executionStats", "allPlansExecution"}
	defaultVerbosity = "queryPlanner"
)

// ExplainTool surfaces the query planner's view of a find, count or
// aggregate, so slow planner-issued queries can be diagnosed without writes.
type ExplainTool struct {
	store Store
}

// NewExplainTool creates the explain tool.
func NewExplainTool(store Store) *ExplainTool {
	return &ExplainTool{store: store}
}

func (t *ExplainTool) Name() string     { return "explain" }
func (t *ExplainTool) Category() string { return "read" }

func (t *ExplainTool) Description() string {
	return "Explain the execution plan of a find, count or aggregate operation."
}

func (t *ExplainTool) Parameters() ParamSpec {
	return ParamSpec{
		"database": {
			Type:        TypeString,
			Description: "Database to explain against; omitted means the tenant database.",
			Pattern:     nameRe,
		},
		"collection": {
			Type:        TypeString,
			Description: "Collection name.",
			Required:    true,
			Pattern:     nameRe,
		},
		"operation": {
			Type:        TypeString,
			Description: describeEnum(explainOps),
			Required:    true,
			Enum:        explainOps,
		},
		"filter": {
			Type:        TypeObject,
			Description: "Filter for find/count.",
		},
		"pipeline": {
			Type:        TypeArray,
			Description: "Pipeline for aggregate.",
		},
		"verbosity": {
			Type:        TypeString,
			Description: describeEnum(explainVerbosity),
			Enum:        explainVerbosity,
			Default:     defaultVerbosity,
		},
	}
}

func (t *ExplainTool) Execute(ctx context.Context, inv *Invocation) (any, error) {
	collection := asString(inv.Args, "collection")
	operation := asString(inv.Args, "operation")
	verbosity := asString(inv.Args, "verbosity")
	if verbosity == "" {
		verbosity = defaultVerbosity
	}

	filter := argDoc(inv.Args, "filter")
	if filter == nil {
		filter = map[string]any{}
	}

	var explained any
	switch operation {
	case "find":
		explained = bson.D{{Key: "find", Value: collection}, {Key: "filter", Value: filter}}
	case "count":
		explained = bson.D{{Key: "count", Value: collection}, {Key: "query", Value: filter}}
	case "aggregate":
		pipeline := toPipeline(inv.Args["pipeline"])
		if len(pipeline) == 0 {
			return nil, NewValidationError("explain of an aggregate requires a pipeline")
		}
		explained = bson.D{
			{Key: "aggregate", Value: collection},
			{Key: "pipeline", Value: pipeline},
			{Key: "cursor", Value: bson.M{}},
		}
	}

	slog.Debug("explain", "database", inv.Database, "collection", collection, "operation", operation)

	plan, err := t.store.Explain(ctx, inv.Database, bson.D{
		{Key: "explain", Value: explained},
		{Key: "verbosity", Value: verbosity},
	})
	if err != nil {
		return nil, fmt.Errorf("explain %s on %s.%s: %w", operation, inv.Database, collection, err)
	}
	return map[string]any{"result": plan}, nil
}
