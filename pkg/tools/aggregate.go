package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homelead/askdb/pkg/schema"
)

var statOps = []string{"avg", "sum", "min", "max"}

// AggregateTool builds and runs aggregation pipelines. Callers either supply
// a full pipeline or describe the aggregation with groupBy/statField/statOp
// and the tool assembles the stages.
type AggregateTool struct {
	store    Store
	registry *schema.Registry
}

// NewAggregateTool creates the aggregate tool.
func NewAggregateTool(store Store, registry *schema.Registry) *AggregateTool {
	return &AggregateTool{store: store, registry: registry}
}

func (t *AggregateTool) Name() string     { return "aggregate" }
func (t *AggregateTool) Category() string { return "read" }

func (t *AggregateTool) Description() string {
	return "Run an aggregation: a custom pipeline, a grouped statistic, or a grouped count."
}

func (t *AggregateTool) Parameters() ParamSpec {
	limitMin := 1
	return ParamSpec{
		"database": {
			Type:        TypeString,
			Description: "Database to query; omitted means the tenant database.",
			Pattern:     nameRe,
		},
		"collection": {
			Type:        TypeString,
			Description: "Collection to aggregate.",
			Required:    true,
			Pattern:     nameRe,
		},
		"pipeline": {
			Type:        TypeArray,
			Description: "Full custom aggregation pipeline.",
		},
		"groupBy": {
			Type:        TypeStringOrArray,
			Description: "Field or fields to group by.",
		},
		"statField": {
			Type:        TypeString,
			Description: "Field for the statistical operation, e.g. maxBudget.",
		},
		"statOp": {
			Type:        TypeString,
			Description: describeEnum(statOps),
		},
		"filter": {
			Type:        TypeObject,
			Description: "Additional match filter.",
		},
		"sortBy": {
			Type:        TypeString,
			Description: "Field to sort results by.",
		},
		"sortDir": {
			Type:        TypeString,
			Description: "asc or desc.",
			Enum:        []string{"asc", "desc"},
			Default:     "desc",
		},
		"limit": {
			Type:        TypeInteger,
			Description: "Maximum documents to return.",
			Minimum:     &limitMin,
			Default:     100,
		},
		"allowDiskUse": {
			Type:        TypeBoolean,
			Description: "Allow disk use for large pipelines.",
			Default:     false,
		},
	}
}

func (t *AggregateTool) Execute(ctx context.Context, inv *Invocation) (any, error) {
	collection := asString(inv.Args, "collection")
	userPipeline := toPipeline(inv.Args["pipeline"])
	groupBy := groupByFields(inv.Args["groupBy"])
	statField := asString(inv.Args, "statField")
	statOp := strings.ToLower(asString(inv.Args, "statOp"))

	if len(userPipeline) == 0 && len(groupBy) == 0 && statField == "" {
		return nil, NewValidationError("provide at least one of 'pipeline', 'groupBy' or 'statField'")
	}
	if statOp != "" && !containsString(statOps, statOp) {
		return nil, NewValidationError("unsupported statOp %q; %s", statOp, describeEnum(statOps))
	}

	for i, field := range groupBy {
		groupBy[i] = t.registry.NormalizeField(collection, field)
	}
	if statField != "" {
		statField = t.registry.NormalizeField(collection, statField)
	}

	// Stage 0: the tenant-scoped match, with ISO-8601 strings turned into
	// real dates so range predicates compare as dates rather than strings.
	filter := argDoc(inv.Args, "filter")
	if filter == nil {
		filter = map[string]any{}
	}
	pipeline := []map[string]any{{"$match": convertISODates(filter)}}

	switch {
	case len(userPipeline) > 0:
		pipeline = append(pipeline, userPipeline...)

	case len(groupBy) > 0 && statField != "" && statOp != "":
		pipeline = append(pipeline, groupStatStages(groupBy, statField, statOp)...)

	case statField != "" && statOp != "":
		pipeline = append(pipeline,
			map[string]any{"$group": map[string]any{
				"_id":    nil,
				"result": map[string]any{"$" + statOp: "$" + statField},
			}},
			map[string]any{"$project": map[string]any{"_id": 0, "result": 1}},
		)

	case len(groupBy) > 0:
		pipeline = append(pipeline, facetCountStage(groupBy))

	default:
		pipeline = append(pipeline, map[string]any{"$count": "count"})
	}

	if !hasFacet(pipeline) {
		if sortBy := asString(inv.Args, "sortBy"); sortBy != "" {
			dir := -1
			if strings.EqualFold(asString(inv.Args, "sortDir"), "asc") {
				dir = 1
			}
			field := t.registry.NormalizeField(collection, sortBy)
			pipeline = append(pipeline, map[string]any{"$sort": map[string]any{field: dir}})
		}
		if limit := argInt(inv.Args, "limit", 100); limit > 0 {
			pipeline = append(pipeline, map[string]any{"$limit": limit})
		}
	}

	pipeline = sanitizeStageKeys(pipeline)

	start := time.Now()
	slog.Debug("aggregate", "database", inv.Database, "collection", collection, "stages", len(pipeline))

	docs, err := t.store.Aggregate(ctx, inv.Database, collection, pipeline, argBool(inv.Args, "allowDiskUse", false))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s.%s: %w", inv.Database, collection, err)
	}

	slog.Info("aggregate finished",
		"collection", collection,
		"documents", len(docs),
		"duration_ms", time.Since(start).Milliseconds())

	return map[string]any{"result": docs}, nil
}

// groupStatStages groups by one or more fields and computes one statistic,
// then promotes the _id components back to named fields.
func groupStatStages(groupBy []string, statField, statOp string) []map[string]any {
	var groupKey any
	project := map[string]any{"_id": 0, "stat": 1}
	if len(groupBy) == 1 {
		groupKey = "$" + groupBy[0]
		project["group"] = "$_id"
	} else {
		key := make(map[string]any, len(groupBy))
		for _, f := range groupBy {
			key[f] = "$" + f
			project[f] = "$_id." + f
		}
		groupKey = key
	}

	return []map[string]any{
		{"$group": map[string]any{
			"_id":  groupKey,
			"stat": map[string]any{"$" + statOp: "$" + statField},
		}},
		{"$project": project},
	}
}

// facetCountStage produces the total/byGroup facet for a bare groupBy.
func facetCountStage(groupBy []string) map[string]any {
	var groupKey any
	project := map[string]any{"count": 1, "_id": 0}
	if len(groupBy) == 1 {
		groupKey = "$" + groupBy[0]
		project["field"] = "$_id"
	} else {
		key := make(map[string]any, len(groupBy))
		for _, f := range groupBy {
			key[f] = "$" + f
			project[f] = "$_id." + f
		}
		groupKey = key
	}

	return map[string]any{"$facet": map[string]any{
		"total": []any{map[string]any{"$count": "total"}},
		"byGroup": []any{
			map[string]any{"$group": map[string]any{"_id": groupKey, "count": map[string]any{"$sum": 1}}},
			map[string]any{"$project": project},
		},
	}}
}

func groupByFields(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func hasFacet(pipeline []map[string]any) bool {
	for _, stage := range pipeline {
		if _, ok := stage["$facet"]; ok {
			return true
		}
	}
	return false
}

// sanitizeStageKeys strips whitespace from every document key, recursively.
// Planners occasionally emit artifacts like " $group".
func sanitizeStageKeys(pipeline []map[string]any) []map[string]any {
	out := make([]map[string]any, len(pipeline))
	for i, stage := range pipeline {
		out[i], _ = cleanKeys(stage).(map[string]any)
	}
	return out
}

func cleanKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[strings.TrimSpace(k)] = cleanKeys(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cleanKeys(inner)
		}
		return out
	default:
		return v
	}
}

// isoDateLayouts are accepted wherever a filter value looks like a date.
var isoDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// convertISODates parses ISO-8601 strings inside a filter into time values.
// It also looks through the case-insensitive regex wrapper the tool base
// injects, since a date literal gains nothing from regex matching.
func convertISODates(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if lit, ok := injectedLiteral(val); ok {
			if ts, ok := parseISODate(lit); ok {
				return ts
			}
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = convertISODates(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = convertISODates(inner)
		}
		return out
	case string:
		if ts, ok := parseISODate(val); ok {
			return ts
		}
		return val
	default:
		return v
	}
}

// injectedLiteral recognizes the {$regex, $options: "i"} wrapper produced by
// InjectCaseInsensitive and returns the unescaped original string.
func injectedLiteral(doc map[string]any) (string, bool) {
	if len(doc) != 2 {
		return "", false
	}
	if options, ok := doc["$options"].(string); !ok || options != "i" {
		return "", false
	}
	pattern, ok := doc["$regex"].(string)
	if !ok {
		return "", false
	}
	return unquoteMeta(pattern), true
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range isoDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
