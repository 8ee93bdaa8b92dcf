package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/schema"
)

const (
	findMaxTime        = 30 * time.Second
	maxCollectionsScan = 100
	defaultFindLimit   = 10
)

// FindTool queries one collection, or scans the whitelist until a collection
// yields matches when no collection is named.
type FindTool struct {
	store    Store
	cfg      config.ToolsConfig
	registry *schema.Registry
}

// NewFindTool creates the find tool.
func NewFindTool(store Store, cfg config.ToolsConfig, registry *schema.Registry) *FindTool {
	return &FindTool{store: store, cfg: cfg, registry: registry}
}

func (t *FindTool) Name() string     { return "find" }
func (t *FindTool) Category() string { return "read" }

func (t *FindTool) Description() string {
	return "Find documents matching a filter. Omit the collection to scan the whitelist."
}

func (t *FindTool) Parameters() ParamSpec {
	skipMin, skipMax := IntRange(0, 10000)
	limitMin, limitMax := IntRange(1, 1000)
	return ParamSpec{
		"database": {
			Type:        TypeString,
			Description: "Database to query; omitted means the tenant database.",
			Pattern:     nameRe,
		},
		"collection": {
			Type:        TypeString,
			Description: "Collection to query; omitted scans multiple collections.",
			Pattern:     nameRe,
		},
		"filter": {
			Type:        TypeObject,
			Description: "MongoDB query filter.",
		},
		"projection": {
			Type:        TypeObject,
			Description: "MongoDB projection document.",
		},
		"sort": {
			Type:        TypeObject,
			Description: `Sort spec, e.g. {"createdAt": -1}.`,
		},
		"skip": {
			Type:        TypeInteger,
			Description: "Documents to skip.",
			Minimum:     skipMin,
			Maximum:     skipMax,
			Default:     0,
		},
		"limit": {
			Type:        TypeInteger,
			Description: "Maximum documents per collection.",
			Minimum:     limitMin,
			Maximum:     limitMax,
			Default:     defaultFindLimit,
		},
		"stopAfterFirst": {
			Type:        TypeBoolean,
			Description: "Stop at the first collection that yields matches.",
			Default:     true,
		},
	}
}

func (t *FindTool) Execute(ctx context.Context, inv *Invocation) (any, error) {
	start := time.Now()

	filter, _ := UnwrapExactRegex(argDoc(inv.Args, "filter")).(map[string]any)

	sort, err := parseSort(argDoc(inv.Args, "sort"))
	if err != nil {
		return nil, err
	}

	query := FindQuery{
		Filter:     filter,
		Projection: argDoc(inv.Args, "projection"),
		Sort:       sort,
		Skip:       int64(argInt(inv.Args, "skip", 0)),
		Limit:      int64(argInt(inv.Args, "limit", defaultFindLimit)),
		MaxTime:    findMaxTime,
	}

	var collections []string
	if name := asString(inv.Args, "collection"); name != "" {
		collections = []string{name}
	} else {
		collections = t.whitelist()
		if len(collections) > maxCollectionsScan {
			slog.Warn("find: limiting scan", "collections", maxCollectionsScan)
			collections = collections[:maxCollectionsScan]
		}
	}
	stopAfterFirst := argBool(inv.Args, "stopAfterFirst", true)

	var results []map[string]any
	totalDocs := 0

	for _, name := range collections {
		docs, err := t.store.Find(ctx, inv.Database, name, query)
		if err != nil {
			return nil, fmt.Errorf("find %s.%s: %w", inv.Database, name, err)
		}
		if len(docs) == 0 {
			continue
		}
		results = append(results, map[string]any{
			"collection": name,
			"documents":  docs,
			"count":      len(docs),
		})
		totalDocs += len(docs)
		if stopAfterFirst {
			break
		}
	}

	durationMs := time.Since(start).Milliseconds()
	slog.Info("find finished",
		"database", inv.Database,
		"scanned", len(collections),
		"hits", totalDocs,
		"duration_ms", durationMs)

	if results == nil {
		results = []map[string]any{}
	}
	return map[string]any{
		"results":             results,
		"total_documents":     totalDocs,
		"collections_scanned": collections,
		"database":            inv.Database,
		"duration_ms":         durationMs,
	}, nil
}

// whitelist returns the collections a collection-less find may scan: the
// configured allow-list, or the curated registry when unrestricted.
func (t *FindTool) whitelist() []string {
	if !t.cfg.AllowsAllCollections() {
		return t.cfg.AllowedCollections
	}
	return t.registry.Collections()
}

func parseSort(doc map[string]any) (bson.D, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	sort := make(bson.D, 0, len(doc))
	for field, v := range doc {
		dir, ok := asInt(v)
		if !ok || (dir != 1 && dir != -1) {
			return nil, NewValidationError("sort value for %q must be 1 or -1", field)
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	return sort, nil
}
