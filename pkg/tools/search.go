package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/schema"
)

const (
	defaultFuzzyThreshold = 80

	// searchScanCap bounds the fallback full scan per collection. The scan
	// is the last escalation level and would otherwise be unbounded on
	// large collections.
	searchScanCap = 5000

	// maxMatchValueLen skips very long string values when flattening.
	maxMatchValueLen = 500
)

// SearchTool is the universal fuzzy search across the whitelist: three
// levels of $text search, then a bounded tenant scan with regex and fuzzy
// matching. It is how "who is X?" questions get resolved.
type SearchTool struct {
	store    Store
	cfg      config.ToolsConfig
	registry *schema.Registry
}

// NewSearchTool creates the search tool.
func NewSearchTool(store Store, cfg config.ToolsConfig, registry *schema.Registry) *SearchTool {
	return &SearchTool{store: store, cfg: cfg, registry: registry}
}

func (t *SearchTool) Name() string     { return "search" }
func (t *SearchTool) Category() string { return "read" }

func (t *SearchTool) Description() string {
	return "Search all collections with full-text, regex and fuzzy matching, grouped by collection."
}

func (t *SearchTool) Parameters() ParamSpec {
	min, max := IntRange(0, 100)
	return ParamSpec{
		"term": {
			Type:        TypeString,
			Description: "Search term, e.g. 'Sonu Sharma'.",
			Required:    true,
		},
		"fuzzyThreshold": {
			Type:        TypeInteger,
			Description: "Fuzzy matching threshold (0-100); higher is stricter.",
			Minimum:     min,
			Maximum:     max,
			Default:     defaultFuzzyThreshold,
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, inv *Invocation) (any, error) {
	term := strings.TrimSpace(asString(inv.Args, "term"))
	if term == "" {
		return nil, NewValidationError("search term must not be empty")
	}
	threshold := argInt(inv.Args, "fuzzyThreshold", defaultFuzzyThreshold)

	tokens := strings.Fields(term)
	fullRegex, tokenRegexes := compileTermRegexes(term, tokens)

	matcher := &fuzzyMatcher{
		term:         term,
		tokens:       tokens,
		fullRegex:    fullRegex,
		tokenRegexes: tokenRegexes,
		threshold:    threshold,
	}

	slog.Info("search started", "term", term, "threshold", threshold)

	var results []map[string]any
	for _, collection := range t.whitelist() {
		entry, err := t.searchCollection(ctx, inv, collection, term, tokens, matcher)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			results = append(results, entry)
		}
	}
	if results == nil {
		results = []map[string]any{}
	}

	slog.Info("search finished", "term", term, "collections_with_hits", len(results))
	return map[string]any{"results": results}, nil
}

func (t *SearchTool) whitelist() []string {
	if !t.cfg.AllowsAllCollections() {
		return t.cfg.AllowedCollections
	}
	return t.registry.Collections()
}

func (t *SearchTool) searchCollection(
	ctx context.Context,
	inv *Invocation,
	collection, term string,
	tokens []string,
	matcher *fuzzyMatcher,
) (map[string]any, error) {
	if err := t.store.EnsureTextIndex(ctx, inv.Database, collection); err != nil {
		slog.Warn("search: text index unavailable", "collection", collection, "error", err)
	}

	tenantFilter := map[string]any{}
	if !t.cfg.IsNonTenant(collection) {
		tenantFilter = TenantFilter(collection, inv.Tenant)
	}
	seen := map[string]bool{}
	var hits []map[string]any

	// Three $text levels: exact phrase, free text, then per token. Index
	// errors degrade to the fallback scan rather than failing the search.
	textLevels := []struct {
		query string
		path  string
	}{
		{query: `"` + term + `"`, path: "<full-text>"},
		{query: term, path: "<text-token>"},
	}
	for _, level := range textLevels {
		if len(hits) > 0 {
			break
		}
		docs, err := t.textSearch(ctx, inv.Database, collection, tenantFilter, level.query)
		if err != nil {
			slog.Debug("search: text level failed", "collection", collection, "error", err)
			continue
		}
		hits = appendHits(hits, seen, docs, level.path, term)
	}
	if len(hits) == 0 {
		for _, tok := range tokens {
			docs, err := t.textSearch(ctx, inv.Database, collection, tenantFilter, tok)
			if err != nil {
				continue
			}
			hits = appendHits(hits, seen, docs, "<token-text>", tok)
			if len(hits) > 0 {
				break
			}
		}
	}

	truncated := false
	if len(hits) == 0 {
		docs, err := t.store.Find(ctx, inv.Database, collection, FindQuery{
			Filter: tenantFilter,
			Limit:  searchScanCap,
		})
		if err != nil {
			return nil, fmt.Errorf("search scan %s.%s: %w", inv.Database, collection, err)
		}
		truncated = len(docs) >= searchScanCap

		for _, doc := range docs {
			id := doc["_id"]
			if seen[idKey(id)] {
				continue
			}
			var matches []map[string]any
			for _, pair := range flattenStrings(map[string]any(doc), "") {
				if matcher.matches(pair.value) {
					matches = append(matches, map[string]any{"path": pair.path, "snippet": pair.value})
				}
			}
			if len(matches) > 0 {
				hits = append(hits, map[string]any{"_id": id, "matches": matches})
				seen[idKey(id)] = true
			}
		}
	}

	if len(hits) == 0 {
		return nil, nil
	}
	entry := map[string]any{"collection": collection, "hits": hits}
	if truncated {
		entry["truncated"] = true
	}
	slog.Debug("search: collection hits", "collection", collection, "hits", len(hits))
	return entry, nil
}

func (t *SearchTool) textSearch(ctx context.Context, db, collection string, tenantFilter map[string]any, query string) ([]bson.M, error) {
	filter := make(map[string]any, len(tenantFilter)+1)
	for k, v := range tenantFilter {
		filter[k] = v
	}
	filter["$text"] = map[string]any{"$search": query}

	return t.store.Find(ctx, db, collection, FindQuery{
		Filter:          filter,
		SortByTextScore: true,
	})
}

func appendHits(hits []map[string]any, seen map[string]bool, docs []bson.M, path, snippet string) []map[string]any {
	for _, doc := range docs {
		id := doc["_id"]
		if seen[idKey(id)] {
			continue
		}
		hits = append(hits, map[string]any{
			"_id":     id,
			"matches": []map[string]any{{"path": path, "snippet": snippet}},
		})
		seen[idKey(id)] = true
	}
	return hits
}

func idKey(id any) string {
	return fmt.Sprintf("%v", id)
}

func compileTermRegexes(term string, tokens []string) (*regexp.Regexp, []*regexp.Regexp) {
	full := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	perToken := make([]*regexp.Regexp, len(tokens))
	for i, tok := range tokens {
		perToken[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(tok))
	}
	return full, perToken
}

type fuzzyMatcher struct {
	term         string
	tokens       []string
	fullRegex    *regexp.Regexp
	tokenRegexes []*regexp.Regexp
	threshold    int
}

func (m *fuzzyMatcher) matches(value string) bool {
	if m.fullRegex.MatchString(value) {
		return true
	}
	for _, rx := range m.tokenRegexes {
		if rx.MatchString(value) {
			return true
		}
	}
	if fuzzy.TokenSetRatio(m.term, value) >= m.threshold {
		return true
	}
	for _, tok := range m.tokens {
		if fuzzy.TokenSetRatio(tok, value) >= m.threshold {
			return true
		}
	}
	return false
}

type pathValue struct {
	path  string
	value string
}

// flattenStrings walks a document and yields every reasonably sized string
// leaf with its dotted path, for the fallback scan's matching pass.
func flattenStrings(v any, path string) []pathValue {
	switch val := v.(type) {
	case map[string]any:
		var out []pathValue
		for k, inner := range val {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			out = append(out, flattenStrings(inner, childPath)...)
		}
		return out
	case bson.M:
		return flattenStrings(map[string]any(val), path)
	case []any:
		var out []pathValue
		for i, inner := range val {
			out = append(out, flattenStrings(inner, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return out
	case bson.A:
		return flattenStrings([]any(val), path)
	case string:
		if len(val) <= maxMatchValueLen {
			return []pathValue{{path: path, value: val}}
		}
	}
	return nil
}
