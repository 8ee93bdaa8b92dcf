package tools

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TenantFilter builds the predicate stamping a query with its tenant. The
// companies collection stores the tenant as its own _id; every other
// tenant-scoped collection carries a company reference.
func TenantFilter(collection string, tenant primitive.ObjectID) map[string]any {
	if collection == "companies" {
		return map[string]any{"_id": tenant}
	}
	return map[string]any{"company": tenant}
}

// ScopeFilter shallow-merges the tenant predicate into a caller filter. The
// caller's keys win on collision so an explicit company filter is preserved.
func ScopeFilter(collection string, tenant primitive.ObjectID, filter map[string]any) map[string]any {
	scoped := TenantFilter(collection, tenant)
	for k, v := range filter {
		scoped[k] = v
	}
	return scoped
}

// ScopePipeline prepends a tenant $match unless stage 0 is already a $match
// keyed by the tenant predicate.
func ScopePipeline(collection string, tenant primitive.ObjectID, pipeline []map[string]any) []map[string]any {
	predicate := TenantFilter(collection, tenant)

	if len(pipeline) > 0 {
		if match, ok := asDocument(pipeline[0]["$match"]); ok {
			for key := range predicate {
				if _, keyed := match[key]; keyed {
					return pipeline
				}
			}
		}
	}

	scoped := make([]map[string]any, 0, len(pipeline)+1)
	scoped = append(scoped, map[string]any{"$match": predicate})
	return append(scoped, pipeline...)
}

// InjectCaseInsensitive rewrites every bare string value inside a filter to
// a case-insensitive regex match, so the literal comparisons the planner
// emits behave like case-insensitive equality. Values under operator keys
// ($-prefixed) are left untouched to preserve operator semantics.
func InjectCaseInsensitive(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if strings.HasPrefix(k, "$") {
				out[k] = inner
				continue
			}
			out[k] = InjectCaseInsensitive(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = InjectCaseInsensitive(inner)
		}
		return out
	case string:
		return map[string]any{"$regex": regexp.QuoteMeta(val), "$options": "i"}
	default:
		return v
	}
}

// UnwrapExactRegex is the find tool's escape hatch for exact-match intents:
// a degenerate anchored case-insensitive regex {$regex: "^lit$", $options:
// "i"} is restored to the plain literal so it compares by equality again.
// Unanchored injected regexes pass through untouched.
func UnwrapExactRegex(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if lit, ok := exactRegexLiteral(val); ok {
			return lit
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = UnwrapExactRegex(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = UnwrapExactRegex(inner)
		}
		return out
	default:
		return v
	}
}

// exactRegexLiteral recognizes exactly {$regex: "^...$", $options: "i"} and
// returns the unescaped literal between the anchors.
func exactRegexLiteral(doc map[string]any) (string, bool) {
	if len(doc) != 2 {
		return "", false
	}
	options, ok := doc["$options"].(string)
	if !ok || options != "i" {
		return "", false
	}
	pattern, ok := doc["$regex"].(string)
	if !ok {
		return "", false
	}
	if !strings.HasPrefix(pattern, "^") || !strings.HasSuffix(pattern, "$") || len(pattern) < 2 {
		return "", false
	}
	return unquoteMeta(pattern[1 : len(pattern)-1]), true
}

// unquoteMeta reverses regexp.QuoteMeta escaping.
func unquoteMeta(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
