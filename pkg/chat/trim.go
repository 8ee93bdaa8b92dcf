package chat

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bigFields are media and bookkeeping fields that only waste prompt budget.
var bigFields = map[string]bool{
	"images":                true,
	"videos":                true,
	"documents":             true,
	"brochure":              true,
	"qrCode":                true,
	"govtApprovedDocuments": true,
	"layoutPlanImages":      true,
	"__v":                   true,
}

const (
	maxDocsPerResult = 15
	maxListItems     = 10
)

// toJSONSafe converts BSON leaf values into plain JSON-marshalable ones.
func toJSONSafe(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	case primitive.Binary:
		return fmt.Sprintf("<%d bytes>", len(val.Data))
	}
	return v
}

// trimDocument drops big fields and truncates lists so a document fits a
// function-result message.
func trimDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if bigFields[k] {
			continue
		}
		out[k] = trimValue(v)
	}
	return out
}

func trimValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return trimDocument(val)
	case bson.M:
		return trimDocument(map[string]any(val))
	case []any:
		return trimList(val)
	case bson.A:
		return trimList([]any(val))
	default:
		return toJSONSafe(v)
	}
}

func trimList(list []any) []any {
	if len(list) > maxListItems {
		list = list[:maxListItems]
	}
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = trimValue(item)
	}
	return out
}

// trimResult shrinks a tool result to what the planner actually needs.
func trimResult(tool string, raw map[string]any) map[string]any {
	switch tool {
	case "find":
		out := shallowCopy(raw)
		var buckets []map[string]any
		for _, bucket := range docList(raw["results"]) {
			b := shallowCopy(bucket)
			docs := anyList(bucket["documents"])
			if len(docs) > maxDocsPerResult {
				docs = docs[:maxDocsPerResult]
			}
			trimmed := make([]any, len(docs))
			for i, d := range docs {
				trimmed[i] = trimValue(d)
			}
			b["documents"] = trimmed
			buckets = append(buckets, b)
		}
		out["results"] = buckets
		return out

	case "aggregate":
		out := shallowCopy(raw)
		docs := anyList(raw["result"])
		if len(docs) > maxDocsPerResult {
			docs = docs[:maxDocsPerResult]
		}
		trimmed := make([]any, len(docs))
		for i, d := range docs {
			trimmed[i] = trimValue(d)
		}
		out["result"] = trimmed
		return out

	case "search":
		var entries []map[string]any
		for _, entry := range docList(raw["results"]) {
			hits := docList(entry["hits"])
			if len(hits) > maxDocsPerResult {
				hits = hits[:maxDocsPerResult]
			}
			outHits := make([]map[string]any, len(hits))
			for i, h := range hits {
				outHits[i] = map[string]any{
					"_id":     fmt.Sprintf("%v", toJSONSafe(h["_id"])),
					"matches": h["matches"],
				}
			}
			entries = append(entries, map[string]any{
				"collection": entry["collection"],
				"hits":       outHits,
			})
		}
		return map[string]any{"results": entries}
	}
	return raw
}

// resultIsEmpty decides whether a tool call produced anything worth showing.
func resultIsEmpty(tool string, result map[string]any) bool {
	switch tool {
	case "count":
		n, _ := toInt64(result["result"])
		return n == 0
	case "find":
		n, _ := toInt64(result["total_documents"])
		return n == 0
	case "aggregate":
		return len(anyList(result["result"])) == 0
	case "search":
		return len(docList(result["results"])) == 0
	}
	return false
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func anyList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case bson.A:
		return []any(list)
	case []map[string]any:
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out
	case []bson.M:
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out
	}
	return nil
}

func docList(v any) []map[string]any {
	var out []map[string]any
	for _, item := range anyList(v) {
		switch doc := item.(type) {
		case map[string]any:
			out = append(out, doc)
		case bson.M:
			out = append(out, map[string]any(doc))
		}
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
