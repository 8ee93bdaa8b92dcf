// Package chat turns natural-language questions into tool calls and
// readable answers: routing, the function-calling loop, result trimming,
// enrichment and per-tenant history.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/enrich"
	"github.com/homelead/askdb/pkg/llm"
	"github.com/homelead/askdb/pkg/schema"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/tools"
)

const charter = `You are HomeLead AI - a helpful, friendly assistant for real estate questions.

**Tools Available:**
- list_collections()
- collection_schema(collection, maxValues?)
- count(collection, filter)
- find(collection, filter, limit?)
- aggregate(collection, pipeline)
- search(term, fuzzyThreshold?)

**Guidelines:**
1. For sales queries, use the property-bookings collection.
`

const (
	emptyRetryBudget = 2

	noDataReply = "No data found - please refine your question."
	stillEmpty  = "Still no data - maybe try differently?"
)

// schemaPinnedTools are the functions whose collection argument is pinned to
// the known collection list via an enum.
var schemaPinnedTools = map[string]bool{
	"collection_schema": true,
	"count":             true,
	"find":              true,
	"aggregate":         true,
}

// Orchestrator drives one question end to end: route, plan with function
// calls, execute tools, enrich and trim results, summarize.
type Orchestrator struct {
	client   llm.Client
	router   *Router
	runner   *tools.Runner
	enricher *enrich.Enricher
	registry *schema.Registry
	sess     *session.Session
	history  *History
	cfg      config.LLMConfig

	collOnce  sync.Once
	collCache map[string]any
}

// NewOrchestrator wires the chat pipeline.
func NewOrchestrator(
	client llm.Client,
	router *Router,
	runner *tools.Runner,
	enricher *enrich.Enricher,
	registry *schema.Registry,
	sess *session.Session,
	cfg config.LLMConfig,
) *Orchestrator {
	return &Orchestrator{
		client:   client,
		router:   router,
		runner:   runner,
		enricher: enricher,
		registry: registry,
		sess:     sess,
		history:  NewHistory(),
		cfg:      cfg,
	}
}

// HandleQuery answers one question for one tenant. Turns for the same tenant
// are serialized; the returned error maps to an HTTP status via StatusFor.
func (o *Orchestrator) HandleQuery(ctx context.Context, tenantID, query string) (string, error) {
	lock := o.history.TenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.sess.SetTenant(tenantID); err != nil {
		return "", err
	}
	slog.Info("Chat started", "tenant", tenantID, "query", query)

	reply, isData := o.router.Route(ctx, tenantID, query)
	if !isData {
		o.history.Append(tenantID, query, reply)
		return reply, nil
	}
	return o.runDataPath(ctx, tenantID, query)
}

func (o *Orchestrator) runDataPath(ctx context.Context, tenantID, query string) (string, error) {
	functions := o.functionSchemas()

	collections, err := o.listCollections(ctx)
	if err != nil {
		return "", err
	}
	collectionsJSON := mustJSON(collections)

	today := time.Now().UTC().Format("2006-01-02")
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(
			"Current UTC date: %s. Use [%q,%q] for \"today\".",
			today, today+"T00:00:00Z", today+"T23:59:59Z")},
		{Role: llm.RoleSystem, Content: charter},
	}
	messages = append(messages, o.history.Turns(tenantID)...)
	messages = append(messages,
		llm.Message{Role: llm.RoleUser, Content: query},
		llm.Message{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{
			Name: "list_collections", Arguments: "{}"}},
		llm.Message{Role: llm.RoleFunction, Name: "list_collections", Content: collectionsJSON},
	)

	found := false
	retries := emptyRetryBudget

	for {
		rsp, err := o.complete(ctx, messages, functions)
		if err != nil {
			return "", err
		}

		if rsp.FunctionCall != nil {
			name := rsp.FunctionCall.Name
			args := map[string]any{}
			if raw := rsp.FunctionCall.Arguments; raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return "", tools.NewValidationError("malformed function arguments for %s: %v", name, err)
				}
			}
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, FunctionCall: rsp.FunctionCall})

			if name == "search" {
				result, empty, err := o.callTool(ctx, name, args)
				if err != nil {
					return "", err
				}
				messages = append(messages, functionResult(name, result))
				if !empty {
					// Follow the top hit with a targeted find so the planner
					// sees the full document, not just the match snippet.
					if call, findArgs, ok := topHitFindCall(result); ok {
						messages = append(messages, llm.Message{Role: llm.RoleAssistant, FunctionCall: call})
						if findResult, _, err := o.callTool(ctx, "find", findArgs); err == nil {
							messages = append(messages, functionResult("find", findResult))
						}
					}
					found = true
				}
				continue
			}

			collection, _ := args["collection"].(string)
			if schemaPinnedTools[name] && name != "collection_schema" && collection != "" {
				messages = o.prefetch(ctx, messages, collection)
			}

			result, empty, err := o.callTool(ctx, name, args)
			if err != nil {
				return "", err
			}
			messages = append(messages, functionResult(name, result))

			found = found || !empty
			if !found && retries > 0 {
				retries--
				continue
			}
			if !found {
				messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: noDataReply})
				found = true
			}
			continue
		}

		if !found && retries > 0 {
			retries--
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: stillEmpty})
			continue
		}

		reply := o.summarize(ctx, query, rsp.Content)
		o.history.Append(tenantID, query, reply)
		slog.Info("Chat finished", "tenant", tenantID)
		return reply, nil
	}
}

// prefetch injects completed collection_schema and count exchanges so the
// planner knows the field names and the collection size before its own call
// runs.
func (o *Orchestrator) prefetch(ctx context.Context, messages []llm.Message, collection string) []llm.Message {
	schemaArgs := map[string]any{"collection": collection, "maxValues": 10}
	if result, _, err := o.callTool(ctx, "collection_schema", schemaArgs); err == nil {
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{
				Name: "collection_schema", Arguments: mustJSON(schemaArgs)}},
			functionResult("collection_schema", result))
	}

	countArgs := map[string]any{"collection": collection, "filter": map[string]any{}}
	if result, _, err := o.callTool(ctx, "count", countArgs); err == nil {
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{
				Name: "count", Arguments: mustJSON(countArgs)}},
			functionResult("count", result))
	}
	return messages
}

// callTool runs one tool through the shared runner and returns the enriched,
// trimmed result with its emptiness flag.
func (o *Orchestrator) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, bool, error) {
	if name == "find" {
		coerceFilterID(args)
	}

	raw, err := o.runner.Run(ctx, name, args)
	if err != nil {
		return nil, false, err
	}

	result, ok := raw.(map[string]any)
	if !ok {
		result = map[string]any{"result": raw}
	}

	if enriched, ok := o.enricher.Enrich(ctx, result).(map[string]any); ok {
		result = enriched
	}
	trimmed := trimResult(name, result)
	return trimmed, resultIsEmpty(name, trimmed), nil
}

// coerceFilterID converts a hex-string _id filter into an ObjectId so that
// search follow-up finds match.
func coerceFilterID(args map[string]any) {
	filter, ok := args["filter"].(map[string]any)
	if !ok {
		return
	}
	if hex, ok := filter["_id"].(string); ok {
		if oid, err := primitive.ObjectIDFromHex(hex); err == nil {
			filter["_id"] = oid
		}
	}
}

func (o *Orchestrator) listCollections(ctx context.Context) (map[string]any, error) {
	var onceErr error
	o.collOnce.Do(func() {
		result, _, err := o.callTool(ctx, "list_collections", map[string]any{})
		if err != nil {
			onceErr = err
			return
		}
		o.collCache = result
	})
	if o.collCache == nil && onceErr == nil {
		onceErr = tools.NewInternalError("list_collections", fmt.Errorf("cache unavailable"))
	}
	return o.collCache, onceErr
}

func (o *Orchestrator) functionSchemas() []llm.Function {
	enabled := o.runner.Registry().Tools()
	out := make([]llm.Function, 0, len(enabled))
	for _, t := range enabled {
		params := t.Parameters().JSONSchema()
		if schemaPinnedTools[t.Name()] {
			if props, ok := params["properties"].(map[string]any); ok {
				if coll, ok := props["collection"].(map[string]any); ok {
					coll["enum"] = o.registry.Collections()
				}
			}
		}
		out = append(out, llm.Function{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	return out
}

func (o *Orchestrator) complete(ctx context.Context, messages []llm.Message, functions []llm.Function) (llm.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	defer cancel()
	return o.client.Complete(ctx, llm.Request{
		Model:     o.cfg.Model,
		Messages:  messages,
		Functions: functions,
	})
}

// summarize condenses the terminal assistant message into a short readable
// answer; on failure the raw reply is used.
func (o *Orchestrator) summarize(ctx context.Context, query, raw string) string {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	rsp, err := o.client.Complete(ctx, llm.Request{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Write a 4-6 line clear answer."},
			{Role: llm.RoleUser, Content: "Question: " + query},
			{Role: llm.RoleUser, Content: "Data: " + raw},
		},
	})
	if err != nil || strings.TrimSpace(rsp.Content) == "" {
		slog.Warn("Summarization failed, using raw reply", "error", err)
		return raw
	}
	return strings.TrimSpace(rsp.Content)
}

// topHitFindCall builds the follow-up find for the first search hit.
func topHitFindCall(result map[string]any) (*llm.FunctionCall, map[string]any, bool) {
	entries := docList(result["results"])
	if len(entries) == 0 {
		return nil, nil, false
	}
	hits := docList(entries[0]["hits"])
	if len(hits) == 0 {
		return nil, nil, false
	}
	args := map[string]any{
		"collection": entries[0]["collection"],
		"filter":     map[string]any{"_id": hits[0]["_id"]},
		"limit":      1,
	}
	return &llm.FunctionCall{Name: "find", Arguments: mustJSON(args)}, args, true
}

func functionResult(name string, result map[string]any) llm.Message {
	return llm.Message{Role: llm.RoleFunction, Name: name, Content: mustJSON(result)}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("JSON encoding failed", "error", err)
		return "{}"
	}
	return string(data)
}
