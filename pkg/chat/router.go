package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/llm"
)

// dataSentinel is the exact reply that routes a query to the data path.
const dataSentinel = `{"route":"data"}`

const routerPrompt = `You are HomeLead AI, a smart assistant for real estate companies.

ROUTING DECISION:
If the user wants DATA/INFORMATION from the HomeLead system, respond EXACTLY:
{"route":"data"}

DATA QUERIES include:
- Numbers/counts: 'how many leads', 'total properties', 'lead count', 'kitne', 'count'
- Listings: 'show properties', 'list leads', 'display bookings'
- Status checks: 'converted leads', 'ongoing bookings', 'active tenants'
- Searches: 'find property', 'search leads', 'get contact details'
- Analytics: 'sales report', 'conversion rate', 'statistics'
- Follow-ups: 'and converted?', 'what about ongoing?', 'pending ones?'
- ANY business data request in ANY language

CHAT QUERIES (respond naturally as HomeLead AI):
- Greetings: 'hi', 'hello', 'namaste'
- Small talk: 'how are you', 'what can you do'
- Acknowledgments: 'ok', 'fine', 'thanks'
- General questions about HomeLead capabilities

IMPORTANT RULES:
1. Be VERY generous with data routing - when in doubt, route to data
2. Short queries after data questions are usually follow-ups, route those to data
3. Support multiple languages (English, Hindi, Punjabi, etc.)
4. For natural chat, be helpful and friendly, mention HomeLead capabilities
`

const (
	routerContextTurns = 3
	routerMemoryCap    = 10
	routerTemperature  = 0.1
	routerMaxTokens    = 150
	routerTopP         = 0.9
)

type routeRecord struct {
	query string
	kind  string // "data" or "chat"
}

// Router classifies a query as a data request or plain chat. It remembers
// recent classifications per tenant so short follow-ups route correctly, and
// degrades to a keyword heuristic when the model is unreachable.
type Router struct {
	client llm.Client
	cfg    config.LLMConfig

	mu     sync.Mutex
	memory map[string][]routeRecord
}

// NewRouter creates the router.
func NewRouter(client llm.Client, cfg config.LLMConfig) *Router {
	return &Router{client: client, cfg: cfg, memory: map[string][]routeRecord{}}
}

// Route returns (reply, true) when the query routed to the data path, or
// (chat reply, false) when the router answered directly.
func (r *Router) Route(ctx context.Context, tenantID, query string) (string, bool) {
	recent := r.recent(tenantID)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RouterTimeout())
	defer cancel()

	reply, err := r.client.Complete(ctx, llm.Request{
		Model: r.cfg.RouterModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: routerPrompt + contextBlock(recent)},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: routerTemperature,
		MaxTokens:   routerMaxTokens,
		TopP:        routerTopP,
	})
	if err != nil {
		slog.Warn("Router model unavailable, using keyword fallback", "error", err)
		return r.fallback(tenantID, query, recent)
	}

	content := strings.TrimSpace(reply.Content)
	if strings.Contains(content, `"route":"data"`) {
		r.remember(tenantID, query, "data")
		return dataSentinel, true
	}
	r.remember(tenantID, query, "chat")
	return content, false
}

func contextBlock(recent []routeRecord) string {
	if len(recent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nRECENT CONVERSATION CONTEXT:\n")
	for i, rec := range recent {
		fmt.Fprintf(&b, "%d. User: %q (was: %s)\n", i+1, rec.query, rec.kind)
	}
	b.WriteString("\nUse this context to understand follow-up questions.\n")
	return b.String()
}

var dataKeywords = []string{
	"count", "how many", "kitne", "total", "number", "ginti",
	"list", "show", "display", "batao", "dikhao",
	"converted", "ongoing", "active", "pending", "completed",
	"lead", "property", "tenant", "booking", "contact", "sale",
	"find", "average", "report",
}

var followupPatterns = []string{"and", "what about", "how about", "pending", "active", "converted"}

var greetings = []string{"hi", "hello", "hey", "namaste", "ram", "how are"}

// fallback is the deterministic classification used when the router model
// cannot be reached.
func (r *Router) fallback(tenantID, query string, recent []routeRecord) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))

	for _, kw := range dataKeywords {
		if strings.Contains(lower, kw) {
			r.remember(tenantID, query, "data")
			return dataSentinel, true
		}
	}

	lastWasData := len(recent) > 0 && recent[len(recent)-1].kind == "data"
	if lastWasData && len(strings.Fields(query)) <= 3 {
		for _, p := range followupPatterns {
			if strings.Contains(lower, p) {
				r.remember(tenantID, query, "data")
				return dataSentinel, true
			}
		}
	}

	r.remember(tenantID, query, "chat")
	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return "Hello! I'm HomeLead AI, ready to help with your real estate data and queries. What would you like to know?", false
		}
	}
	return "I'm here to help! You can ask me about leads, properties, bookings, or any HomeLead data. What do you need?", false
}

func (r *Router) recent(tenantID string) []routeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.memory[tenantID]
	if len(records) > routerContextTurns {
		records = records[len(records)-routerContextTurns:]
	}
	out := make([]routeRecord, len(records))
	copy(out, records)
	return out
}

func (r *Router) remember(tenantID, query, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := append(r.memory[tenantID], routeRecord{query: query, kind: kind})
	if len(records) > routerMemoryCap {
		records = records[len(records)-routerMemoryCap:]
	}
	r.memory[tenantID] = records
}
