package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/enrich"
	"github.com/homelead/askdb/pkg/llm"
	"github.com/homelead/askdb/pkg/schema"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/telemetry"
	"github.com/homelead/askdb/pkg/tools"
)

const testTenantHex = "64b0f0a1a2b3c4d5e6f70001"

// scriptStore serves canned documents so the tool layer runs for real
// underneath the orchestrator.
type scriptStore struct {
	docs        map[string][]bson.M
	countResult int64
	lastFilter  map[string]any
}

func (s *scriptStore) Find(_ context.Context, _, collection string, q tools.FindQuery) ([]bson.M, error) {
	s.lastFilter = q.Filter
	return s.docs[collection], nil
}

func (s *scriptStore) Count(_ context.Context, _, _ string, filter map[string]any) (int64, error) {
	s.lastFilter = filter
	return s.countResult, nil
}

func (s *scriptStore) Aggregate(context.Context, string, string, []map[string]any, bool) ([]bson.M, error) {
	return nil, nil
}

func (s *scriptStore) EnsureTextIndex(context.Context, string, string) error { return nil }

func (s *scriptStore) Explain(context.Context, string, bson.D) (bson.M, error) {
	return bson.M{}, nil
}

type nullFinder struct{}

func (nullFinder) FindOne(context.Context, string, map[string]any, map[string]any) (bson.M, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, client llm.Client, store tools.Store) *Orchestrator {
	t.Helper()

	cfg := config.DefaultConfig()
	registry, err := schema.Load()
	require.NoError(t, err)

	sess := session.NewWithClient(nil, "crm")
	runner := tools.NewRunner(sess, cfg.Tools,
		tools.NewRegistry(cfg.Tools, tools.BuiltinTools(store, cfg.Tools, registry)...),
		telemetry.NewCollector(false, 10))

	return NewOrchestrator(client, NewRouter(client, cfg.LLM), runner,
		enrich.New(nullFinder{}), registry, sess, cfg.LLM)
}

func TestHandleQuery_ChatRoute(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{assistant("Hello! I'm HomeLead AI.")}}
	o := newTestOrchestrator(t, client, &scriptStore{})

	reply, err := o.HandleQuery(context.Background(), testTenantHex, "hi")

	require.NoError(t, err)
	assert.Equal(t, "Hello! I'm HomeLead AI.", reply)
	assert.Len(t, client.requests, 1, "chat queries never reach the planner")
	assert.Len(t, o.history.Turns(testTenantHex), 2)
}

func TestHandleQuery_DataCountFlow(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{
		assistant(dataSentinel),
		functionCall("count", `{"collection":"leads","filter":{}}`),
		assistant("You have 5 leads."),
		assistant("There are 5 leads in total."),
	}}
	store := &scriptStore{countResult: 5}
	o := newTestOrchestrator(t, client, store)

	reply, err := o.HandleQuery(context.Background(), testTenantHex, "how many leads?")

	require.NoError(t, err)
	assert.Equal(t, "There are 5 leads in total.", reply)
	require.Len(t, client.requests, 4, "router, planner x2, summarizer")

	planner := client.requests[1]
	require.NotEmpty(t, planner.Functions)
	var countFn *llm.Function
	for i := range planner.Functions {
		if planner.Functions[i].Name == "count" {
			countFn = &planner.Functions[i]
		}
	}
	require.NotNil(t, countFn)
	props := countFn.Parameters["properties"].(map[string]any)
	coll := props["collection"].(map[string]any)
	assert.NotEmpty(t, coll["enum"], "the collection argument is pinned to known collections")

	var sawListCollections bool
	for _, m := range planner.Messages {
		if m.Role == llm.RoleFunction && m.Name == "list_collections" {
			sawListCollections = true
		}
	}
	assert.True(t, sawListCollections, "the synthetic list_collections exchange primes the planner")

	assert.Len(t, o.history.Turns(testTenantHex), 2)
}

func TestHandleQuery_PrefetchBeforeDataTools(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{
		assistant(dataSentinel),
		functionCall("find", `{"collection":"leads","filter":{"leadStatus":"converted"}}`),
		assistant("Found them."),
		assistant("Summary."),
	}}
	store := &scriptStore{
		countResult: 3,
		docs:        map[string][]bson.M{"leads": {{"name": "Sonu"}}},
	}
	o := newTestOrchestrator(t, client, store)

	_, err := o.HandleQuery(context.Background(), testTenantHex, "show converted leads")
	require.NoError(t, err)

	second := client.requests[2]
	var sawSchema, sawCount bool
	for _, m := range second.Messages {
		if m.Role == llm.RoleFunction && m.Name == "collection_schema" {
			sawSchema = true
		}
		if m.Role == llm.RoleFunction && m.Name == "count" {
			sawCount = true
		}
	}
	assert.True(t, sawSchema, "collection_schema is prefetched before the requested call")
	assert.True(t, sawCount, "an unfiltered count is prefetched before the requested call")
}

func TestHandleQuery_EmptyRetriesThenCannedReply(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{
		assistant(dataSentinel),
		functionCall("find", `{"collection":"leads","filter":{}}`),
		functionCall("find", `{"collection":"leads","filter":{"leadStatus":"new"}}`),
		functionCall("find", `{"collection":"leads","filter":{"leadStatus":"old"}}`),
		assistant("I could not find anything."),
		assistant("No matching data was found."),
	}}
	o := newTestOrchestrator(t, client, &scriptStore{})

	reply, err := o.HandleQuery(context.Background(), testTenantHex, "show leads")

	require.NoError(t, err)
	assert.Equal(t, "No matching data was found.", reply)

	last := client.requests[len(client.requests)-2]
	var sawCanned bool
	for _, m := range last.Messages {
		if m.Role == llm.RoleAssistant && m.Content == noDataReply {
			sawCanned = true
		}
	}
	assert.True(t, sawCanned, "after the retry budget the canned no-data reply is injected")
}

func TestHandleQuery_SearchFollowUpFind(t *testing.T) {
	leadID := primitive.NewObjectID()
	client := &scriptClient{responses: []llm.Message{
		assistant(dataSentinel),
		functionCall("search", `{"term":"Sonu Sharma"}`),
		assistant("Sonu Sharma is a converted lead."),
		assistant("Sonu Sharma: converted lead from Pune."),
	}}
	store := &scriptStore{docs: map[string][]bson.M{
		"leads": {{"_id": leadID, "name": "Sonu Sharma"}},
	}}
	o := newTestOrchestrator(t, client, store)

	reply, err := o.HandleQuery(context.Background(), testTenantHex, "who is Sonu Sharma?")

	require.NoError(t, err)
	assert.Equal(t, "Sonu Sharma: converted lead from Pune.", reply)

	assert.Equal(t, leadID, store.lastFilter["_id"],
		"the follow-up find targets the top hit with a real ObjectId")

	second := client.requests[2]
	var sawFindResult bool
	for _, m := range second.Messages {
		if m.Role == llm.RoleFunction && m.Name == "find" {
			sawFindResult = true
		}
	}
	assert.True(t, sawFindResult, "the synthesized find executes and its result feeds the planner")
}

func TestHandleQuery_ErrorMapping(t *testing.T) {
	t.Run("invalid tenant is a 400", func(t *testing.T) {
		o := newTestOrchestrator(t, &scriptClient{}, &scriptStore{})

		_, err := o.HandleQuery(context.Background(), "not-a-hex-id", "hi")

		require.Error(t, err)
		assert.Equal(t, 400, StatusFor(err))
	})

	t.Run("validation failure is a 400", func(t *testing.T) {
		client := &scriptClient{responses: []llm.Message{
			assistant(dataSentinel),
			functionCall("count", `{"collection":"no spaces"}`),
		}}
		o := newTestOrchestrator(t, client, &scriptStore{})

		_, err := o.HandleQuery(context.Background(), testTenantHex, "count leads")

		require.Error(t, err)
		assert.Equal(t, 400, StatusFor(err))
		assert.Contains(t, strings.ToLower(PublicMessage(err)), "collection")
	})

	t.Run("planner outage is a 502", func(t *testing.T) {
		client := &scriptClient{
			responses: []llm.Message{assistant(dataSentinel)},
			errs:      []error{nil, llm.ErrUnavailable},
		}
		o := newTestOrchestrator(t, client, &scriptStore{})

		_, err := o.HandleQuery(context.Background(), testTenantHex, "count leads")

		require.Error(t, err)
		assert.Equal(t, 502, StatusFor(err))
		assert.Equal(t, "LLM unavailable, please retry", PublicMessage(err))
	})
}

func TestSummarize_FallsBackToRaw(t *testing.T) {
	client := &scriptClient{errs: []error{llm.ErrUnavailable}}
	o := newTestOrchestrator(t, client, &scriptStore{})

	out := o.summarize(context.Background(), "q", "raw planner answer")

	assert.Equal(t, "raw planner answer", out)
}
