// Integration tests for the tool layer against a real MongoDB, exercising
// tenant scoping, case-insensitive filters, text-search escalation and
// pipeline scoping end to end through the runner.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/schema"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/telemetry"
	"github.com/homelead/askdb/pkg/tools"
	"github.com/homelead/askdb/test/mongostore"
)

var (
	tenantA = primitive.NewObjectID()
	tenantB = primitive.NewObjectID()
)

func newRunner(t *testing.T, sess *session.Session, allowed []string) *tools.Runner {
	t.Helper()

	cfg := config.DefaultConfig().Tools
	cfg.AllowedCollections = allowed

	registry, err := schema.Load()
	require.NoError(t, err)

	store := tools.NewStore(sess)
	return tools.NewRunner(sess, cfg,
		tools.NewRegistry(cfg, tools.BuiltinTools(store, cfg, registry)...),
		telemetry.NewCollector(false, 10))
}

func run(t *testing.T, runner *tools.Runner, tool string, args map[string]any) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := runner.Run(ctx, tool, args)
	require.NoError(t, err)
	result, ok := raw.(map[string]any)
	require.True(t, ok, "tool %s returned %T", tool, raw)
	return result
}

// findBuckets unpacks the per-collection buckets of a find result.
func findBuckets(t *testing.T, result map[string]any) []map[string]any {
	t.Helper()
	raw, ok := result["results"].([]map[string]any)
	require.True(t, ok, "find result has no buckets: %#v", result["results"])
	return raw
}

func TestCount_TenantIsolation(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"name": "Asha Verma", "status": "new", "company": tenantA},
		bson.M{"name": "Ravi Kumar", "status": "converted", "company": tenantA},
		bson.M{"name": "Meena Iyer", "status": "new", "company": tenantB},
	)
	runner := newRunner(t, sess, []string{"leads"})

	require.NoError(t, sess.SetTenant(tenantA.Hex()))
	result := run(t, runner, "count", map[string]any{"collection": "leads"})
	assert.EqualValues(t, 2, result["result"])

	require.NoError(t, sess.SetTenant(tenantB.Hex()))
	result = run(t, runner, "count", map[string]any{"collection": "leads"})
	assert.EqualValues(t, 1, result["result"])
}

func TestFind_CaseInsensitiveFilter(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"name": "Sonu Sharma", "email": "Sonu@X.in", "company": tenantA},
		bson.M{"name": "Sonu Sharma", "email": "Sonu@X.in", "company": tenantB},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "find", map[string]any{
		"collection": "leads",
		"filter":     map[string]any{"email": "sonu@x.in"},
	})

	// The lowercase literal matches via injected case-insensitive regex, and
	// only the current tenant's copy comes back.
	assert.EqualValues(t, 1, result["total_documents"])
	buckets := findBuckets(t, result)
	require.Len(t, buckets, 1)
	docs, ok := buckets[0]["documents"].([]bson.M)
	require.True(t, ok)
	require.Len(t, docs, 1)
	assert.Equal(t, tenantA, docs[0]["company"])
}

func TestFind_RegexSpecialCharsAreLiteral(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"name": "A+B Realty", "company": tenantA},
		bson.M{"name": "AAB Realty", "company": tenantA},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "find", map[string]any{
		"collection": "leads",
		"filter":     map[string]any{"name": "A+B Realty"},
	})

	// "+" must not act as a regex quantifier; only the literal match counts.
	assert.EqualValues(t, 1, result["total_documents"])
}

func TestSearch_FindsPersonForTenantOnly(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	wanted := primitive.NewObjectID()
	mongostore.Seed(t, sess, "leads",
		bson.M{"_id": wanted, "name": "Sonu Sharma", "email": "sonu@x.in", "company": tenantA},
		bson.M{"name": "Sonu Sharma", "email": "sonu@other.in", "company": tenantB},
		bson.M{"name": "Priya Nair", "company": tenantA},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "search", map[string]any{"term": "Sonu Sharma"})

	buckets, ok := result["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, buckets, 1, "only leads should produce hits")
	assert.Equal(t, "leads", buckets[0]["collection"])

	hits, ok := buckets[0]["hits"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, hits, 1, "tenant B's Sonu Sharma must not appear")
	assert.Equal(t, wanted, hits[0]["_id"])
}

func TestAggregate_PipelineScopedToTenant(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"status": "new", "company": tenantA},
		bson.M{"status": "new", "company": tenantA},
		bson.M{"status": "converted", "company": tenantA},
		bson.M{"status": "new", "company": tenantB},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "aggregate", map[string]any{
		"collection": "leads",
		"pipeline": []any{
			map[string]any{"$group": map[string]any{
				"_id":   "$status",
				"count": map[string]any{"$sum": 1},
			}},
			map[string]any{"$sort": map[string]any{"_id": 1}},
		},
	})

	docs, ok := result["result"].([]bson.M)
	require.True(t, ok)
	require.Len(t, docs, 2)
	counts := map[string]int32{}
	for _, doc := range docs {
		counts[doc["_id"].(string)] = doc["count"].(int32)
	}
	assert.EqualValues(t, 1, counts["converted"])
	assert.EqualValues(t, 2, counts["new"], "tenant B's lead must not be counted")
}

func TestNonTenantCollection_SharedAcrossTenants(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "countries",
		bson.M{"name": "India", "code": "IN"},
		bson.M{"name": "United Arab Emirates", "code": "AE"},
	)
	runner := newRunner(t, sess, []string{"countries"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "count", map[string]any{"collection": "countries"})
	assert.EqualValues(t, 2, result["result"], "reference data has no tenant field")
}

func TestCompanies_ScopedByDocumentID(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "companies",
		bson.M{"_id": tenantA, "name": "Acme Estates"},
		bson.M{"_id": tenantB, "name": "Beta Builders"},
	)
	runner := newRunner(t, sess, []string{"companies"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "find", map[string]any{"collection": "companies"})

	assert.EqualValues(t, 1, result["total_documents"])
	buckets := findBuckets(t, result)
	require.Len(t, buckets, 1)
	docs, ok := buckets[0]["documents"].([]bson.M)
	require.True(t, ok)
	require.Len(t, docs, 1)
	assert.Equal(t, "Acme Estates", docs[0]["name"])
}

func TestAggregate_GroupByFacet(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"source": "Broker", "company": tenantA},
		bson.M{"source": "Broker", "company": tenantA},
		bson.M{"source": "Broker", "company": tenantA},
		bson.M{"source": "Website", "company": tenantA},
		bson.M{"source": "Website", "company": tenantA},
		bson.M{"source": "Broker", "company": tenantB},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "aggregate", map[string]any{
		"collection": "leads",
		"groupBy":    "source",
	})

	docs, ok := result["result"].([]bson.M)
	require.True(t, ok)
	require.Len(t, docs, 1, "$facet yields one document")

	total, ok := docs[0]["total"].(bson.A)
	require.True(t, ok)
	require.Len(t, total, 1)
	assert.EqualValues(t, 5, total[0].(bson.M)["total"])

	byGroup, ok := docs[0]["byGroup"].(bson.A)
	require.True(t, ok)
	counts := map[string]int32{}
	for _, entry := range byGroup {
		doc := entry.(bson.M)
		counts[doc["field"].(string)] = doc["count"].(int32)
	}
	assert.EqualValues(t, 3, counts["Broker"])
	assert.EqualValues(t, 2, counts["Website"])
}

func TestCountAgreesWithFindAndAggregate(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	var docs []bson.M
	for i := 0; i < 7; i++ {
		docs = append(docs, bson.M{"source": "Broker", "company": tenantA})
	}
	docs = append(docs, bson.M{"source": "Broker", "company": tenantB})
	mongostore.Seed(t, sess, "leads", docs...)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	count := run(t, runner, "count", map[string]any{"collection": "leads"})
	assert.EqualValues(t, 7, count["result"])

	find := run(t, runner, "find", map[string]any{"collection": "leads", "limit": 100})
	assert.EqualValues(t, 7, find["total_documents"])

	agg := run(t, runner, "aggregate", map[string]any{
		"collection": "leads",
		"groupBy":    "source",
	})
	aggDocs := agg["result"].([]bson.M)
	total := aggDocs[0]["total"].(bson.A)
	assert.EqualValues(t, 7, total[0].(bson.M)["total"], "facet total agrees with count")
}

func TestSearch_TokenLevelMatchesSloppySpelling(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"name": "sonu  sharma", "company": tenantA},
		bson.M{"name": "Priya Nair", "company": tenantA},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	// The exact phrase fails against the double space; the free-text level
	// still matches both tokens.
	result := run(t, runner, "search", map[string]any{"term": "Sonu Sharma"})

	buckets, ok := result["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, buckets, 1)
	hits, ok := buckets[0]["hits"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
}

func TestExplain_WinningPlanCarriesTenantFilter(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	mongostore.Seed(t, sess, "leads",
		bson.M{"status": "new", "company": tenantA},
		bson.M{"status": "new", "company": tenantB},
	)
	runner := newRunner(t, sess, []string{"leads"})
	require.NoError(t, sess.SetTenant(tenantA.Hex()))

	result := run(t, runner, "explain", map[string]any{
		"collection": "leads",
		"operation":  "find",
		"filter":     map[string]any{"status": "new"},
	})

	plan, ok := result["result"].(bson.M)
	require.True(t, ok)
	planner, ok := plan["queryPlanner"].(bson.M)
	require.True(t, ok, "explain output has a queryPlanner section: %#v", plan)

	// The parsed query the planner saw includes the injected tenant scope.
	rendered := fmt.Sprintf("%v", planner["parsedQuery"])
	assert.Contains(t, rendered, "company")
	assert.Contains(t, rendered, tenantA.Hex())
}

func TestRunner_RequiresTenant(t *testing.T) {
	sess := mongostore.NewTestSession(t)
	runner := newRunner(t, sess, []string{"leads"})
	sess.ClearTenant()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := runner.Run(ctx, "count", map[string]any{"collection": "leads"})
	require.ErrorIs(t, err, tools.ErrTenantRequired)
}
