package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAggregate(t *testing.T, store *fakeStore, args map[string]any) {
	t.Helper()
	r := newTestRunner(t, store)
	_, err := r.Run(context.Background(), "aggregate", args)
	require.NoError(t, err)
	require.NotEmpty(t, store.lastPipe)
}

func TestAggregate_RequiresOneMode(t *testing.T) {
	r := newTestRunner(t, &fakeStore{})

	_, err := r.Run(context.Background(), "aggregate", map[string]any{"collection": "leads"})

	require.Error(t, err)
	assert.True(t, IsUserError(err))
	assert.Contains(t, err.Error(), "pipeline")
}

func TestAggregate_StageZeroIsTenantMatch(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"groupBy":    "sourceType",
	})

	match, ok := store.lastPipe[0]["$match"].(map[string]any)
	require.True(t, ok, "stage 0 must be a $match")
	tenant, _ := primitiveFromHex(t, testTenantHex)
	assert.Equal(t, tenant, match["company"])
}

func TestAggregate_GroupByFacet(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"groupBy":    "sourceType",
	})

	require.Len(t, store.lastPipe, 2, "facet pipelines get no $sort/$limit appended")
	facet, ok := store.lastPipe[1]["$facet"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, facet, "total")
	assert.Contains(t, facet, "byGroup")
}

func TestAggregate_GroupByWithStat(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"groupBy":    "sourceType",
		"statField":  "max_budget",
		"statOp":     "AVG",
	})

	group, ok := store.lastPipe[1]["$group"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "$sourceType", group["_id"])
	assert.Equal(t, map[string]any{"$avg": "$maxBudget"}, group["stat"],
		"max_budget normalizes to the canonical field name and the op lowercases")

	project, ok := store.lastPipe[2]["$project"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "$_id", project["group"])

	// sort/limit apply because no $facet is present
	last := store.lastPipe[len(store.lastPipe)-1]
	assert.Contains(t, last, "$limit")
}

func TestAggregate_GlobalStat(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"statField":  "maxBudget",
		"statOp":     "max",
	})

	group, ok := store.lastPipe[1]["$group"].(map[string]any)
	require.True(t, ok)
	assert.Nil(t, group["_id"], "a global stat groups everything into one bucket")
	assert.Equal(t, map[string]any{"$max": "$maxBudget"}, group["result"])
}

func TestAggregate_UnsupportedStatOp(t *testing.T) {
	r := newTestRunner(t, &fakeStore{})

	_, err := r.Run(context.Background(), "aggregate", map[string]any{
		"collection": "leads",
		"statField":  "maxBudget",
		"statOp":     "median",
	})

	require.Error(t, err)
	assert.True(t, IsUserError(err))
}

func TestAggregate_CustomPipelineKeysSanitized(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"pipeline": []any{
			map[string]any{" $group": map[string]any{"_id": "$leadStatus", "n": map[string]any{"$sum": 1}}},
		},
	})

	for _, stage := range store.lastPipe {
		for key := range stage {
			assert.Equal(t, key, stageKeyTrimmed(key), "stage keys carry no stray whitespace")
		}
	}
	assert.True(t, pipelineHasStage(store.lastPipe, "$group"))
}

func TestAggregate_ISODatesParsedInFilter(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"groupBy":    "sourceType",
		"filter": map[string]any{
			"createdAt": map[string]any{"$gte": "2026-01-01T00:00:00Z"},
		},
	})

	match := store.lastPipe[0]["$match"].(map[string]any)
	createdAt, ok := match["createdAt"].(map[string]any)
	require.True(t, ok)

	ts, ok := createdAt["$gte"].(time.Time)
	require.True(t, ok, "ISO-8601 strings inside the filter become dates")
	assert.Equal(t, 2026, ts.Year())
}

func TestAggregate_SortDirectionAndLimit(t *testing.T) {
	store := &fakeStore{}
	runAggregate(t, store, map[string]any{
		"collection": "leads",
		"statField":  "maxBudget",
		"statOp":     "sum",
		"groupBy":    "sourceType",
		"sortBy":     "stat",
		"sortDir":    "asc",
		"limit":      5,
	})

	n := len(store.lastPipe)
	sort, ok := store.lastPipe[n-2]["$sort"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, sort["stat"])
	assert.Equal(t, 5, store.lastPipe[n-1]["$limit"])
}

func stageKeyTrimmed(key string) string {
	for len(key) > 0 && (key[0] == ' ' || key[0] == '\t') {
		key = key[1:]
	}
	for len(key) > 0 && (key[len(key)-1] == ' ' || key[len(key)-1] == '\t') {
		key = key[:len(key)-1]
	}
	return key
}

func pipelineHasStage(pipeline []map[string]any, stage string) bool {
	for _, s := range pipeline {
		if _, ok := s[stage]; ok {
			return true
		}
	}
	return false
}
