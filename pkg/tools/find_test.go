package tools

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/askdb/pkg/config"
)

func TestFind_SingleCollectionResultShape(t *testing.T) {
	store := &fakeStore{findDocs: map[string][]bson.M{
		"leads": {{"name": "Sonu Sharma"}, {"name": "Asha Verma"}},
	}}
	r := newTestRunner(t, store)

	raw, err := r.Run(context.Background(), "find", map[string]any{
		"collection": "leads",
		"filter":     map[string]any{},
	})
	require.NoError(t, err)

	result := raw.(map[string]any)
	assert.Equal(t, 2, result["total_documents"])
	assert.Equal(t, []string{"leads"}, result["collections_scanned"])
	assert.Equal(t, "crm", result["database"])

	buckets := result["results"].([]map[string]any)
	require.Len(t, buckets, 1)
	assert.Equal(t, "leads", buckets[0]["collection"])
	assert.Equal(t, 2, buckets[0]["count"])
}

func TestFind_ScanStopsAtFirstHit(t *testing.T) {
	store := &fakeStore{findDocs: map[string][]bson.M{
		"plans": {{"name": "Starter"}},
		"leads": {{"name": "Sonu"}},
	}}
	r := newTestRunner(t, store, func(cfg *config.ToolsConfig) {
		cfg.AllowedCollections = []string{"companies", "plans", "leads"}
	})

	raw, err := r.Run(context.Background(), "find", map[string]any{
		"filter": map[string]any{},
	})
	require.NoError(t, err)

	result := raw.(map[string]any)
	buckets := result["results"].([]map[string]any)
	require.Len(t, buckets, 1, "stopAfterFirst defaults to true")
	assert.Equal(t, "plans", buckets[0]["collection"], "collections scan in whitelist order")
	assert.Equal(t, 2, store.calls, "companies yields nothing, plans hits, leads is never queried")
	assert.Equal(t, []string{"companies", "plans", "leads"}, result["collections_scanned"],
		"the full candidate list is reported even when the scan stops early")
}

func TestFind_ScanAllWhenStopAfterFirstFalse(t *testing.T) {
	store := &fakeStore{findDocs: map[string][]bson.M{
		"plans": {{"name": "Starter"}},
		"leads": {{"name": "Sonu"}},
	}}
	r := newTestRunner(t, store, func(cfg *config.ToolsConfig) {
		cfg.AllowedCollections = []string{"plans", "leads"}
	})

	raw, err := r.Run(context.Background(), "find", map[string]any{
		"filter":         map[string]any{},
		"stopAfterFirst": false,
	})
	require.NoError(t, err)

	result := raw.(map[string]any)
	assert.Equal(t, 2, result["total_documents"])
	assert.Len(t, result["results"].([]map[string]any), 2)
}

func TestFind_UnwrapsExactMatchRegex(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(t, store)

	// The planner expresses an exact-match intent as an anchored regex; the
	// find tool restores the literal so equality semantics apply.
	_, err := r.Run(context.Background(), "find", map[string]any{
		"collection": "leads",
		"filter": map[string]any{
			"email": map[string]any{"$regex": "^" + regexp.QuoteMeta("sonu@x.in") + "$", "$options": "i"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "sonu@x.in", store.lastFilter["email"])
}

func TestFind_InjectedSubstringRegexSurvives(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(t, store)

	_, err := r.Run(context.Background(), "find", map[string]any{
		"collection": "leads",
		"filter":     map[string]any{"leadStatus": "converted"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"$regex": "converted", "$options": "i"}, store.lastFilter["leadStatus"],
		"base-layer injection reaches the database untouched")
}

func TestFind_SortValidation(t *testing.T) {
	r := newTestRunner(t, &fakeStore{})

	_, err := r.Run(context.Background(), "find", map[string]any{
		"collection": "leads",
		"sort":       map[string]any{"createdAt": 2},
	})

	require.Error(t, err)
	assert.True(t, IsUserError(err))
}
