package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.True(t, Key("password"))
	assert.True(t, Key("apiKey"), "matching is case-insensitive")
	assert.True(t, Key("CLIENTSECRET"))
	assert.False(t, Key("username"))
	assert.False(t, Key("collection"))
}

func TestValue_NestedMap(t *testing.T) {
	in := map[string]any{
		"collection": "leads",
		"filter": map[string]any{
			"name":     "sonu",
			"password": "hunter2",
		},
		"accessToken": "tok-123",
	}

	out := Value(in).(map[string]any)

	assert.Equal(t, "leads", out["collection"])
	assert.Equal(t, Redacted, out["accessToken"])

	filter := out["filter"].(map[string]any)
	assert.Equal(t, "sonu", filter["name"])
	assert.Equal(t, Redacted, filter["password"])

	// Input must not be mutated
	assert.Equal(t, "hunter2", in["filter"].(map[string]any)["password"])
}

func TestValue_SliceOfMaps(t *testing.T) {
	in := []any{
		map[string]any{"secret": "s1"},
		map[string]any{"ok": "visible"},
	}

	out := Value(in).([]any)

	assert.Equal(t, Redacted, out[0].(map[string]any)["secret"])
	assert.Equal(t, "visible", out[1].(map[string]any)["ok"])
}

func TestValue_ScalarPassThrough(t *testing.T) {
	assert.Equal(t, "plain", Value("plain"))
	assert.Equal(t, 42, Value(42))
	assert.Nil(t, Value(nil))
}
