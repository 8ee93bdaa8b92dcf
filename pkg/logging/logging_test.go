package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/redact"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"), "unknown levels fall back to info")
}

func TestHandler_EmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LoggingConfig{Level: "info"}))

	logger.Info("tool executed", "command", "count", "duration_ms", 12)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tool executed", line["msg"])
	assert.Equal(t, "count", line["command"])
}

func TestHandler_RedactsSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LoggingConfig{Level: "info"}))

	logger.Info("llm client ready", "apiKey", "sk-super-secret", "model", "gpt-4o")

	out := buf.String()
	assert.NotContains(t, out, "sk-super-secret")
	assert.Contains(t, out, redact.Redacted)
	assert.Contains(t, out, "gpt-4o", "non-sensitive attrs pass through")
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LoggingConfig{Level: "warn"}))

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
