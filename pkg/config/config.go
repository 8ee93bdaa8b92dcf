// Package config loads and validates the askdb configuration from YAML and
// environment variables.
package config

import (
	"strings"
	"time"
)

// Config is the fully resolved server configuration.
type Config struct {
	Mongo     MongoConfig     `yaml:"mongo"`
	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tools     ToolsConfig     `yaml:"tools"`
	Server    ServerConfig    `yaml:"server"`

	configDir string
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// MongoConfig describes the MongoDB target.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`

	// ReadPreference is "secondaryPreferred" (default) or "primary".
	// The host is read-only analytics; secondaries keep load off the primary.
	ReadPreference ReadPreference `yaml:"read_preference"`
}

// LLMConfig describes the chat-completions provider used for routing,
// planning and summarization.
type LLMConfig struct {
	APIKey string `yaml:"api_key"`

	// Model drives the tool-calling loop and summarization.
	Model string `yaml:"model"`

	// RouterModel classifies data-vs-chat; a small fast model is enough.
	RouterModel string `yaml:"router_model"`

	TimeoutSeconds       int `yaml:"timeout_seconds"`
	RouterTimeoutSeconds int `yaml:"router_timeout_seconds"`
}

// Timeout returns the planner/summarizer request timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RouterTimeout returns the router request timeout.
func (c LLMConfig) RouterTimeout() time.Duration {
	return time.Duration(c.RouterTimeoutSeconds) * time.Second
}

// TelemetryConfig describes the usage telemetry sink.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// APIBaseURL is the telemetry endpoint base; events are POSTed to
	// {base}/v2/telemetry with basic auth.
	APIBaseURL   string `yaml:"api_base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	BufferSize           int `yaml:"buffer_size"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
	RequestTimeoutSecs   int `yaml:"request_timeout_seconds"`
	MaxRetries           int `yaml:"max_retries"`
}

// FlushInterval returns the background flush period.
func (c TelemetryConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-POST timeout.
func (c TelemetryConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// FilePath, when set, adds a rotating JSON log file next to stderr.
	FilePath string `yaml:"file_path"`
}

// ToolsConfig gates which collections and tools the host will touch.
type ToolsConfig struct {
	// AllowedCollections is a hard allow-list. "*" anywhere means
	// no restriction.
	AllowedCollections []string `yaml:"allowed_collections"`

	// NonTenantCollections are shared reference collections that skip
	// tenant scoping (countries, states, ...).
	NonTenantCollections []string `yaml:"non_tenant_collections"`

	// ReadOnly disables write-category tools. Every shipped tool is
	// read-only already; the flag is reserved for future tool sets.
	ReadOnly bool `yaml:"read_only"`

	Disabled DisabledTools `yaml:"disabled"`
}

// DisabledTools excludes tools from the registry by category, name or type.
type DisabledTools struct {
	Categories []string `yaml:"categories"`
	Names      []string `yaml:"names"`
	Types      []string `yaml:"types"`
}

// ServerConfig holds the HTTP/WebSocket surface settings.
type ServerConfig struct {
	// AllowedWSOrigins lists origins accepted for WebSocket upgrades.
	// Empty means same-origin only.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// ReadPreference selects which MongoDB members serve reads.
type ReadPreference string

const (
	ReadPreferenceSecondaryPreferred ReadPreference = "secondaryPreferred"
	ReadPreferencePrimary            ReadPreference = "primary"
)

// IsValid checks if the read preference is supported.
func (p ReadPreference) IsValid() bool {
	return p == ReadPreferenceSecondaryPreferred || p == ReadPreferencePrimary
}

// AllowsAllCollections reports whether the allow-list is a wildcard.
func (c ToolsConfig) AllowsAllCollections() bool {
	for _, name := range c.AllowedCollections {
		if name == "*" {
			return true
		}
	}
	return len(c.AllowedCollections) == 0
}

// CollectionAllowed reports whether the allow-list admits the collection.
func (c ToolsConfig) CollectionAllowed(name string) bool {
	if c.AllowsAllCollections() {
		return true
	}
	for _, allowed := range c.AllowedCollections {
		if allowed == name {
			return true
		}
	}
	return false
}

// IsNonTenant reports whether the collection is shared across tenants.
func (c ToolsConfig) IsNonTenant(name string) bool {
	for _, nt := range c.NonTenantCollections {
		if nt == name {
			return true
		}
	}
	return false
}

// ToolDisabled reports whether a tool is excluded from the registry.
func (d DisabledTools) ToolDisabled(name, category, typ string) bool {
	return containsFold(d.Names, name) ||
		containsFold(d.Categories, category) ||
		containsFold(d.Types, typ)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
