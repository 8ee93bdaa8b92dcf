package config

// DefaultConfig returns the built-in defaults. User YAML and environment
// overrides are merged on top.
func DefaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			Database:       "crm",
			ReadPreference: ReadPreferenceSecondaryPreferred,
		},
		LLM: LLMConfig{
			Model:                "gpt-4o",
			RouterModel:          "gpt-4o-mini",
			TimeoutSeconds:       30,
			RouterTimeoutSeconds: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled:              true,
			BufferSize:           1000,
			FlushIntervalSeconds: 60,
			RequestTimeoutSecs:   5,
			MaxRetries:           3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tools: ToolsConfig{
			AllowedCollections:   []string{"*"},
			NonTenantCollections: []string{"plans", "countries", "states", "cities"},
			ReadOnly:             true,
		},
	}
}
