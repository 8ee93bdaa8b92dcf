package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateMongo(); err != nil {
		return fmt.Errorf("mongo validation failed: %w", err)
	}

	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}

	if err := v.validateTelemetry(); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if err := v.validateLogging(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	return nil
}

func (v *Validator) validateMongo() error {
	m := v.cfg.Mongo

	if m.URI == "" {
		return NewValidationError("mongo", "uri", fmt.Errorf("required (set mongo.uri or MONGO_URI)"))
	}
	if !strings.HasPrefix(m.URI, "mongodb://") && !strings.HasPrefix(m.URI, "mongodb+srv://") {
		return NewValidationError("mongo", "uri", fmt.Errorf("must start with mongodb:// or mongodb+srv://"))
	}
	if m.Database == "" {
		return NewValidationError("mongo", "database", fmt.Errorf("required"))
	}
	if !m.ReadPreference.IsValid() {
		return NewValidationError("mongo", "read_preference",
			fmt.Errorf("invalid value %q (expected %s or %s)",
				m.ReadPreference, ReadPreferenceSecondaryPreferred, ReadPreferencePrimary))
	}

	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM

	if l.APIKey == "" {
		return NewValidationError("llm", "api_key", fmt.Errorf("required (set llm.api_key or OPENAI_API_KEY)"))
	}
	if l.Model == "" {
		return NewValidationError("llm", "model", fmt.Errorf("required"))
	}
	if l.RouterModel == "" {
		return NewValidationError("llm", "router_model", fmt.Errorf("required"))
	}
	if l.TimeoutSeconds < 1 {
		return NewValidationError("llm", "timeout_seconds", fmt.Errorf("must be at least 1"))
	}
	if l.RouterTimeoutSeconds < 1 {
		return NewValidationError("llm", "router_timeout_seconds", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *Validator) validateTelemetry() error {
	t := v.cfg.Telemetry

	if !t.Enabled {
		return nil
	}

	if t.APIBaseURL == "" {
		return NewValidationError("telemetry", "api_base_url", fmt.Errorf("required when telemetry is enabled"))
	}
	if t.ClientID == "" || t.ClientSecret == "" {
		return NewValidationError("telemetry", "client_id", fmt.Errorf("client_id and client_secret required when telemetry is enabled"))
	}
	if t.BufferSize < 1 {
		return NewValidationError("telemetry", "buffer_size", fmt.Errorf("must be at least 1"))
	}
	if t.FlushIntervalSeconds < 1 {
		return NewValidationError("telemetry", "flush_interval_seconds", fmt.Errorf("must be at least 1"))
	}
	if t.MaxRetries < 0 {
		return NewValidationError("telemetry", "max_retries", fmt.Errorf("must not be negative"))
	}

	return nil
}

func (v *Validator) validateLogging() error {
	switch strings.ToLower(v.cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return NewValidationError("logging", "level",
			fmt.Errorf("invalid level %q (expected debug, info, warn or error)", v.cfg.Logging.Level))
	}
}
