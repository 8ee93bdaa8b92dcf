package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML file read from the config directory.
const configFileName = "askdb.yaml"

// Initialize loads, merges and validates the configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Load askdb.yaml from configDir if present (missing file is fine;
//     a pure environment-variable deployment needs no YAML at all)
//  3. Expand {{.VAR}} environment references in the YAML
//  4. Merge user YAML over defaults
//  5. Apply direct environment overrides (MONGO_URI, OPENAI_API_KEY, ...)
//  6. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"database", cfg.Mongo.Database,
		"read_preference", cfg.Mongo.ReadPreference,
		"allowed_collections", len(cfg.Tools.AllowedCollections),
		"telemetry_enabled", cfg.Telemetry.Enabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No askdb.yaml found, using defaults and environment", "path", path)
	case err != nil:
		return nil, err
	default:
		// Expand environment variables using {{.VAR}} template syntax.
		// ExpandEnv passes through original data on parse/execution errors,
		// letting the YAML parser produce the clearer message.
		data = ExpandEnv(data)

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}

		// User YAML overrides built-in defaults; unset values keep defaults.
		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto the config.
// These take precedence over both defaults and YAML so that container
// deployments can run without any config file.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Mongo.URI, "MONGO_URI")
	setString(&cfg.Mongo.Database, "DB_NAME")
	if v := os.Getenv("READ_PREFERENCE"); v != "" {
		cfg.Mongo.ReadPreference = ReadPreference(v)
	}

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.Model, "MODEL_NAME")

	setString(&cfg.Telemetry.APIBaseURL, "API_BASE_URL")
	setString(&cfg.Telemetry.ClientID, "API_CLIENT_ID")
	setString(&cfg.Telemetry.ClientSecret, "API_CLIENT_SECRET")

	setString(&cfg.Logging.FilePath, "LOG_PATH")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if v := os.Getenv("ALLOWED_COLLECTIONS"); v != "" {
		cfg.Tools.AllowedCollections = splitCSV(v)
	}
	if v := os.Getenv("NON_TENANT_COLLECTIONS"); v != "" {
		cfg.Tools.NonTenantCollections = splitCSV(v)
	}

	// Telemetry opt-outs. DO_NOT_TRACK is the ecosystem-wide convention;
	// ASKDB_TELEMETRY=disabled is the product-specific switch.
	if v := os.Getenv("DO_NOT_TRACK"); v == "1" || strings.EqualFold(v, "true") {
		cfg.Telemetry.Enabled = false
	}
	if strings.EqualFold(os.Getenv("ASKDB_TELEMETRY"), "disabled") {
		cfg.Telemetry.Enabled = false
	}
}

func setString(target *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*target = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}
