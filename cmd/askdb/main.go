// askdb server: the natural-language data assistant for the HomeLead CRM.
// Serves the chat HTTP/WebSocket surface, or the JSON-RPC stdio loop with
// -stdio.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/homelead/askdb/pkg/api"
	"github.com/homelead/askdb/pkg/chat"
	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/enrich"
	"github.com/homelead/askdb/pkg/llm"
	"github.com/homelead/askdb/pkg/logging"
	"github.com/homelead/askdb/pkg/redact"
	"github.com/homelead/askdb/pkg/rpc"
	"github.com/homelead/askdb/pkg/schema"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/telemetry"
	"github.com/homelead/askdb/pkg/tools"
	"github.com/homelead/askdb/pkg/version"
)

const httpShutdownBudget = 5 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	stdio := flag.Bool("stdio", false,
		"Serve JSON-RPC over stdin/stdout instead of HTTP")
	flag.Parse()

	// Load .env from the config directory before anything reads env vars.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Logging
	logging.Setup(cfg.Logging)
	slog.Info("Starting askdb", "version", version.Full(), "config_dir", *configDir, "stdio", *stdio)

	// 3. MongoDB session
	sess, err := session.Connect(ctx, cfg.Mongo)
	if err != nil {
		slog.Error("Failed to create MongoDB session", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := sess.Ping(pingCtx); err != nil {
		slog.Error("MongoDB unreachable", "error", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	slog.Info("MongoDB connected", "database", cfg.Mongo.Database)

	// 4. Telemetry
	collector := telemetry.NewCollector(cfg.Telemetry.Enabled, cfg.Telemetry.BufferSize)
	flusher := telemetry.NewFlusher(collector, cfg.Telemetry)
	flusher.Start(ctx)
	collector.RecordServerStart(map[string]any{"database": cfg.Mongo.Database})

	// 5. Schema registry and tools
	registry, err := schema.Load()
	if err != nil {
		slog.Error("Failed to load schema registry", "error", err)
		os.Exit(1)
	}
	store := tools.NewStore(sess)
	runner := tools.NewRunner(sess, cfg.Tools,
		tools.NewRegistry(cfg.Tools, tools.BuiltinTools(store, cfg.Tools, registry)...),
		collector)
	slog.Info("Tool registry ready", "tools", len(runner.Registry().Tools()))

	// 6. Enrichment, LLM, orchestrator
	enricher := enrich.New(enrich.NewFinder(sess))
	client := llm.NewClient(cfg.LLM)
	orch := chat.NewOrchestrator(client, chat.NewRouter(client, cfg.LLM),
		runner, enricher, registry, sess, cfg.LLM)
	slog.Info("Orchestrator ready", "model", cfg.LLM.Model, "router_model", cfg.LLM.RouterModel)

	shutdownTelemetry := func() {
		collector.RecordServerStop()
		flusher.Stop()
	}

	// 7. RPC server, shared by the stdio loop and the HTTP /rpc bridge
	rpcServer := rpc.NewServer(runner, sess)
	rpcServer.Resource("config", func() any { return redactedConfig(cfg) })
	rpcServer.Resource("schema", func() any {
		names := make([]string, 0, len(runner.Registry().Tools()))
		for _, t := range runner.Registry().Tools() {
			names = append(names, t.Name())
		}
		return map[string]any{"tools": names}
	})

	if *stdio {
		runStdio(ctx, rpcServer, sess, shutdownTelemetry)
		return
	}

	// 8. HTTP server
	httpServer := api.NewServer(orch, sess, rpcServer, cfg.Server)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Run(":" + getEnv("HTTP_PORT", "8000")); err != nil {
			errCh <- err
		}
	}()

	// 9. Wait for a signal or a server error, whichever first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, httpShutdownBudget)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	shutdownTelemetry()
	if err := sess.Close(ctx); err != nil {
		slog.Error("Error closing MongoDB session", "error", err)
	}
	slog.Info("Shutdown complete")
}

// runStdio serves the JSON-RPC loop over stdin/stdout until EOF or a signal.
func runStdio(ctx context.Context, server *rpc.Server, sess *session.Session, shutdownTelemetry func()) {
	server.OnClose(func(error) {
		shutdownTelemetry()
		if err := sess.Close(ctx); err != nil {
			slog.Error("Error closing MongoDB session", "error", err)
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := server.Serve(ctx, rpc.NewLineCodec(os.Stdin, os.Stdout)); err != nil {
		slog.Error("RPC serve loop ended with error", "error", err)
		os.Exit(1)
	}
}

// redactedConfig exposes the running configuration without secrets.
func redactedConfig(cfg *config.Config) map[string]any {
	return map[string]any{
		"mongo": map[string]any{
			"database":        cfg.Mongo.Database,
			"read_preference": string(cfg.Mongo.ReadPreference),
			"uri":             redact.Redacted,
		},
		"llm": map[string]any{
			"model":        cfg.LLM.Model,
			"router_model": cfg.LLM.RouterModel,
			"api_key":      redact.Redacted,
		},
		"telemetry": map[string]any{
			"enabled": cfg.Telemetry.Enabled,
		},
		"tools": map[string]any{
			"allowed_collections":    cfg.Tools.AllowedCollections,
			"non_tenant_collections": cfg.Tools.NonTenantCollections,
			"read_only":              cfg.Tools.ReadOnly,
		},
	}
}
