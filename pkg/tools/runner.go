package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/session"
	"github.com/homelead/askdb/pkg/telemetry"
)

// Registry holds the enabled tools in registration order.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry registers tools, dropping those excluded by the disabled-tools
// configuration. Every shipped tool is read-only, so the read_only flag has
// nothing to exclude yet; it is honored here for future write categories.
func NewRegistry(cfg config.ToolsConfig, tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if cfg.Disabled.ToolDisabled(t.Name(), t.Category(), t.Category()) {
			slog.Info("Tool disabled by configuration", "tool", t.Name())
			continue
		}
		if cfg.ReadOnly && t.Category() != "read" {
			slog.Info("Tool disabled by read_only", "tool", t.Name())
			continue
		}
		r.order = append(r.order, t.Name())
		r.tools[t.Name()] = t
	}
	return r
}

// Tools returns the enabled tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Runner wraps every tool dispatch with the shared cross-cutting procedure:
// argument validation, tenant scoping, case-insensitive injection, allow-list
// enforcement, timing and telemetry.
type Runner struct {
	session   *session.Session
	cfg       config.ToolsConfig
	registry  *Registry
	collector *telemetry.Collector
}

// NewRunner creates the runner shared by the RPC server and the orchestrator.
func NewRunner(sess *session.Session, cfg config.ToolsConfig, registry *Registry, collector *telemetry.Collector) *Runner {
	return &Runner{session: sess, cfg: cfg, registry: registry, collector: collector}
}

// Registry exposes the underlying tool registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes one tool call end to end.
func (r *Runner) Run(ctx context.Context, name string, rawArgs map[string]any) (any, error) {
	tool, ok := r.registry.Get(name)
	if !ok {
		return nil, NewValidationError("unknown tool %q", name)
	}

	args := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		args[k] = v
	}
	spec := tool.Parameters()

	// The session's default database applies unless the caller targeted one.
	if _, declared := spec["database"]; declared && args["database"] == nil {
		args["database"] = r.session.DatabaseName()
	}

	if err := spec.Validate(args); err != nil {
		return nil, err
	}

	tenant, hasTenant := r.session.Tenant()
	if !hasTenant {
		return nil, ErrTenantRequired
	}

	collection := asString(args, "collection")

	if _, declared := spec["filter"]; declared {
		filter := argDoc(args, "filter")
		if filter == nil {
			filter = map[string]any{}
		}
		if r.cfg.IsNonTenant(collection) {
			args["filter"] = InjectCaseInsensitive(filter)
		} else {
			args["filter"] = InjectCaseInsensitive(ScopeFilter(collection, tenant, filter))
		}
	}

	if _, declared := spec["pipeline"]; declared {
		if pipeline := toPipeline(args["pipeline"]); len(pipeline) > 0 && !r.cfg.IsNonTenant(collection) {
			args["pipeline"] = ScopePipeline(collection, tenant, pipeline)
		}
	}

	// The allow-list is a hard gate: disallowed collections fail before any
	// database I/O happens.
	if collection != "" && !r.cfg.CollectionAllowed(collection) {
		return nil, NewForbiddenError("collection %q not in allowed list. Allowed collections: %s",
			collection, strings.Join(r.cfg.AllowedCollections, ", "))
	}

	inv := &Invocation{
		Args:     args,
		Tenant:   tenant,
		Database: asString(args, "database"),
	}
	if inv.Database == "" {
		inv.Database = r.session.DatabaseName()
	}

	start := time.Now()
	slog.Debug("Tool started", "tool", name, "collection", collection)

	result, err := tool.Execute(ctx, inv)
	duration := time.Since(start)

	switch {
	case err == nil:
		slog.Info("Tool succeeded", "tool", name, "duration_ms", duration.Milliseconds())
		r.collector.Record(name, duration, true, args)
		return result, nil
	case IsUserError(err):
		slog.Warn("Tool failed with user error", "tool", name,
			"duration_ms", duration.Milliseconds(), "error", err)
		r.collector.Record(name, duration, false, args)
		return nil, err
	default:
		slog.Error("Tool errored", "tool", name,
			"duration_ms", duration.Milliseconds(), "error", err)
		r.collector.Record(name, duration, false, map[string]any{"error": err.Error()})
		if _, already := AsInternal(err); already {
			return nil, err
		}
		return nil, NewInternalError(name, err)
	}
}

// toPipeline normalizes the decoded pipeline argument into stage documents.
func toPipeline(v any) []map[string]any {
	stages, ok := asArray(v)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(stages))
	for _, stage := range stages {
		if doc, ok := asDocument(stage); ok {
			out = append(out, doc)
		}
	}
	return out
}
