package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/homelead/askdb/pkg/tools"
)

const rpcVersion = "1.0"

// errInternal is the catch-all JSON-RPC error code.
const errInternal = -32000

var knownCapabilities = map[string]bool{
	"logging":   true,
	"streaming": true,
	"interrupt": true,
}

// TenantSetter installs the tenant a frame is scoped to. The session
// implements it.
type TenantSetter interface {
	SetTenant(hexID string) error
}

// Server dispatches JSON-RPC frames to the tool runner. One Serve call
// handles one transport; frames are processed sequentially.
type Server struct {
	runner *tools.Runner
	tenant TenantSetter

	mu        sync.Mutex
	resources map[string]func() any
	onClose   []func(error)

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewServer creates a server over the shared tool runner.
func NewServer(runner *tools.Runner, tenant TenantSetter) *Server {
	return &Server{
		runner:    runner,
		tenant:    tenant,
		resources: map[string]func() any{},
	}
}

// Resource registers a named read-only resource.
func (s *Server) Resource(name string, handler func() any) {
	s.mu.Lock()
	s.resources[name] = handler
	s.mu.Unlock()
}

// OnClose registers a shutdown hook, run once when the transport ends.
func (s *Server) OnClose(fn func(error)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// connState is the per-transport capability state.
type connState struct {
	logging   bool
	streaming bool
	interrupt bool
}

// Serve reads frames until the transport closes or a close frame arrives.
func (s *Server) Serve(ctx context.Context, codec Codec) error {
	slog.Info("RPC transport attached")
	state := &connState{}

	var readErr error
	for {
		req, err := codec.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
				slog.Error("Transport read failed", "error", err)
			}
			break
		}

		if req.Method == "close" {
			_ = codec.Write(Response{JSONRPC: rpcVersion, ID: req.ID, Result: true})
			break
		}
		s.handle(ctx, codec, state, req)

		if ctx.Err() != nil {
			readErr = ctx.Err()
			break
		}
	}

	s.runClose(readErr)
	slog.Info("RPC transport detached")
	return readErr
}

func (s *Server) handle(ctx context.Context, codec Codec, state *connState, req *Request) {
	var result any
	var err error

	switch req.Method {
	case "capability":
		result, err = s.handleCapability(state, req.Params)
	case "resource":
		result, err = s.handleResource(req.Params)
	case "interrupt":
		s.cancelInFlight()
		result = true
	default:
		result, err = s.callTool(ctx, codec, state, req.Method, req.Params)
	}

	resp := Response{JSONRPC: rpcVersion, ID: req.ID}
	if err != nil {
		resp.Error = &Error{Code: errInternal, Message: err.Error()}
	} else {
		resp.Result = result
	}
	if werr := codec.Write(resp); werr != nil {
		slog.Error("Transport write failed", "error", werr)
	}
}

func (s *Server) handleCapability(state *connState, params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	if !knownCapabilities[name] {
		return nil, tools.NewValidationError("unknown capability %q", name)
	}
	enabled := true
	if v, ok := params["enabled"].(bool); ok {
		enabled = v
	}
	switch name {
	case "logging":
		state.logging = enabled
	case "streaming":
		state.streaming = enabled
	case "interrupt":
		state.interrupt = enabled
	}
	return true, nil
}

func (s *Server) handleResource(params map[string]any) (any, error) {
	name, _ := params["name"].(string)
	s.mu.Lock()
	handler, ok := s.resources[name]
	s.mu.Unlock()
	if !ok {
		return nil, tools.NewValidationError("unknown resource %q", name)
	}
	return handler(), nil
}

func (s *Server) callTool(ctx context.Context, codec Codec, state *connState, name string, params map[string]any) (any, error) {
	args := params
	if nested, ok := params["arguments"].(map[string]any); ok {
		args = nested
	}
	if args == nil {
		args = map[string]any{}
	}

	if companyID, ok := args["company_id"].(string); ok {
		if err := s.tenant.SetTenant(companyID); err != nil {
			return nil, err
		}
		delete(args, "company_id")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.setInFlight(cancel)
	defer func() {
		cancel()
		s.setInFlight(nil)
	}()

	if state.logging {
		s.notify(codec, "log", map[string]any{"level": "info", "message": "tool " + name + " started"})
	}

	result, err := s.runner.Run(ctx, name, args)

	if state.logging {
		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		s.notify(codec, "log", map[string]any{"level": "info", "message": "tool " + name + " " + status})
	}
	if err == nil && state.streaming && name == "find" {
		s.streamFindProgress(codec, result)
	}
	return result, err
}

// streamFindProgress emits one notification per collection bucket of a find
// result.
func (s *Server) streamFindProgress(codec Codec, result any) {
	doc, ok := result.(map[string]any)
	if !ok {
		return
	}
	buckets, ok := doc["results"].([]map[string]any)
	if !ok {
		return
	}
	for _, bucket := range buckets {
		s.notify(codec, "stream", map[string]any{
			"collection": bucket["collection"],
			"count":      bucket["count"],
		})
	}
}

func (s *Server) notify(codec Codec, method string, params map[string]any) {
	if err := codec.Write(Notification{Method: method, Params: params}); err != nil {
		slog.Warn("Notification write failed", "method", method, "error", err)
	}
}

func (s *Server) setInFlight(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

func (s *Server) cancelInFlight() {
	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancelMu.Unlock()
}

func (s *Server) runClose(err error) {
	s.mu.Lock()
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}
