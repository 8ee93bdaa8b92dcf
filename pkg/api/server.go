// Package api exposes the assistant over HTTP and WebSocket: a chat
// endpoint, a health probe, the embedded front-end and the socket event
// surface.
package api

import (
	"context"
	"embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homelead/askdb/pkg/config"
)

//go:embed static/index.html
var staticFS embed.FS

// ChatHandler answers one tenant question. The chat orchestrator implements
// it; tests substitute stubs.
type ChatHandler interface {
	HandleQuery(ctx context.Context, tenantID, query string) (string, error)
}

// Pinger is the liveness probe dependency, satisfied by the Mongo session.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP/WebSocket surface.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	orch   ChatHandler
	sess   Pinger
	rpc    RPCHandler
	cfg    config.ServerConfig
}

// NewServer builds the router. A nil rpcSrv leaves the /rpc bridge
// unregistered. Call Run to start serving.
func NewServer(orch ChatHandler, sess Pinger, rpcSrv RPCHandler, cfg config.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: gin.New(),
		orch:   orch,
		sess:   sess,
		rpc:    rpcSrv,
		cfg:    cfg,
	}
	s.engine.Use(requestID(), accessLog(), gin.Recovery())

	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/chat", s.handleChat)
	s.engine.GET("/ws", s.handleWS)
	if s.rpc != nil {
		s.engine.GET("/rpc", s.handleRPC)
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "front-end unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
