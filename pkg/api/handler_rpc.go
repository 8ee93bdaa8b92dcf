package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/homelead/askdb/pkg/rpc"
)

// RPCHandler serves one JSON-RPC transport; the RPC server implements it.
type RPCHandler interface {
	Serve(ctx context.Context, codec rpc.Codec) error
}

// handleRPC bridges the JSON-RPC loop onto a WebSocket: the upgraded
// connection is wrapped in the extended-JSON codec and served until the peer
// disconnects or sends a close frame.
func (s *Server) handleRPC(c *gin.Context) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("RPC WebSocket upgrade rejected", "error", err)
		return
	}
	codec := rpc.NewWSCodec(conn)
	defer codec.Close()
	slog.Info("RPC WebSocket connected", "request_id", c.GetString(requestIDKey))

	if err := s.rpc.Serve(c.Request.Context(), codec); err != nil {
		slog.Warn("RPC WebSocket session ended with error", "error", err)
	}
}
