package rpc

import (
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson"
)

// WSCodec runs the same extended-JSON framing over a WebSocket connection,
// one document per text message.
type WSCodec struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSCodec wraps an upgraded connection.
func NewWSCodec(conn *websocket.Conn) *WSCodec {
	return &WSCodec{conn: conn}
}

func (c *WSCodec) Read() (*Request, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		var req Request
		if err := bson.UnmarshalExtJSON(data, false, &req); err != nil {
			slog.Warn("Skipping malformed frame", "error", err)
			continue
		}
		return &req, nil
	}
}

func (c *WSCodec) Write(msg any) error {
	data, err := bson.MarshalExtJSON(msg, false, false)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSCodec) Close() error {
	return c.conn.Close()
}
