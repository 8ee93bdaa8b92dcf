package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/homelead/askdb/pkg/chat"
)

// wsEvent is the socket wire format in both directions.
type wsEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.cfg.AllowedWSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleWS(c *gin.Context) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade rejected", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("WebSocket connected", "request_id", c.GetString(requestIDKey))

	for {
		var event wsEvent
		if err := conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read ended", "error", err)
			}
			return
		}
		if event.Event != "user_query" {
			continue
		}

		companyID, _ := event.Data["company_id"].(string)
		query, _ := event.Data["query"].(string)
		if companyID == "" || query == "" {
			s.writeWS(conn, "assistant_error", map[string]any{"error": "company_id and query are required"})
			continue
		}

		reply, err := s.orch.HandleQuery(c.Request.Context(), companyID, query)
		if err != nil {
			s.writeWS(conn, "assistant_error", map[string]any{"error": chat.PublicMessage(err)})
			continue
		}
		s.writeWS(conn, "assistant_reply", map[string]any{"reply": reply})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, event string, data map[string]any) {
	if err := conn.WriteJSON(wsEvent{Event: event, Data: data}); err != nil {
		slog.Warn("WebSocket write failed", "event", event, "error", err)
	}
}
