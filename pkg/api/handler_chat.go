package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homelead/askdb/pkg/chat"
)

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	CompanyID string `json:"company_id" binding:"required"`
	Query     string `json:"query" binding:"required"`
}

// ChatResponse is the POST /chat reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id and query are required"})
		return
	}

	reply, err := s.orch.HandleQuery(c.Request.Context(), req.CompanyID, req.Query)
	if err != nil {
		status := chat.StatusFor(err)
		slog.Warn("Chat request failed",
			"request_id", c.GetString(requestIDKey),
			"status", status,
			"error", err)
		c.JSON(status, gin.H{"error": chat.PublicMessage(err)})
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}
