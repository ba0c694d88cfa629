package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AI2HU/chatstats/internal/router"
)

// Event ingestion endpoints. Success responses carry no body beyond a
// status: delivery into the aggregator is fire-and-forget and the outcome
// of the reduction is never reported back to the host.

type messageRequest struct {
	Text       string `json:"text"`
	IsUser     bool   `json:"is_user"`
	IsSystem   bool   `json:"is_system,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// postChatChanged handles POST /api/v1/events/chat-changed
func (s *Server) postChatChanged(c *gin.Context) {
	var chat router.ChatContext
	if err := c.ShouldBindJSON(&chat); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	s.router.OnChatChanged(chat)

	entityID, entityName := s.router.ActiveEntity()
	c.JSON(http.StatusOK, gin.H{
		"entity_id":   entityID,
		"entity_name": entityName,
	})
}

// postMessage handles POST /api/v1/events/message
func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	s.router.OnMessage(c.Request.Context(), router.Message{
		Text:       req.Text,
		TokenCount: req.TokenCount,
		Timestamp:  req.Timestamp,
		IsSystem:   req.IsSystem,
	}, req.IsUser)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// postPrompt handles POST /api/v1/events/prompt
func (s *Server) postPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	s.router.OnPromptAssembled(c.Request.Context(), req.Prompt, req.DryRun)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
