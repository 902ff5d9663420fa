package http

import (
	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoiceai-server/internal/ai"
	"github.com/invoiceai/invoiceai-server/internal/auth"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantChat handles POST /api/assistant/chat.
func (h *Handlers) AssistantChat(c *gin.Context) {
	var req struct {
		Message string        `json:"message" binding:"required"`
		History []chatMessage `json:"history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	history := make([]ai.ChatMessage, 0, len(req.History))
	for _, m := range req.History {
		if m.Role != "user" && m.Role != "assistant" {
			badRequest(c, "history roles must be user or assistant")
			return
		}
		history = append(history, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}

	reply := h.assistantService.Ask(c.Request.Context(), auth.OrgID(c), history, req.Message)
	ok(c, gin.H{"reply": reply})
}
