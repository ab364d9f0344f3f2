package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/advising-bot/internal/bot"
)

// handleQuery serves the chat server's outgoing webhook. Handling errors are
// still answered with 200 so the chat shows the user-facing error text.
func (s *Server) handleQuery(c *gin.Context) {
	start := time.Now()

	var in bot.Inbound
	if err := c.ShouldBindJSON(&in); err != nil {
		s.metrics.RecordWebhook("invalid", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.WebhookTimeout)
	defer cancel()

	out, err := s.responder.Respond(ctx, in)
	if err != nil {
		captureError(c, err)
	}

	s.metrics.RecordWebhook(outcome(out, err), time.Since(start))
	c.JSON(http.StatusOK, out)
}

func outcome(out *bot.Outbound, err error) string {
	switch {
	case err != nil:
		return "error"
	case out.Status != "":
		return out.Status
	default:
		return "replied"
	}
}
