package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/pipeline"
)

// pipelineRunHandler handles POST /pipeline/run: a debug entry point that
// runs one chat message through the dialog handler (intent routing plus
// the search pipeline) and returns the full response, including per-stage
// traces when requested. Not part of the chat transport; exists so
// integration tests can drive the pipeline over HTTP without a bot.
func (s *Server) pipelineRunHandler(c *gin.Context) {
	if s.handler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not configured"})
		return
	}

	var req PipelineRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid request body", "errors": err.Error()})
		return
	}

	resp, err := s.handler.HandleMessage(c.Request.Context(), req.ChatID, req.Text, req.UserID)
	if err != nil {
		logrus.WithError(err).Warn("pipeline/run: handle_message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обработать запрос"})
		return
	}

	items := make([]pipeline.Result, 0, len(resp.Items))
	intents := make([]string, 0, len(resp.Intents))
	for _, item := range resp.Items {
		result := item.Result
		if !req.Trace {
			result.Trace = nil
		}
		items = append(items, result)
	}
	for _, action := range resp.Intents {
		intents = append(intents, string(action.Type))
	}

	c.JSON(http.StatusOK, PipelineRunResponse{
		Intents:           intents,
		State:             resp.State,
		NeedClarification: resp.NeedClarification,
		Items:             items,
	})
}
