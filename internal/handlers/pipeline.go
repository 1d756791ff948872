package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/services"
)

type PipelineHandler struct {
	log      *logger.Logger
	pipeline services.ReplyPipeline
}

func NewPipelineHandler(log *logger.Logger, pipeline services.ReplyPipeline) *PipelineHandler {
	return &PipelineHandler{
		log:      log.With("handler", "PipelineHandler"),
		pipeline: pipeline,
	}
}

// POST /api/threads/:id/reply
// Runs the draft/serialize pipeline for a thread and returns the
// persisted draft. The redis lock serializes concurrent triggers.
func (h *PipelineHandler) RunReplyPipeline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	draft, err := h.pipeline.Run(c.Request.Context(), id)
	if err != nil {
		h.log.Error("RunReplyPipeline failed", "conversation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "pipeline_failed", err)
		return
	}
	RespondOK(c, gin.H{"draft": draft})
}
