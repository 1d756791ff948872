package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/services"
)

type WebhookHandler struct {
	log    *logger.Logger
	ingest services.IngestService
}

func NewWebhookHandler(log *logger.Logger, ingest services.IngestService) *WebhookHandler {
	return &WebhookHandler{
		log:    log.With("handler", "WebhookHandler"),
		ingest: ingest,
	}
}

// POST /webhook/instagram
// Receives one normalized messaging event. Redeliveries are acked with
// the duplicate outcome and produce no writes.
func (h *WebhookHandler) ReceiveEvent(c *gin.Context) {
	var event services.RawEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_event", err)
		return
	}

	outcome, err := h.ingest.Ingest(c.Request.Context(), event)
	if err != nil {
		h.log.Error("Ingest failed",
			"external_message_id", event.ExternalMessageID,
			"error", err,
		)
		RespondError(c, http.StatusInternalServerError, "ingest_failed", errors.New("ingest failed"))
		return
	}

	RespondOK(c, gin.H{"outcome": string(outcome)})
}
