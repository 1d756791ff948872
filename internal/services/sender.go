package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
)

// Sender delivers an outbound DM or product image to the customer. The
// pipeline only consults the serialized decision: Send is called solely
// when should_reply is true.
type Sender interface {
	SendText(ctx context.Context, conversationID uuid.UUID, text string) error
	SendImage(ctx context.Context, conversationID uuid.UUID, imageURL string) error
}

// logSender is the default sender when no delivery channel is configured.
// It records what would have been sent; the admin UI reads drafts directly.
type logSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) Sender {
	return &logSender{log: log.With("service", "LogSender")}
}

func (s *logSender) SendText(ctx context.Context, conversationID uuid.UUID, text string) error {
	s.log.Info("outbound text (dry run)",
		"conversation_id", conversationID.String(),
		"length", len(text),
	)
	return nil
}

func (s *logSender) SendImage(ctx context.Context, conversationID uuid.UUID, imageURL string) error {
	s.log.Info("outbound image (dry run)",
		"conversation_id", conversationID.String(),
		"image_url", imageURL,
	)
	return nil
}
