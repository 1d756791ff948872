package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// Classification is the detector verdict over one conversation.
type Classification struct {
	Status string
	Reason string
	// PlacedMessageID points at the message that tipped the status to
	// placed, when the classifier can name one.
	PlacedMessageID uuid.UUID
}

// OrderClassifier reads a transcript and decides the funnel stage.
type OrderClassifier interface {
	Classify(ctx context.Context, history []*types.Message) (Classification, error)
}

// OrderDetector periodically re-scans conversations with fresh activity
// and records their funnel stage. Terminal stages stick: once placed or
// not-interested, no scan result can move the row.
type OrderDetector interface {
	Detect(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

type orderDetector struct {
	log        *logger.Logger
	candidates repos.OrderCandidateRepo
	messages   repos.MessageRepo
	classifier OrderClassifier

	concurrency int
}

func NewOrderDetector(
	log *logger.Logger,
	candidates repos.OrderCandidateRepo,
	messages repos.MessageRepo,
	classifier OrderClassifier,
) OrderDetector {
	return &orderDetector{
		log:         log.With("service", "OrderDetector"),
		candidates:  candidates,
		messages:    messages,
		classifier:  classifier,
		concurrency: utils.GetEnvAsInt("DETECTOR_CONCURRENCY", 4, log),
	}
}

func (d *orderDetector) Detect(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	ids, err := d.candidates.SelectRescannable(ctx, nil, from, to)
	if err != nil {
		return nil, fmt.Errorf("select rescannable conversations: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	d.log.Info("detector pass starting", "conversations", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, id := range ids {
		conversationID := id
		g.Go(func() error {
			if err := d.scanOne(gctx, conversationID); err != nil {
				// One bad conversation never aborts the pass.
				d.log.Warn("detector scan failed",
					"conversation_id", conversationID.String(),
					"error", err.Error(),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ids, err
	}
	return ids, nil
}

func (d *orderDetector) scanOne(ctx context.Context, conversationID uuid.UUID) error {
	history, err := d.messages.ListByConversation(ctx, nil, conversationID, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	verdict, err := d.classifier.Classify(ctx, history)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if verdict.Status == "" || verdict.Status == types.OrderStatusUnknown {
		return nil
	}

	summary, _ := json.Marshal(map[string]any{
		"messages": len(history),
		"reason":   verdict.Reason,
	})
	candidate := &types.OrderCandidate{
		ConversationID: conversationID,
		Status:         verdict.Status,
		StatusReason:   verdict.Reason,
		Summary:        datatypes.JSON(summary),
	}
	if verdict.Status == types.OrderStatusPlaced {
		candidate.PlacedAt = placedAtFrom(history, verdict.PlacedMessageID)
	}

	return d.candidates.UpsertGuarded(ctx, nil, candidate)
}

// placedAtFrom resolves the placed timestamp from the triggering message,
// falling back to the latest inbound message.
func placedAtFrom(history []*types.Message, placedMessageID uuid.UUID) *time.Time {
	if placedMessageID != uuid.Nil {
		for _, m := range history {
			if m.ID == placedMessageID {
				at := time.UnixMilli(m.TimestampMs).UTC()
				return &at
			}
		}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == types.DirectionIn {
			at := time.UnixMilli(history[i].TimestampMs).UTC()
			return &at
		}
	}
	at := time.UnixMilli(history[len(history)-1].TimestampMs).UTC()
	return &at
}

// -------------------- LLM classifier --------------------

type llmOrderClassifier struct {
	log *logger.Logger
	ai  openai.Client
}

func NewOrderClassifier(log *logger.Logger, ai openai.Client) OrderClassifier {
	return &llmOrderClassifier{
		log: log.With("service", "OrderClassifier"),
		ai:  ai,
	}
}

const classifierSystem = `You classify an Instagram DM sales conversation into a funnel stage.
Stages:
- interested: customer asks about the product but shows no buying intent yet
- very-interested: customer negotiates price, size, shipping or asks how to order
- placed: customer confirmed an order (gave address, accepted total, said they ordered)
- not-interested: customer declined or clearly will not buy
- unknown: none of the above can be established
When the stage is placed, set placed_message_index to the zero-based index
of the customer message that confirms the order, otherwise -1.`

var classifierSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status": map[string]any{
			"type": "string",
			"enum": []string{
				types.OrderStatusUnknown,
				types.OrderStatusInterested,
				types.OrderStatusVeryInterested,
				types.OrderStatusPlaced,
				types.OrderStatusNotInterested,
			},
		},
		"reason":               map[string]any{"type": "string"},
		"placed_message_index": map[string]any{"type": "integer"},
	},
	"required":             []string{"status", "reason", "placed_message_index"},
	"additionalProperties": false,
}

func (c *llmOrderClassifier) Classify(ctx context.Context, history []*types.Message) (Classification, error) {
	var verdict Classification

	var b strings.Builder
	for i, m := range history {
		role := "customer"
		if m.Direction == types.DirectionOut {
			role = "store"
		}
		fmt.Fprintf(&b, "%d [%s] %s\n", i, role, m.Text)
	}

	obj, err := c.ai.GenerateJSON(ctx, classifierSystem, b.String(), "order_classification", classifierSchema)
	if err != nil {
		return verdict, err
	}

	status, _ := obj["status"].(string)
	reason, _ := obj["reason"].(string)
	verdict.Status = status
	verdict.Reason = reason

	if idx, ok := obj["placed_message_index"].(float64); ok {
		i := int(idx)
		if i >= 0 && i < len(history) {
			verdict.PlacedMessageID = history[i].ID
		}
	}
	return verdict, nil
}
