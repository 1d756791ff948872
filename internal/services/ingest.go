package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// RawEvent is one normalized webhook messaging event.
type RawEvent struct {
	PageID            string          `json:"page_id"`
	CustomerID        string          `json:"customer_id"`
	ExternalMessageID string          `json:"external_message_id"`
	Direction         string          `json:"direction"`
	Text              string          `json:"text"`
	TimestampMs       int64           `json:"timestamp_ms"`
	Attachments       json.RawMessage `json:"attachments,omitempty"`

	// Focus pointer sources, at most one normally present.
	StoryID  string `json:"story_id,omitempty"`
	StoryURL string `json:"story_url,omitempty"`
	PostID   string `json:"post_id,omitempty"`
	AdID     string `json:"ad_id,omitempty"`
	MediaURL string `json:"media_url,omitempty"`

	// Optional profile fields delivered alongside the message.
	Username    string `json:"username,omitempty"`
	Name        string `json:"name,omitempty"`
	ContactName string `json:"contact_name,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// IngestOutcome tells the webhook handler what happened to the event.
type IngestOutcome string

const (
	IngestOutcomeCreated   IngestOutcome = "created"
	IngestOutcomeDuplicate IngestOutcome = "duplicate"
)

// IngestService is the entry point for webhook deliveries. Redelivered
// payloads collapse on the message's unique external id: the second and
// later deliveries produce no writes at all.
type IngestService interface {
	Ingest(ctx context.Context, event RawEvent) (IngestOutcome, error)
}

type ingestService struct {
	log           *logger.Logger
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	customers     repos.CustomerProfileRepo
	resolver      LinkResolver

	resolveTimeout time.Duration
}

func NewIngestService(
	log *logger.Logger,
	conversations repos.ConversationRepo,
	messages repos.MessageRepo,
	customers repos.CustomerProfileRepo,
	resolver LinkResolver,
) IngestService {
	return &ingestService{
		log:            log.With("service", "IngestService"),
		conversations:  conversations,
		messages:       messages,
		customers:      customers,
		resolver:       resolver,
		resolveTimeout: 2 * time.Minute,
	}
}

// pointerFromEvent extracts the focus pointer. A shared post outranks an
// ad referral when both appear on one event.
func pointerFromEvent(event RawEvent) types.Pointer {
	switch {
	case event.StoryID != "":
		return types.Pointer{Type: types.LinkTypeStory, ID: event.StoryID}
	case event.PostID != "":
		return types.Pointer{Type: types.LinkTypePost, ID: event.PostID}
	case event.AdID != "":
		return types.Pointer{Type: types.LinkTypeAd, ID: event.AdID}
	default:
		return types.Pointer{}
	}
}

func (s *ingestService) Ingest(ctx context.Context, event RawEvent) (IngestOutcome, error) {
	if event.PageID == "" || event.CustomerID == "" {
		return "", fmt.Errorf("event missing conversation identity")
	}
	if event.ExternalMessageID == "" {
		return "", fmt.Errorf("event missing external message id")
	}
	if event.Direction != types.DirectionIn && event.Direction != types.DirectionOut {
		return "", fmt.Errorf("invalid direction %q", event.Direction)
	}

	conversation, err := s.conversations.GetOrCreate(ctx, nil, event.PageID, event.CustomerID)
	if err != nil {
		return "", fmt.Errorf("get or create conversation: %w", err)
	}

	msg := &types.Message{
		ConversationID:    conversation.ID,
		Direction:         event.Direction,
		ExternalMessageID: event.ExternalMessageID,
		Text:              event.Text,
		TimestampMs:       event.TimestampMs,
		StoryID:           event.StoryID,
		StoryURL:          event.StoryURL,
		PostID:            event.PostID,
		AdID:              event.AdID,
	}
	if len(event.Attachments) > 0 {
		msg.Attachments = datatypes.JSON(event.Attachments)
	}
	if len(event.Raw) > 0 {
		msg.Raw = datatypes.JSON(event.Raw)
	}

	if err := s.messages.Insert(ctx, nil, msg); err != nil {
		if errors.Is(err, repos.ErrDuplicateMessage) {
			s.log.Info("duplicate delivery absorbed",
				"external_message_id", event.ExternalMessageID,
				"conversation_id", conversation.ID.String(),
			)
			return IngestOutcomeDuplicate, nil
		}
		return "", fmt.Errorf("insert message: %w", err)
	}

	ptr := pointerFromEvent(event)
	upd := repos.SummaryUpdate{
		MessageID:   msg.ID,
		Text:        event.Text,
		Direction:   event.Direction,
		TimestampMs: event.TimestampMs,
		At:          time.UnixMilli(event.TimestampMs).UTC(),
	}
	if ptr.Valid() {
		upd.Pointer = &ptr
	}
	if err := s.conversations.AdvanceSummary(ctx, nil, conversation.ID, upd); err != nil {
		return "", fmt.Errorf("advance conversation summary: %w", err)
	}

	if event.Username != "" || event.Name != "" || event.ContactName != "" {
		profile := &types.CustomerProfile{
			ExternalID:  event.CustomerID,
			Username:    event.Username,
			Name:        event.Name,
			ContactName: event.ContactName,
		}
		if err := s.customers.Upsert(ctx, nil, profile); err != nil {
			s.log.Warn("customer profile upsert failed",
				"customer_id", event.CustomerID,
				"error", err.Error(),
			)
		}
	}

	// Link resolution is fire-and-forget: the webhook ack must not wait
	// on media downloads or model calls, and resolver failures never
	// surface to the sender.
	if event.Direction == types.DirectionIn && ptr.Valid() && s.resolver != nil {
		conversationID := conversation.ID
		mediaURL := event.MediaURL
		if mediaURL == "" {
			mediaURL = event.StoryURL
		}
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), s.resolveTimeout)
			defer cancel()
			outcome, err := s.resolver.Resolve(rctx, conversationID, ptr, mediaURL)
			if err != nil {
				s.log.Warn("link resolution failed",
					"conversation_id", conversationID.String(),
					"error", err.Error(),
				)
				return
			}
			s.log.Info("link resolution done",
				"conversation_id", conversationID.String(),
				"outcome", string(outcome),
			)
		}()
	}

	return IngestOutcomeCreated, nil
}
