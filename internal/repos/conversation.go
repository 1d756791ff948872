package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// SummaryUpdate carries the last-message fields derived from a newly
// inserted message. TimestampMs doubles as the advance-only guard: the
// update is skipped when the conversation already holds a newer summary.
type SummaryUpdate struct {
	MessageID   uuid.UUID
	Text        string
	Direction   string
	TimestampMs int64
	At          time.Time
	Pointer     *types.Pointer
}

type ConversationRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, pageID, customerExternalID string) (*types.Conversation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error)
	AdvanceSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, upd SummaryUpdate) error
	SetFunnelStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, pageID, customerExternalID string) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	conv := &types.Conversation{
		PageID:             pageID,
		CustomerExternalID: customerExternalID,
		LastLinkType:       types.LinkTypeNone,
		FunnelStatus:       types.OrderStatusUnknown,
	}
	// Insert-if-absent against the identity index; a losing racer falls
	// through to the read below.
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "page_id"}, {Name: "customer_external_id"}},
			DoNothing: true,
		}).
		Create(conv).Error
	if err != nil {
		return nil, err
	}

	var out types.Conversation
	err = transaction.WithContext(ctx).
		Where("page_id = ? AND customer_external_id = ?", pageID, customerExternalID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var conv types.Conversation
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&conv).Error
	if err != nil {
		return nil, err
	}
	if conv.ID == uuid.Nil {
		return nil, nil
	}
	return &conv, nil
}

func (r *conversationRepo) AdvanceSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, upd SummaryUpdate) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"last_message_id":           upd.MessageID,
		"last_message_text":         upd.Text,
		"last_message_direction":    upd.Direction,
		"last_message_timestamp_ms": upd.TimestampMs,
		"last_message_at":           upd.At,
		"updated_at":                time.Now().UTC(),
	}
	if upd.Pointer != nil && upd.Pointer.Valid() {
		updates["last_link_id"] = upd.Pointer.ID
		updates["last_link_type"] = upd.Pointer.Type
	}
	return transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ? AND last_message_timestamp_ms <= ?", id, upd.TimestampMs).
		Updates(updates).Error
}

func (r *conversationRepo) SetFunnelStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"funnel_status": status,
			"updated_at":    time.Now().UTC(),
		}).Error
}
