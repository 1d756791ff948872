package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// ErrDuplicateMessage signals that a row with the same external message
// id already exists. Benign: redelivered webhook payloads hit this path.
var ErrDuplicateMessage = errors.New("duplicate external message id")

type MessageRepo interface {
	// Insert persists a write-once message row. The insert is a single
	// atomic conditional create against the external_message_id unique
	// index; a conflict returns ErrDuplicateMessage with no side effects.
	Insert(ctx context.Context, tx *gorm.DB, msg *types.Message) error
	GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Message, error)
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	ExistsNewerThan(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, after time.Time) (bool, error)
	CountByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Insert(ctx context.Context, tx *gorm.DB, msg *types.Message) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_message_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

func (r *messageRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var msg types.Message
	err := transaction.WithContext(ctx).
		Where("external_message_id = ?", externalID).
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, nil
	}
	return &msg, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	// The window is the newest N messages; a bounded read must never
	// cut off the latest customer message.
	var out []*types.Message
	q := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp_ms DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// Back to chronological order for transcript rendering.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) ExistsNewerThan(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, after time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ? AND created_at > ?", conversationID, after).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *messageRepo) CountByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
