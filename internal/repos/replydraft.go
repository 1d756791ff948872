package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type ReplyDraftRepo interface {
	Create(ctx context.Context, tx *gorm.DB, draft *types.ReplyDraft) error
	GetLatest(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.ReplyDraft, error)
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.ReplyDraft, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.ReplyDraft, error)
}

type replyDraftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReplyDraftRepo(db *gorm.DB, baseLog *logger.Logger) ReplyDraftRepo {
	return &replyDraftRepo{db: db, log: baseLog.With("repo", "ReplyDraftRepo")}
}

func (r *replyDraftRepo) Create(ctx context.Context, tx *gorm.DB, draft *types.ReplyDraft) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(draft).Error
}

func (r *replyDraftRepo) GetLatest(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.ReplyDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var draft types.ReplyDraft
	err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(1).
		Find(&draft).Error
	if err != nil {
		return nil, err
	}
	if draft.ID == uuid.Nil {
		return nil, nil
	}
	return &draft, nil
}

func (r *replyDraftRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID, limit int) ([]*types.ReplyDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ReplyDraft
	q := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *replyDraftRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.ReplyDraft, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ReplyDraft
	q := transaction.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type CartItemRepo interface {
	Add(ctx context.Context, tx *gorm.DB, item *types.CartItem) error
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.CartItem, error)
	ClearConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) error
}

type cartItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCartItemRepo(db *gorm.DB, baseLog *logger.Logger) CartItemRepo {
	return &cartItemRepo{db: db, log: baseLog.With("repo", "CartItemRepo")}
}

func (r *cartItemRepo) Add(ctx context.Context, tx *gorm.DB, item *types.CartItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(item).Error
}

func (r *cartItemRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.CartItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CartItem
	err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cartItemRepo) ClearConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&types.CartItem{}).Error
}

type EscalationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, escalation *types.Escalation) error
	ListOpen(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Escalation, error)
	Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type escalationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEscalationRepo(db *gorm.DB, baseLog *logger.Logger) EscalationRepo {
	return &escalationRepo{db: db, log: baseLog.With("repo", "EscalationRepo")}
}

func (r *escalationRepo) Create(ctx context.Context, tx *gorm.DB, escalation *types.Escalation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(escalation).Error
}

func (r *escalationRepo) ListOpen(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Escalation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Escalation
	q := transaction.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *escalationRepo) Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Escalation{}).
		Where("id = ?", id).
		Update("resolved", true).Error
}
