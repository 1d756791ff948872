package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type PretextRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pretext *types.Pretext) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Pretext, error)
	GetDefault(ctx context.Context, tx *gorm.DB) (*types.Pretext, error)
	GetFirst(ctx context.Context, tx *gorm.DB) (*types.Pretext, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Pretext, error)
}

type pretextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPretextRepo(db *gorm.DB, baseLog *logger.Logger) PretextRepo {
	return &pretextRepo{db: db, log: baseLog.With("repo", "PretextRepo")}
}

func (r *pretextRepo) Create(ctx context.Context, tx *gorm.DB, pretext *types.Pretext) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(pretext).Error
}

func (r *pretextRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Pretext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var pretext types.Pretext
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&pretext).Error
	if err != nil {
		return nil, err
	}
	if pretext.ID == uuid.Nil {
		return nil, nil
	}
	return &pretext, nil
}

func (r *pretextRepo) GetDefault(ctx context.Context, tx *gorm.DB) (*types.Pretext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var pretext types.Pretext
	err := transaction.WithContext(ctx).
		Where("is_default = ?", true).
		Order("position ASC").
		Limit(1).
		Find(&pretext).Error
	if err != nil {
		return nil, err
	}
	if pretext.ID == uuid.Nil {
		return nil, nil
	}
	return &pretext, nil
}

// GetFirst returns the lowest-positioned pretext, the fallback when no
// default is flagged.
func (r *pretextRepo) GetFirst(ctx context.Context, tx *gorm.DB) (*types.Pretext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var pretext types.Pretext
	err := transaction.WithContext(ctx).
		Order("position ASC, created_at ASC").
		Limit(1).
		Find(&pretext).Error
	if err != nil {
		return nil, err
	}
	if pretext.ID == uuid.Nil {
		return nil, nil
	}
	return &pretext, nil
}

func (r *pretextRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Pretext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Pretext
	if err := transaction.WithContext(ctx).Order("position ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
