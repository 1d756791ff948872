package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type ProductRepo interface {
	Create(ctx context.Context, tx *gorm.DB, product *types.Product) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Product, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Product, error)
	ListCandidates(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Product, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{db: db, log: baseLog.With("repo", "ProductRepo")}
}

func (r *productRepo) Create(ctx context.Context, tx *gorm.DB, product *types.Product) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(product).Error
}

func (r *productRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var product types.Product
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == uuid.Nil {
		return nil, nil
	}
	return &product, nil
}

func (r *productRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var product types.Product
	err := transaction.WithContext(ctx).
		Where("slug = ?", slug).
		Limit(1).
		Find(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == uuid.Nil {
		return nil, nil
	}
	return &product, nil
}

func (r *productRepo) ListCandidates(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 500
	}
	var out []*types.Product
	err := transaction.WithContext(ctx).
		Order("name ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
