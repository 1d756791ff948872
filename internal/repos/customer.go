package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type CustomerProfileRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, profile *types.CustomerProfile) error
	GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.CustomerProfile, error)
}

type customerProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCustomerProfileRepo(db *gorm.DB, baseLog *logger.Logger) CustomerProfileRepo {
	return &customerProfileRepo{db: db, log: baseLog.With("repo", "CustomerProfileRepo")}
}

func (r *customerProfileRepo) Upsert(ctx context.Context, tx *gorm.DB, profile *types.CustomerProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "name", "contact_name", "updated_at",
			}),
		}).
		Create(profile).Error
}

func (r *customerProfileRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*types.CustomerProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var profile types.CustomerProfile
	err := transaction.WithContext(ctx).
		Where("external_id = ?", externalID).
		Limit(1).
		Find(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == uuid.Nil {
		return nil, nil
	}
	return &profile, nil
}
