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

type LinkRepo interface {
	GetStoryLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer) (*types.StoryLink, error)
	GetAdLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer) (*types.AdLink, error)

	// EnsureAdLink mirrors a story link into the ad-link table: creates
	// the row if absent, corrects it if the product id differs. Used by
	// the resolver's self-healing pass.
	EnsureAdLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID, confidence float64, autoLinked bool) error

	// UpsertAd maintains the bookkeeping row for a pointer.
	UpsertAd(ctx context.Context, tx *gorm.DB, ptr types.Pointer, title, mediaURL string) error

	// CreateAutoLinkedSet writes StoryLink, AdLink and Ad for a freshly
	// matched pointer in one transaction, all with auto_linked=true.
	CreateAutoLinkedSet(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID, confidence float64, title, mediaURL string) error

	// SetManualLink is the admin override: both link tables point at the
	// given product with auto_linked=false.
	SetManualLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID) error

	ListStoryLinks(ctx context.Context, tx *gorm.DB, limit int) ([]*types.StoryLink, error)
	ListAdLinks(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AdLink, error)
}

type linkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLinkRepo(db *gorm.DB, baseLog *logger.Logger) LinkRepo {
	return &linkRepo{db: db, log: baseLog.With("repo", "LinkRepo")}
}

func (r *linkRepo) GetStoryLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer) (*types.StoryLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var link types.StoryLink
	err := transaction.WithContext(ctx).
		Where("pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).
		Limit(1).
		Find(&link).Error
	if err != nil {
		return nil, err
	}
	if link.ID == uuid.Nil {
		return nil, nil
	}
	return &link, nil
}

func (r *linkRepo) GetAdLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer) (*types.AdLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var link types.AdLink
	err := transaction.WithContext(ctx).
		Where("pointer_type = ? AND pointer_id = ?", ptr.Type, ptr.ID).
		Limit(1).
		Find(&link).Error
	if err != nil {
		return nil, err
	}
	if link.ID == uuid.Nil {
		return nil, nil
	}
	return &link, nil
}

func (r *linkRepo) EnsureAdLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID, confidence float64, autoLinked bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.AdLink{
		PointerType: ptr.Type,
		PointerID:   ptr.ID,
		ProductID:   productID,
		Confidence:  confidence,
		AutoLinked:  autoLinked,
	}
	// The story link is the source of truth: on conflict the ad link is
	// overwritten to mirror it, which is exactly the repair the
	// cross-table invariant requires.
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pointer_type"}, {Name: "pointer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"product_id", "confidence", "auto_linked", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *linkRepo) UpsertAd(ctx context.Context, tx *gorm.DB, ptr types.Pointer, title, mediaURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.Ad{
		PointerType: ptr.Type,
		PointerID:   ptr.ID,
		Title:       title,
		MediaURL:    mediaURL,
	}
	// Pointer events don't always carry the title or media URL; an empty
	// value must never blank out what an earlier event stored.
	assignments := map[string]interface{}{"updated_at": time.Now().UTC()}
	if title != "" {
		assignments["title"] = title
	}
	if mediaURL != "" {
		assignments["media_url"] = mediaURL
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pointer_type"}, {Name: "pointer_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(row).Error
}

func (r *linkRepo) CreateAutoLinkedSet(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID, confidence float64, title, mediaURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		story := &types.StoryLink{
			PointerType: ptr.Type,
			PointerID:   ptr.ID,
			ProductID:   productID,
			Confidence:  confidence,
			AutoLinked:  true,
		}
		err := txx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pointer_type"}, {Name: "pointer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"product_id", "confidence", "auto_linked", "updated_at",
			}),
		}).Create(story).Error
		if err != nil {
			return err
		}
		if err := r.EnsureAdLink(ctx, txx, ptr, productID, confidence, true); err != nil {
			return err
		}
		return r.UpsertAd(ctx, txx, ptr, title, mediaURL)
	})
}

func (r *linkRepo) SetManualLink(ctx context.Context, tx *gorm.DB, ptr types.Pointer, productID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		story := &types.StoryLink{
			PointerType: ptr.Type,
			PointerID:   ptr.ID,
			ProductID:   productID,
			Confidence:  1,
			AutoLinked:  false,
		}
		err := txx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pointer_type"}, {Name: "pointer_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"product_id":  productID,
				"confidence":  1,
				"auto_linked": false,
				"updated_at":  time.Now().UTC(),
			}),
		}).Create(story).Error
		if err != nil {
			return err
		}
		return r.EnsureAdLink(ctx, txx, ptr, productID, 1, false)
	})
}

func (r *linkRepo) ListStoryLinks(ctx context.Context, tx *gorm.DB, limit int) ([]*types.StoryLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StoryLink
	q := transaction.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *linkRepo) ListAdLinks(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AdLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AdLink
	q := transaction.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
