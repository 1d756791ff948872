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

type OrderCandidateRepo interface {
	GetByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.OrderCandidate, error)

	// UpsertGuarded writes the classified status for a conversation. Rows
	// already in a terminal status (placed, not-interested) are never
	// downgraded: the conflict update carries a WHERE clause excluding
	// them, so the write silently becomes a no-op.
	UpsertGuarded(ctx context.Context, tx *gorm.DB, candidate *types.OrderCandidate) error

	// SelectRescannable returns the ids of conversations with message
	// activity inside [from, to) that either have no candidate row yet or
	// have a non-terminal candidate with messages newer than its last
	// classification.
	SelectRescannable(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]uuid.UUID, error)

	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.OrderCandidate, error)
}

type orderCandidateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderCandidateRepo(db *gorm.DB, baseLog *logger.Logger) OrderCandidateRepo {
	return &orderCandidateRepo{db: db, log: baseLog.With("repo", "OrderCandidateRepo")}
}

func (r *orderCandidateRepo) GetByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.OrderCandidate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var candidate types.OrderCandidate
	err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Limit(1).
		Find(&candidate).Error
	if err != nil {
		return nil, err
	}
	if candidate.ID == uuid.Nil {
		return nil, nil
	}
	return &candidate, nil
}

func (r *orderCandidateRepo) UpsertGuarded(ctx context.Context, tx *gorm.DB, candidate *types.OrderCandidate) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	assignments := map[string]interface{}{
		"status":        candidate.Status,
		"status_reason": candidate.StatusReason,
		"summary":       candidate.Summary,
		"updated_at":    time.Now().UTC(),
	}
	if candidate.PlacedAt != nil {
		assignments["placed_at"] = candidate.PlacedAt
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.Assignments(assignments),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{
					SQL:  "order_candidate.status NOT IN (?, ?)",
					Vars: []interface{}{types.OrderStatusPlaced, types.OrderStatusNotInterested},
				},
			}},
		}).
		Create(candidate).Error
}

func (r *orderCandidateRepo) SelectRescannable(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	err := transaction.WithContext(ctx).Raw(`
		SELECT DISTINCT c.id
		FROM conversation c
		JOIN message m ON m.conversation_id = c.id
		LEFT JOIN order_candidate oc ON oc.conversation_id = c.id
		WHERE m.created_at >= ? AND m.created_at < ?
		  AND (
		    oc.id IS NULL
		    OR (
		      oc.status NOT IN (?, ?)
		      AND EXISTS (
		        SELECT 1 FROM message m2
		        WHERE m2.conversation_id = c.id AND m2.created_at > oc.updated_at
		      )
		    )
		  )`,
		from, to,
		types.OrderStatusPlaced, types.OrderStatusNotInterested,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *orderCandidateRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.OrderCandidate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.OrderCandidate
	q := transaction.WithContext(ctx).Order("updated_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
