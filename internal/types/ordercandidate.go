package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	OrderStatusUnknown        = "unknown"
	OrderStatusInterested     = "interested"
	OrderStatusVeryInterested = "very-interested"
	OrderStatusPlaced         = "placed"
	OrderStatusNotInterested  = "not-interested"
)

// TerminalOrderStatus reports whether a status excludes the conversation
// from re-detection.
func TerminalOrderStatus(status string) bool {
	return status == OrderStatusPlaced || status == OrderStatusNotInterested
}

// OrderCandidate tracks the classified funnel stage of one conversation.
// UpdatedAt is the watermark the detector compares message timestamps
// against when deciding whether a re-scan is due.
type OrderCandidate struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex;column:conversation_id" json:"conversation_id"`
	Status         string         `gorm:"not null;default:unknown;column:status" json:"status"`
	StatusReason   string         `gorm:"column:status_reason" json:"status_reason"`
	Summary        datatypes.JSON `gorm:"column:summary" json:"summary"`
	PlacedAt       *time.Time     `gorm:"column:placed_at" json:"placed_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (OrderCandidate) TableName() string {
	return "order_candidate"
}
