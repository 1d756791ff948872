package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DraftStatusDecided      = "decided"
	DraftStatusFailed       = "failed"
	DraftStatusManualReview = "manual-review"
)

// ReplyDraft persists the outcome of one reply-pipeline run: the
// structured decision the sender consumes, plus the full debug trace
// (raw agent draft, tool calls, serializer input/output).
type ReplyDraft struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;column:conversation_id" json:"conversation_id"`
	Status         string    `gorm:"not null;column:status" json:"status"`

	ShouldReply bool           `gorm:"not null;default:false;column:should_reply" json:"should_reply"`
	ReplyText   string         `gorm:"column:reply_text" json:"reply_text"`
	Escalate    bool           `gorm:"not null;default:false;column:escalate" json:"escalate"`
	Tags        datatypes.JSON `gorm:"column:tags" json:"tags"`

	Model string         `gorm:"column:model" json:"model"`
	Trace datatypes.JSON `gorm:"column:trace" json:"trace"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ReplyDraft) TableName() string {
	return "reply_draft"
}

// CartItem rows are mutated by agent tool calls during drafting.
type CartItem struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;column:conversation_id" json:"conversation_id"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;column:product_id" json:"product_id"`
	Quantity       int       `gorm:"not null;default:1;column:quantity" json:"quantity"`
	Size           string    `gorm:"column:size" json:"size"`
	Color          string    `gorm:"column:color" json:"color"`
	Upsell         bool      `gorm:"not null;default:false;column:upsell" json:"upsell"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_item"
}

// Escalation records an agent hand-off to a human operator.
type Escalation struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;column:conversation_id" json:"conversation_id"`
	Reason         string    `gorm:"column:reason" json:"reason"`
	Resolved       bool      `gorm:"not null;default:false;column:resolved" json:"resolved"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Escalation) TableName() string {
	return "escalation"
}
