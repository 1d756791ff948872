package types

import (
	"time"

	"github.com/google/uuid"
)

// Link pointer types a conversation can focus on.
const (
	LinkTypeNone  = "none"
	LinkTypePost  = "post"
	LinkTypeStory = "story"
	LinkTypeAd    = "ad"
)

// Conversation is the canonical thread between the store page and one
// customer. The pair (page_id, customer_external_id) is the identity;
// direction of individual messages never changes it.
type Conversation struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PageID             string    `gorm:"not null;uniqueIndex:idx_conversation_identity;column:page_id" json:"page_id"`
	CustomerExternalID string    `gorm:"not null;uniqueIndex:idx_conversation_identity;column:customer_external_id" json:"customer_external_id"`

	LastMessageID          *uuid.UUID `gorm:"type:uuid;column:last_message_id" json:"last_message_id"`
	LastMessageText        string     `gorm:"column:last_message_text" json:"last_message_text"`
	LastMessageDirection   string     `gorm:"column:last_message_direction" json:"last_message_direction"`
	LastMessageTimestampMs int64      `gorm:"not null;default:0;column:last_message_timestamp_ms" json:"last_message_timestamp_ms"`
	LastMessageAt          *time.Time `gorm:"column:last_message_at" json:"last_message_at"`

	// Focus pointer: which story/post/ad this conversation currently targets.
	LastLinkID   string `gorm:"index;column:last_link_id" json:"last_link_id"`
	LastLinkType string `gorm:"not null;default:none;column:last_link_type" json:"last_link_type"`

	FunnelStatus string `gorm:"not null;default:unknown;column:funnel_status" json:"funnel_status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// Pointer is the focus pointer carried by a message or stored on a
// conversation.
type Pointer struct {
	Type string
	ID   string
}

func (p Pointer) Valid() bool {
	return p.ID != "" && (p.Type == LinkTypePost || p.Type == LinkTypeStory || p.Type == LinkTypeAd)
}
