package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is a write-once DM row. ExternalMessageID carries the unique
// index that is the sole de-duplication guarantee for redelivered
// webhook payloads.
type Message struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID    uuid.UUID      `gorm:"type:uuid;not null;index;column:conversation_id" json:"conversation_id"`
	Direction         string         `gorm:"not null;column:direction" json:"direction"`
	ExternalMessageID string         `gorm:"not null;uniqueIndex;column:external_message_id" json:"external_message_id"`
	Text              string         `gorm:"column:text" json:"text"`
	Attachments       datatypes.JSON `gorm:"column:attachments" json:"attachments"`
	TimestampMs       int64          `gorm:"not null;index;column:timestamp_ms" json:"timestamp_ms"`

	// Focus pointer extraction results, kept for audit/debugging.
	StoryID  string `gorm:"column:story_id" json:"story_id"`
	StoryURL string `gorm:"column:story_url" json:"story_url"`
	PostID   string `gorm:"column:post_id" json:"post_id"`
	AdID     string `gorm:"column:ad_id" json:"ad_id"`

	Raw datatypes.JSON `gorm:"column:raw" json:"raw"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string {
	return "message"
}
