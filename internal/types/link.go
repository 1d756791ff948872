package types

import (
	"time"

	"github.com/google/uuid"
)

// StoryLink and AdLink map a focus pointer to a product. Two physical
// tables are kept because the admin override UI reads both shapes
// directly; the resolver repairs the cross-table invariant (every
// StoryLink has a matching AdLink with the same product id) on every
// resolution pass.

type StoryLink struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PointerType string    `gorm:"not null;uniqueIndex:idx_story_link_pointer;column:pointer_type" json:"pointer_type"`
	PointerID   string    `gorm:"not null;uniqueIndex:idx_story_link_pointer;column:pointer_id" json:"pointer_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index;column:product_id" json:"product_id"`
	Confidence  float64   `gorm:"not null;default:0;column:confidence" json:"confidence"`
	AutoLinked  bool      `gorm:"not null;default:false;column:auto_linked" json:"auto_linked"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (StoryLink) TableName() string {
	return "story_link"
}

type AdLink struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PointerType string    `gorm:"not null;uniqueIndex:idx_ad_link_pointer;column:pointer_type" json:"pointer_type"`
	PointerID   string    `gorm:"not null;uniqueIndex:idx_ad_link_pointer;column:pointer_id" json:"pointer_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index;column:product_id" json:"product_id"`
	Confidence  float64   `gorm:"not null;default:0;column:confidence" json:"confidence"`
	AutoLinked  bool      `gorm:"not null;default:false;column:auto_linked" json:"auto_linked"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AdLink) TableName() string {
	return "ad_link"
}

// Ad is the bookkeeping row for a pointer the store has seen: title and
// media location, regardless of whether linking succeeded.
type Ad struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PointerType string    `gorm:"not null;uniqueIndex:idx_ad_pointer;column:pointer_type" json:"pointer_type"`
	PointerID   string    `gorm:"not null;uniqueIndex:idx_ad_pointer;column:pointer_id" json:"pointer_id"`
	Title       string    `gorm:"column:title" json:"title"`
	MediaURL    string    `gorm:"column:media_url" json:"media_url"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Ad) TableName() string {
	return "ad"
}
