package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Product is a catalog entity. SystemPrompt is appended to the composed
// preamble; SizeChart backs the measurement tool's size suggestions.
type Product struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string         `gorm:"not null;index;column:name" json:"name"`
	Slug         string         `gorm:"not null;uniqueIndex;column:slug" json:"slug"`
	Price        float64        `gorm:"column:price" json:"price"`
	SystemPrompt string         `gorm:"column:system_prompt" json:"system_prompt"`
	PretextID    *uuid.UUID     `gorm:"type:uuid;column:pretext_id" json:"pretext_id"`
	ImageURL     string         `gorm:"column:image_url" json:"image_url"`
	SizeChart    datatypes.JSON `gorm:"column:size_chart" json:"size_chart"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}

// Pretext is a named template of instructional text prefixed to
// product-specific system instructions. Position orders the fallback
// when no default is flagged.
type Pretext struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null;column:name" json:"name"`
	Content   string    `gorm:"not null;column:content" json:"content"`
	IsDefault bool      `gorm:"not null;default:false;column:is_default" json:"is_default"`
	Position  int       `gorm:"not null;default:0;index;column:position" json:"position"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Pretext) TableName() string {
	return "pretext"
}
