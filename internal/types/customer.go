package types

import (
	"time"

	"github.com/google/uuid"
)

// CustomerProfile mirrors what the platform exposes about a customer.
// Read-only input to salutation logic; enriched opportunistically from
// webhook payloads.
type CustomerProfile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID  string    `gorm:"not null;uniqueIndex;column:external_id" json:"external_id"`
	Username    string    `gorm:"column:username" json:"username"`
	Name        string    `gorm:"column:name" json:"name"`
	ContactName string    `gorm:"column:contact_name" json:"contact_name"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CustomerProfile) TableName() string {
	return "customer_profile"
}
