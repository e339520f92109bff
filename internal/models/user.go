package models

import (
	"time"
)

// User is the local record bridged from an identity-provider subject.
type User struct {
	ID         uint64    `gorm:"primarykey" json:"id"`
	ExternalID string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"external_id"`
	Email      string    `gorm:"type:varchar(255);not null" json:"email"`
	Name       string    `gorm:"type:varchar(255)" json:"name"`
	Credits    int       `gorm:"not null;default:10" json:"credits"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
