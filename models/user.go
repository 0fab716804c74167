package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User model
type User struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Username       string    `gorm:"size:255;not null;uniqueIndex:idx_users_username" json:"username"`
	HashedPassword []byte    `gorm:"not null" json:"-"`
	Role           string    `gorm:"size:64" json:"role"`
	UserZone       Zones     `gorm:"serializer:json;type:text" json:"userZone"`
	IsAdmin        bool      `gorm:"default:false;not null" json:"isAdmin"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
