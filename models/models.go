package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           string         `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt    time.Time      `json:"-"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Name         string         `gorm:"size:255" json:"name,omitempty"`
	Email        string         `gorm:"size:255;not null;unique" json:"email"`
	Provider     string         `gorm:"size:64" json:"-"`
	PasswordHash string         `json:"-"`
}

// SavedImage is one generated image in a user's gallery. The JSON layout is
// the persisted format.
type SavedImage struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// GalleryEntry backs the postgres key/value storage.
type GalleryEntry struct {
	Key       string `gorm:"primarykey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
