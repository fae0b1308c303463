package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petermazzocco/ai-image-studio/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres stores each key as a row in gallery_entries.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&models.GalleryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate gallery entries: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.GalleryEntry
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Value), true, nil
}

// Set upserts the whole value inside one transaction.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	entry := models.GalleryEntry{
		Key:       key,
		Value:     string(value),
		UpdatedAt: time.Now(),
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
	})
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	return p.db.WithContext(ctx).Where("key = ?", key).Delete(&models.GalleryEntry{}).Error
}
