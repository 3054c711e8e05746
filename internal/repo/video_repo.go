// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Video.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// CreateVideo inserts v, assigning ID and CreatedAt when empty. A second
// insert for the same process returns ErrDuplicate.
func CreateVideo(ctx context.Context, db *gorm.DB, v *domain.Video) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetVideoByProcess returns the video produced by processID.
func GetVideoByProcess(ctx context.Context, db *gorm.DB, processID string) (*domain.Video, error) {
	var v domain.Video
	if err := db.WithContext(ctx).First(&v, "process_id = ?", processID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVideos returns a user's videos, most recent first, with the total count.
func ListVideos(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Video, int64, error) {
	owned := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Video{}).Where("user_id = ?", userID)
	}

	var total int64
	if err := owned().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Video
	err := owned().Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, total, err
}
