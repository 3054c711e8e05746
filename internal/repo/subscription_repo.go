// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to Subscription rows, which
// are written by the payment provider integration.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// ActiveSubscription returns the user's active subscription whose billing
// period contains now, or ErrNotFound.
func ActiveSubscription(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND current_period_start <= ? AND current_period_end > ?", userID, true, now, now).
		Order("current_period_end DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription writes s keyed by ID, generating one when empty.
func UpsertSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
}
