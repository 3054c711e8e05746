// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the credit ledger: append-only
// CreditTransaction rows plus the CreditBalance cache derived from them.
//
// Error semantics:
//   - InsertTransaction returns ErrDuplicate when (reference, type) already
//     exists. The insert uses ON CONFLICT DO NOTHING so the surrounding
//     transaction stays usable on PostgreSQL.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// InsertTransaction appends t to the ledger.
func InsertTransaction(ctx context.Context, db *gorm.DB, t *domain.CreditTransaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// SumTransactions returns the authoritative balance for userID.
func SumTransactions(ctx context.Context, db *gorm.DB, userID string) (int, error) {
	var sum int64
	err := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&sum)
	return int(sum), err
}

// RefreshBalance recomputes the cached balance from the ledger and stores it.
func RefreshBalance(ctx context.Context, db *gorm.DB, userID string) (int, error) {
	sum, err := SumTransactions(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	row := domain.CreditBalance{UserID: userID, Balance: sum, UpdatedAt: time.Now().UTC()}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&row).Error
	return sum, err
}

// CachedBalance returns the cached balance; ok is false when none exists yet.
func CachedBalance(ctx context.Context, db *gorm.DB, userID string) (balance int, ok bool, err error) {
	var row domain.CreditBalance
	err = db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error
	if err != nil {
		return 0, false, err
	}
	if row.UserID == "" {
		return 0, false, nil
	}
	return row.Balance, true, nil
}

// CountTransactions returns how many ledger rows userID has.
func CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CreditTransaction{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// RecentTransactions returns up to limit rows, newest first.
func RecentTransactions(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CreditTransaction, error) {
	var out []domain.CreditTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetTransactionByReference finds a keyed ledger entry.
func GetTransactionByReference(ctx context.Context, db *gorm.DB, ref string, typ domain.TransactionType) (*domain.CreditTransaction, error) {
	var t domain.CreditTransaction
	err := db.WithContext(ctx).
		Where("reference = ? AND transaction_type = ?", ref, typ).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}
