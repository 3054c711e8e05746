package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

func TestInsertTransaction_DuplicateReference(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ref := "p1"

	debit := &domain.CreditTransaction{UserID: "u1", Amount: -150, TransactionType: domain.TxVideoGeneration, Reference: &ref}
	if err := InsertTransaction(ctx, db, debit); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	again := &domain.CreditTransaction{UserID: "u1", Amount: -150, TransactionType: domain.TxVideoGeneration, Reference: &ref}
	if err := InsertTransaction(ctx, db, again); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert err = %v; want ErrDuplicate", err)
	}
	n, _ := CountTransactions(ctx, db, "u1")
	if n != 1 {
		t.Fatalf("ledger rows = %d; want 1", n)
	}
	got, err := GetTransactionByReference(ctx, db, ref, domain.TxVideoGeneration)
	if err != nil || got.Amount != -150 {
		t.Fatalf("GetTransactionByReference = %+v, %v", got, err)
	}
}

func TestBalance_SumRefreshAndRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	if _, ok, err := CachedBalance(ctx, db, "u1"); ok || err != nil {
		t.Fatalf("cached balance should be absent, ok=%v err=%v", ok, err)
	}

	amounts := []int{1000, -150, -100, 500}
	for i, a := range amounts {
		tx := &domain.CreditTransaction{UserID: "u1", Amount: a, TransactionType: domain.TxSubscription, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := InsertTransaction(ctx, db, tx); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sum, err := SumTransactions(ctx, db, "u1")
	if err != nil || sum != 1250 {
		t.Fatalf("SumTransactions = %d, %v; want 1250", sum, err)
	}
	if got, _ := SumTransactions(ctx, db, "nobody"); got != 0 {
		t.Fatalf("empty ledger sum = %d", got)
	}

	if b, err := RefreshBalance(ctx, db, "u1"); err != nil || b != 1250 {
		t.Fatalf("RefreshBalance = %d, %v", b, err)
	}
	_ = InsertTransaction(ctx, db, &domain.CreditTransaction{UserID: "u1", Amount: -50, TransactionType: domain.TxVideoGeneration})
	if b, _ := RefreshBalance(ctx, db, "u1"); b != 1200 {
		t.Fatalf("RefreshBalance after debit = %d", b)
	}
	if b, ok, _ := CachedBalance(ctx, db, "u1"); !ok || b != 1200 {
		t.Fatalf("CachedBalance = %d ok=%v", b, ok)
	}

	recent, err := RecentTransactions(ctx, db, "u1", 2)
	if err != nil || len(recent) != 2 || recent[0].Amount != -50 {
		t.Fatalf("RecentTransactions = %+v, %v", recent, err)
	}
}

func TestActiveSubscription(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := ActiveSubscription(ctx, db, "u1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
	expired := &domain.Subscription{UserID: "u1", PlanType: "pro", MonthlyCredits: 3000, Active: true, CurrentPeriodStart: now.AddDate(0, -2, 0), CurrentPeriodEnd: now.AddDate(0, -1, 0)}
	current := &domain.Subscription{UserID: "u1", PlanType: "pro", MonthlyCredits: 3000, Active: true, CurrentPeriodStart: now.AddDate(0, 0, -3), CurrentPeriodEnd: now.AddDate(0, 0, 27)}
	for _, s := range []*domain.Subscription{expired, current} {
		if err := UpsertSubscription(ctx, db, s); err != nil {
			t.Fatalf("UpsertSubscription: %v", err)
		}
	}
	got, err := ActiveSubscription(ctx, db, "u1", now)
	if err != nil || got.ID != current.ID {
		t.Fatalf("ActiveSubscription = %+v, %v", got, err)
	}
}
