// Package services – CreditService
//
// CreditService reads and appends to the credit ledger. The ledger is the
// source of truth; the cached balance row is recomputed in the same DB
// transaction as every insert. Keyed entries (process debits, the initial
// grant) are unique per (reference, type), which makes them idempotent.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/repo"
)

// RecentTransactionsLimit caps CreditSummary.RecentTransactions.
const RecentTransactionsLimit = 10

// CreditSummary is the credit query result.
type CreditSummary struct {
	Balance            int                        `json:"balance"`
	ActiveSubscription *domain.Subscription       `json:"activeSubscription,omitempty"`
	RecentTransactions []domain.CreditTransaction `json:"recentTransactions"`
}

// CreditService provides ledger operations.
type CreditService struct {
	DB *gorm.DB

	// InitialCredits is granted once to a user with an empty ledger.
	// Zero disables the grant.
	InitialCredits int

	Now func() time.Time
}

// NewCreditService constructs a CreditService.
func NewCreditService(db *gorm.DB, initialCredits int) *CreditService {
	return &CreditService{DB: db, InitialCredits: initialCredits, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *CreditService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Summary returns the balance, the active subscription if any, and the ten
// newest ledger entries.
func (s *CreditService) Summary(ctx context.Context, userID string) (*CreditSummary, error) {
	ctx, span := otel.Tracer("services/CreditService").Start(ctx, "Summary",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if err := s.ensureInitialGrant(ctx, userID); err != nil {
		return nil, err
	}
	bal, err := repo.RefreshBalance(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := &CreditSummary{Balance: bal}

	sub, err := repo.ActiveSubscription(ctx, s.DB, userID, s.now())
	switch {
	case err == nil:
		out.ActiveSubscription = sub
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	recent, err := repo.RecentTransactions(ctx, s.DB, userID, RecentTransactionsLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []domain.CreditTransaction{}
	}
	out.RecentTransactions = recent
	return out, nil
}

// Balance returns the ledger sum for userID. Mid-pipeline reads are advisory.
func (s *CreditService) Balance(ctx context.Context, userID string) (int, error) {
	if err := s.ensureInitialGrant(ctx, userID); err != nil {
		return 0, err
	}
	if bal, ok, err := repo.CachedBalance(ctx, s.DB, userID); err == nil && ok {
		return bal, nil
	}
	return repo.SumTransactions(ctx, s.DB, userID)
}

// DebitForVideo appends the VIDEO_GENERATION entry for processID. A second
// call for the same process returns ErrDuplicateDebit and changes nothing.
func (s *CreditService) DebitForVideo(ctx context.Context, userID, processID string, cost int, durationSeconds float64) error {
	ctx, span := otel.Tracer("services/CreditService").Start(ctx, "DebitForVideo",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("process.id", processID),
			attribute.Int("cost", cost),
		))
	defer span.End()

	if cost <= 0 {
		return fmt.Errorf("%w: cost must be positive", ErrInvalidGrant)
	}
	meta, _ := json.Marshal(map[string]any{"durationSeconds": durationSeconds, "cost": cost})
	tx := &domain.CreditTransaction{
		UserID:          userID,
		Amount:          -cost,
		Description:     "Video generation",
		TransactionType: domain.TxVideoGeneration,
		Reference:       domain.Ptr(processID),
		Metadata:        meta,
	}
	return s.append(ctx, tx)
}

// Grant appends a positive or negative adjustment. reference may be empty;
// when set, repeating the same (reference, type) returns ErrDuplicateDebit.
func (s *CreditService) Grant(ctx context.Context, userID string, amount int, typ domain.TransactionType, description, reference string) (*domain.CreditTransaction, error) {
	if amount == 0 || !typ.Valid() || userID == "" {
		return nil, ErrInvalidGrant
	}
	tx := &domain.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		Description:     description,
		TransactionType: typ,
	}
	if reference != "" {
		tx.Reference = domain.Ptr(reference)
	}
	if err := s.append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *CreditService) append(ctx context.Context, t *domain.CreditTransaction) error {
	t.CreatedAt = s.now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertTransaction(ctx, tx, t); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateDebit
			}
			return err
		}
		_, err := repo.RefreshBalance(ctx, tx, t.UserID)
		return err
	})
}

// ensureInitialGrant gives a new user InitialCredits exactly once.
func (s *CreditService) ensureInitialGrant(ctx context.Context, userID string) error {
	if s.InitialCredits <= 0 {
		return nil
	}
	n, err := repo.CountTransactions(ctx, s.DB, userID)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.Grant(ctx, userID, s.InitialCredits, domain.TxInitial, "Welcome credits", "initial:"+userID)
	if errors.Is(err, ErrDuplicateDebit) {
		return nil
	}
	return err
}

// Subscribe activates plan for userID for one month starting at the current
// time and grants its monthly credits. An active subscription is renewed in
// place and the grant is recorded as RENEWAL. The grant is keyed by the
// subscription and period start, so replaying the same period adds nothing.
func (s *CreditService) Subscribe(ctx context.Context, userID, plan string, monthlyCredits int) (*domain.Subscription, error) {
	if userID == "" || plan == "" || monthlyCredits <= 0 {
		return nil, ErrInvalidGrant
	}
	ctx, span := otel.Tracer("services/CreditService").Start(ctx, "Subscribe",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("plan", plan)))
	defer span.End()

	now := s.now()
	typ := domain.TxSubscription
	sub, err := repo.ActiveSubscription(ctx, s.DB, userID, now)
	switch {
	case err == nil:
		typ = domain.TxRenewal
	case errors.Is(err, repo.ErrNotFound):
		sub = &domain.Subscription{UserID: userID}
	default:
		return nil, err
	}

	start := now.Truncate(24 * time.Hour)
	sub.PlanType = plan
	sub.MonthlyCredits = monthlyCredits
	sub.Active = true
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = start.AddDate(0, 1, 0)
	if err := repo.UpsertSubscription(ctx, s.DB, sub); err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("sub:%s:%s", sub.ID, start.Format("2006-01-02"))
	desc := fmt.Sprintf("%s plan credits", plan)
	if _, err := s.Grant(ctx, userID, monthlyCredits, typ, desc, ref); err != nil && !errors.Is(err, ErrDuplicateDebit) {
		return nil, err
	}
	return sub, nil
}
