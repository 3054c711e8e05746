// Package domain defines the persistence models for generation jobs, videos,
// the credit ledger, and subscriptions, plus the value types that describe an
// in-flight generation process. Persistent types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Job lifecycle states stored in generation_jobs.status.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// GenerationJob is the queue record handed from the submit endpoint to the
// worker pool. Its primary key is the processId returned to the client.
//
// Fields:
//   - ID: the processId (UUID, char(36)).
//   - UserID: submitting user; indexed for ownership checks.
//   - Status: queued|processing|completed|failed|cancelled.
//   - Stage: last pipeline stage reached (mirrors the Progress Store).
//   - Request: the submitted GenerationRequest as JSON.
//   - CancelRequested: cooperative cancellation flag polled between stages.
//   - Attempts: number of times a worker has claimed the job.
//   - Error: terminal failure reason, if any.
type GenerationJob struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string         `json:"user_id"          gorm:"type:varchar(64);not null;index:idx_jobs_user"`
	Status          string         `json:"status"           gorm:"type:varchar(16);not null;default:'queued';index:idx_jobs_status_queued,priority:1"`
	Stage           Stage          `json:"stage"            gorm:"type:varchar(32);not null;default:'STARTED'"`
	Request         datatypes.JSON `json:"request"          swaggertype:"object"`
	CancelRequested bool           `json:"cancel_requested" gorm:"not null;default:false"`
	Attempts        int            `json:"attempts"         gorm:"not null;default:0"`
	Error           string         `json:"error,omitempty"  gorm:"type:text"`
	QueuedAt        time.Time      `json:"queued_at"        gorm:"not null;index:idx_jobs_status_queued,priority:2"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName returns the database table name for GenerationJob.
func (GenerationJob) TableName() string { return "generation_jobs" }

// Video is the persisted result of a successful generation. Exactly one row
// exists per successful process (unique process_id).
type Video struct {
	ID              string    `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"                gorm:"type:varchar(64);not null;index:idx_user_videos,priority:1"`
	ProcessID       string    `json:"process_id"             gorm:"type:char(36);not null;uniqueIndex:ux_videos_process"`
	Title           string    `json:"title"                  gorm:"type:varchar(255)"`
	FinalVideoURL   string    `json:"final_video_url"        gorm:"type:text;not null"`
	ScriptText      string    `json:"script_text"            gorm:"type:text;not null"`
	AIVideoURL      *string   `json:"ai_video_url,omitempty" gorm:"type:text"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"             gorm:"index:idx_user_videos,priority:2"`
}

// TableName returns the database table name for Video.
func (Video) TableName() string { return "videos" }

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TxInitial         TransactionType = "INITIAL"
	TxMonthlyReset    TransactionType = "MONTHLY_RESET"
	TxSubscription    TransactionType = "SUBSCRIPTION"
	TxRenewal         TransactionType = "RENEWAL"
	TxVideoGeneration TransactionType = "VIDEO_GENERATION"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxInitial, TxMonthlyReset, TxSubscription, TxRenewal, TxVideoGeneration:
		return true
	}
	return false
}

// CreditTransaction is an append-only ledger entry. Positive amounts grant
// credits, negative amounts debit them. The pair (reference, type) is unique
// when a reference is present, which makes per-process debits idempotent.
//
// Fields:
//   - Reference: processId for VIDEO_GENERATION, "initial:<user>" for the
//     first grant, or any caller-chosen key; NULL for unkeyed grants.
//   - Metadata: free-form JSON (duration, plan, etc.).
type CreditTransaction struct {
	ID              string          `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          string          `json:"user_id"          gorm:"type:varchar(64);not null;index:idx_user_tx,priority:1"`
	Amount          int             `json:"amount"           gorm:"not null"`
	Description     string          `json:"description"      gorm:"type:varchar(255)"`
	TransactionType TransactionType `json:"transaction_type" gorm:"type:varchar(32);not null;uniqueIndex:ux_credit_ref_type,priority:2"`
	Reference       *string         `json:"reference,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_credit_ref_type,priority:1"`
	Metadata        datatypes.JSON  `json:"metadata,omitempty" swaggertype:"object"`
	CreatedAt       time.Time       `json:"created_at"       gorm:"index:idx_user_tx,priority:2"`
}

// TableName returns the database table name for CreditTransaction.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// CreditBalance caches the sum of a user's ledger entries. It is rewritten in
// the same transaction as every ledger insert and can be rebuilt at any time.
type CreditBalance struct {
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	Balance   int       `json:"balance"    gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CreditBalance.
func (CreditBalance) TableName() string { return "credit_balances" }

// Subscription is a read-only plan record owned by the payment provider.
type Subscription struct {
	ID                 string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string    `json:"user_id"              gorm:"type:varchar(64);not null;index"`
	PlanType           string    `json:"plan_type"            gorm:"type:varchar(32);not null"`
	MonthlyCredits     int       `json:"monthly_credits"      gorm:"not null;default:0"`
	Active             bool      `json:"active"               gorm:"not null;default:false;index"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }
