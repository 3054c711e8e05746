package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/repo"
)

// GormQueue implements TaskQueue on the generation_jobs table. On PostgreSQL
// the claim uses FOR UPDATE SKIP LOCKED; on SQLite a conditional update on
// status does the same job.
type GormQueue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewGormQueue creates a table-backed queue.
func NewGormQueue(db *gorm.DB, log zerolog.Logger) *GormQueue {
	return &GormQueue{
		db:  db,
		log: log.With().Str("component", "job-queue").Logger(),
	}
}

// Enqueue implements TaskQueue.
func (q *GormQueue) Enqueue(ctx context.Context, processID, userID string, req domain.GenerationRequest) (*domain.GenerationJob, error) {
	return repo.CreateJob(ctx, q.db, processID, userID, req)
}

// Dequeue implements TaskQueue.
func (q *GormQueue) Dequeue(ctx context.Context) (*domain.GenerationJob, error) {
	var claimed *domain.GenerationJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.GenerationJob
		sel := tx.Where("status = ? AND cancel_requested = ?", domain.JobQueued, false).
			Order("queued_at ASC").
			Limit(1)
		if repo.Dialect(q.db) == repo.DialectPostgres {
			sel = sel.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
		}
		res := sel.Find(&job)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		now := time.Now().UTC()
		upd := tx.Model(&domain.GenerationJob{}).
			Where("id = ? AND status = ?", job.ID, domain.JobQueued).
			Updates(map[string]any{
				"status":     domain.JobProcessing,
				"started_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil // another worker won the race
		}
		job.Status = domain.JobProcessing
		job.StartedAt = &now
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return claimed, nil
}

// MarkCompleted implements TaskQueue.
func (q *GormQueue) MarkCompleted(ctx context.Context, processID string) error {
	return q.finish(ctx, processID, domain.JobCompleted, domain.StageDone, "")
}

// MarkFailed implements TaskQueue.
func (q *GormQueue) MarkFailed(ctx context.Context, processID, reason string) error {
	return q.finish(ctx, processID, domain.JobFailed, domain.StageFailed, reason)
}

// MarkCancelled implements TaskQueue.
func (q *GormQueue) MarkCancelled(ctx context.Context, processID string) error {
	return q.finish(ctx, processID, domain.JobCancelled, domain.StageFailed, "cancelled by user")
}

func (q *GormQueue) finish(ctx context.Context, processID, status string, stage domain.Stage, reason string) error {
	now := time.Now().UTC()
	res := q.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", processID).
		Updates(map[string]any{
			"status":      status,
			"stage":       stage,
			"error":       reason,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("mark %s: %w", status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark %s: %w", status, repo.ErrNotFound)
	}
	return nil
}

// Requeue implements TaskQueue. Jobs no longer processing are left alone.
func (q *GormQueue) Requeue(ctx context.Context, processID string) error {
	res := q.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ?", processID, domain.JobProcessing).
		Updates(map[string]any{
			"status":     domain.JobQueued,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("requeue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("requeue: %w", repo.ErrNotFound)
	}
	return nil
}

// RequeueStale implements TaskQueue.
func (q *GormQueue) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := q.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("status = ? AND started_at < ?", domain.JobProcessing, cutoff).
		Updates(map[string]any{
			"status":     domain.JobQueued,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue stale: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		q.log.Warn().Int64("jobs", res.RowsAffected).Msg("requeued stale jobs")
	}
	return res.RowsAffected, nil
}

// Depth implements TaskQueue.
func (q *GormQueue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("status = ?", domain.JobQueued).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// IsCancelRequested exposes the job's cancel flag to the orchestrator.
func (q *GormQueue) IsCancelRequested(ctx context.Context, processID string) (bool, error) {
	ok, err := repo.IsCancelRequested(ctx, q.db, processID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return ok, err
}

// SetStage records the stage reached by the orchestrator.
func (q *GormQueue) SetStage(ctx context.Context, processID string, stage domain.Stage) error {
	return repo.UpdateJobStage(ctx, q.db, processID, stage)
}

var _ TaskQueue = (*GormQueue)(nil)
