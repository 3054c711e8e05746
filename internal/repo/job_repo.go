// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for GenerationJob,
// the queue record behind every processId.
//
// Queue claiming (dequeue / mark*) lives in the queue package; this file
// covers creation, ownership lookups, and the cooperative cancel flag.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// CreateJob inserts a queued job with the given processId and request.
func CreateJob(ctx context.Context, db *gorm.DB, processID, userID string, req domain.GenerationRequest) (*domain.GenerationJob, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := &domain.GenerationJob{
		ID:        processID,
		UserID:    userID,
		Status:    domain.JobQueued,
		Stage:     domain.StageStarted,
		Request:   raw,
		QueuedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return job, nil
}

// GetJob loads a job by processId.
func GetJob(ctx context.Context, db *gorm.DB, processID string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := db.WithContext(ctx).First(&job, "id = ?", processID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobForUser loads a job only if userID owns it.
func GetJobForUser(ctx context.Context, db *gorm.DB, processID, userID string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", processID, userID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// DecodeRequest unmarshals the stored submission.
func DecodeRequest(job *domain.GenerationJob) (domain.GenerationRequest, error) {
	var req domain.GenerationRequest
	if len(job.Request) == 0 {
		return req, errors.New("job has no request payload")
	}
	err := json.Unmarshal(job.Request, &req)
	return req, err
}

// RequestCancel sets the cancel flag on a non-terminal job owned by userID.
// A job that no worker has claimed yet moves straight to cancelled; the
// returned bool reports that case.
func RequestCancel(ctx context.Context, db *gorm.DB, processID, userID string) (cancelledNow bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.GenerationJob
		if err := tx.Where("id = ? AND user_id = ?", processID, userID).First(&job).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		switch job.Status {
		case domain.JobQueued:
			res := tx.Model(&domain.GenerationJob{}).
				Where("id = ? AND status = ?", processID, domain.JobQueued).
				Updates(map[string]any{
					"status":           domain.JobCancelled,
					"cancel_requested": true,
					"stage":            domain.StageFailed,
					"finished_at":      now,
					"updated_at":       now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				cancelledNow = true
				return nil
			}
			// Claimed between read and update; fall through to the flag.
		case domain.JobCompleted, domain.JobFailed, domain.JobCancelled:
			return ErrTerminal
		}
		return tx.Model(&domain.GenerationJob{}).
			Where("id = ?", processID).
			Updates(map[string]any{"cancel_requested": true, "updated_at": now}).Error
	})
	return cancelledNow, err
}

// ErrTerminal is returned when acting on a job that already finished.
var ErrTerminal = errors.New("job already finished")

// IsCancelRequested reports the cooperative cancel flag.
func IsCancelRequested(ctx context.Context, db *gorm.DB, processID string) (bool, error) {
	var row struct{ CancelRequested bool }
	err := db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Select("cancel_requested").
		Where("id = ?", processID).
		Take(&row).Error
	if err != nil {
		return false, err
	}
	return row.CancelRequested, nil
}

// UpdateJobStage records the stage last reached by the orchestrator.
func UpdateJobStage(ctx context.Context, db *gorm.DB, processID string, stage domain.Stage) error {
	return db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", processID).
		Updates(map[string]any{"stage": stage, "updated_at": time.Now().UTC()}).Error
}
