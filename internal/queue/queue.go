// Package queue hands generation jobs from the submit endpoint to the worker
// pool through the generation_jobs table.
package queue

import (
	"context"
	"time"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// TaskQueue defines the operations workers need.
type TaskQueue interface {
	// Enqueue inserts a queued job.
	Enqueue(ctx context.Context, processID, userID string, req domain.GenerationRequest) (*domain.GenerationJob, error)

	// Dequeue claims the oldest queued job and marks it processing.
	// It returns (nil, nil) when nothing is queued.
	Dequeue(ctx context.Context) (*domain.GenerationJob, error)

	// MarkCompleted, MarkFailed, and MarkCancelled record the terminal state.
	MarkCompleted(ctx context.Context, processID string) error
	MarkFailed(ctx context.Context, processID string, reason string) error
	MarkCancelled(ctx context.Context, processID string) error

	// Requeue hands a processing job back to the queue, e.g. when a worker
	// shuts down mid-run.
	Requeue(ctx context.Context, processID string) error

	// RequeueStale returns jobs stuck in processing since before cutoff to
	// the queue, e.g. after a worker crash.
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)

	// Depth returns the number of queued jobs.
	Depth(ctx context.Context) (int64, error)
}
