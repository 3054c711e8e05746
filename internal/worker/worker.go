// Package worker drains the generation queue. Each worker claims one job at a
// time, runs the pipeline under a per-task timeout, and records the terminal
// job state from the returned Outcome.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/queue"
)

// Runner executes one claimed job to completion. An Outcome of kind progress
// means the run was interrupted and the job should be claimed again.
type Runner interface {
	Run(ctx context.Context, job *domain.GenerationJob) domain.Outcome
}

// ErrShutdown is the cancel cause of a task interrupted by shutdown.
var ErrShutdown = errors.New("worker shutting down")

// DefaultDrainTimeout bounds how long an in-flight job may keep running once
// shutdown starts.
const DefaultDrainTimeout = 20 * time.Second

// Worker processes jobs from the queue.
type Worker struct {
	id           int
	queue        queue.TaskQueue
	runner       Runner
	pollInterval time.Duration
	taskTimeout  time.Duration
	drainTimeout time.Duration
	log          zerolog.Logger
	stopChan     chan struct{}
}

// NewWorker creates a worker.
func NewWorker(id int, q queue.TaskQueue, r Runner, pollInterval, taskTimeout time.Duration, log zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		id:           id,
		queue:        q,
		runner:       r,
		pollInterval: pollInterval,
		taskTimeout:  taskTimeout,
		drainTimeout: DefaultDrainTimeout,
		log:          log.With().Int("worker_id", id).Str("component", "worker").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start polls the queue until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			// Drain back-to-back while work is available.
			for w.processNextTask(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stopChan:
					return
				default:
				}
			}
		}
	}
}

// Stop signals the worker to exit after the current job.
func (w *Worker) Stop() {
	close(w.stopChan)
}

// processNextTask reports whether a job was claimed.
func (w *Worker) processNextTask(ctx context.Context) bool {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to dequeue job")
		return false
	}
	if job == nil {
		return false
	}

	log := w.log.With().Str("process_id", job.ID).Str("user_id", job.UserID).Logger()
	log.Info().Int("attempt", job.Attempts).Msg("processing generation job")
	jobsInFlight.Inc()
	defer jobsInFlight.Dec()

	// The task outlives ctx by up to drainTimeout so shutdown lets it finish.
	taskCtx, interrupt := context.WithCancelCause(context.WithoutCancel(ctx))
	defer interrupt(nil)
	if w.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, w.taskTimeout)
		defer cancel()
	}
	finished := make(chan struct{})
	defer close(finished)
	go w.interruptOnShutdown(ctx, finished, interrupt)

	out := w.runner.Run(taskCtx, job)

	// The job row must reach a terminal state even when ctx is shutting down.
	markCtx := context.WithoutCancel(ctx)
	var markErr error
	switch {
	case out.Kind == domain.OutcomeSuccess:
		markErr = w.queue.MarkCompleted(markCtx, job.ID)
		log.Info().Str("final_video_url", out.FinalVideoURL).Msg("job completed")
	case out.Cancelled:
		markErr = w.queue.MarkCancelled(markCtx, job.ID)
		log.Info().Msg("job cancelled")
	case out.Kind == domain.OutcomeProgress:
		markErr = w.queue.Requeue(markCtx, job.ID)
		log.Warn().Int("progress", out.Progress).Msg("job interrupted; requeued")
	default:
		reason := out.Reason
		if reason == "" {
			reason = "pipeline ended without a result"
		}
		markErr = w.queue.MarkFailed(markCtx, job.ID, reason)
		log.Warn().Str("reason", reason).Msg("job failed")
	}
	jobsFinished.WithLabelValues(outcomeLabel(out)).Inc()
	if markErr != nil {
		log.Error().Err(markErr).Msg("failed to record job state")
	}
	return true
}

// interruptOnShutdown cancels the task with ErrShutdown once ctx is done or
// Stop is called and the drain window has passed.
func (w *Worker) interruptOnShutdown(ctx context.Context, finished <-chan struct{}, interrupt context.CancelCauseFunc) {
	select {
	case <-finished:
		return
	case <-ctx.Done():
	case <-w.stopChan:
	}
	timer := time.NewTimer(w.drainTimeout)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		w.log.Warn().Dur("drain_timeout", w.drainTimeout).Msg("interrupting in-flight job")
		interrupt(ErrShutdown)
	}
}

func outcomeLabel(o domain.Outcome) string {
	switch {
	case o.Kind == domain.OutcomeSuccess:
		return "completed"
	case o.Cancelled:
		return "cancelled"
	case o.Kind == domain.OutcomeProgress:
		return "requeued"
	default:
		return "failed"
	}
}
