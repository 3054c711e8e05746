// Package services – GenerationService
//
// GenerationService is the request-side half of the pipeline. Submit
// validates the form, parks uploaded bytes in local staging, enqueues a job,
// seeds the Progress Store, and returns the processId without waiting for any
// vendor work. Progress, Cancel, and Job serve the follow-up calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/queue"
	"github.com/tbourn/go-reel-backend/internal/repo"
)

// IdempotencyScope namespaces submit keys in the idempotency table.
const IdempotencyScope = "POST:/generations"

// StagingWriter parks submitted files until a worker uploads them.
type StagingWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

// BalanceReader answers the advisory balance check.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// FilePart is one uploaded form file.
type FilePart struct {
	Name string
	Data []byte
}

// SubmitInput is the submit form.
type SubmitInput struct {
	ScriptOption       string
	Topic              string
	CustomScript       string
	SupportingMediaURL string
	SupportingMedia    *FilePart
	VoiceID            string
	VoiceMediaURL      string
	VoiceMedia         *FilePart
	HighResolution     bool

	IdempotencyKey string
}

// SubmitResult carries the processId; Replayed is true when an earlier
// submission with the same Idempotency-Key was returned.
type SubmitResult struct {
	ProcessID string
	Replayed  bool
}

// GenerationService handles submission and progress queries.
type GenerationService struct {
	DB      *gorm.DB
	Queue   queue.TaskQueue
	Store   progress.Store
	Staging StagingWriter
	Credits BalanceReader
	Uploads gateway.Gateway

	IdempotencyTTL time.Duration
	// MinimumBalance refuses submissions below it. Zero disables the check.
	MinimumBalance int

	Log zerolog.Logger
}

// Submit validates in, enqueues a job, and returns its processId.
func (s *GenerationService) Submit(ctx context.Context, userID string, in SubmitInput) (*SubmitResult, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("script.option", in.ScriptOption),
		),
	)
	defer span.End()

	req, err := validateSubmit(in)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if rec, err := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScope, key, time.Now().UTC()); err == nil {
			return &SubmitResult{ProcessID: rec.ResourceID, Replayed: true}, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	if s.MinimumBalance > 0 && s.Credits != nil {
		bal, err := s.Credits.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		if bal < s.MinimumBalance {
			return nil, ErrInsufficientCredits
		}
	}

	processID := uuid.NewString()
	span.SetAttributes(attribute.String("process.id", processID))

	if req.SupportingMedia, err = s.stage(ctx, processID, "supporting", in.SupportingMedia); err != nil {
		return nil, err
	}
	if req.VoiceMedia, err = s.stage(ctx, processID, "voice", in.VoiceMedia); err != nil {
		s.unstage(ctx, req)
		return nil, err
	}

	if _, err := s.Queue.Enqueue(ctx, processID, userID, req); err != nil {
		s.unstage(ctx, req)
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	if key != "" {
		_, err := repo.CreateIdempotency(ctx, s.DB, userID, IdempotencyScope, key, processID, 202, s.ttl())
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent replay: keep the winner.
			if cerr := s.Queue.MarkCancelled(ctx, processID); cerr != nil {
				s.Log.Warn().Err(cerr).Str("process_id", processID).Msg("failed to cancel duplicate submission")
			}
			s.unstage(ctx, req)
			if rec, gerr := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScope, key, time.Now().UTC()); gerr == nil {
				return &SubmitResult{ProcessID: rec.ResourceID, Replayed: true}, nil
			}
			return nil, err
		}
		if err != nil {
			s.Log.Warn().Err(err).Str("process_id", processID).Msg("failed to store idempotency key")
		}
	}

	if _, err := s.Store.Merge(ctx, processID, domain.ProcessUpdate{
		Progress: domain.Ptr(0),
		VoiceID:  domain.Ptr(req.VoiceID),
	}); err != nil {
		s.Log.Warn().Err(err).Str("process_id", processID).Msg("failed to seed progress store")
	}

	s.Log.Info().Str("process_id", processID).Str("user_id", userID).Msg("generation submitted")
	return &SubmitResult{ProcessID: processID}, nil
}

func (s *GenerationService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// stage writes f under staging/<processId>/<slot><ext>.
func (s *GenerationService) stage(ctx context.Context, processID, slot string, f *FilePart) (*domain.StagedFile, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, nil
	}
	if s.Staging == nil {
		return nil, errors.New("file uploads are not configured")
	}
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(f.Name, "\\", "/"))))
	key, err := s.Staging.Write(ctx, path.Join(processID, slot+ext), f.Data)
	if err != nil {
		return nil, fmt.Errorf("stage %s file: %w", slot, err)
	}
	return &domain.StagedFile{Key: key, Name: f.Name, Size: int64(len(f.Data))}, nil
}

func (s *GenerationService) unstage(ctx context.Context, req domain.GenerationRequest) {
	for _, f := range []*domain.StagedFile{req.SupportingMedia, req.VoiceMedia} {
		if f != nil && s.Staging != nil {
			_ = s.Staging.Remove(ctx, f.Key)
		}
	}
}

func validateSubmit(in SubmitInput) (domain.GenerationRequest, error) {
	req := domain.GenerationRequest{
		ScriptOption:       strings.ToLower(strings.TrimSpace(in.ScriptOption)),
		Topic:              strings.TrimSpace(in.Topic),
		CustomScript:       strings.TrimSpace(in.CustomScript),
		SupportingMediaURL: strings.TrimSpace(in.SupportingMediaURL),
		VoiceID:            strings.TrimSpace(in.VoiceID),
		VoiceMediaURL:      strings.TrimSpace(in.VoiceMediaURL),
		HighResolution:     in.HighResolution,
	}
	switch req.ScriptOption {
	case domain.ScriptOptionGPT:
		if req.Topic == "" {
			return req, ErrMissingScript
		}
	case domain.ScriptOptionCustom:
		if req.CustomScript == "" {
			return req, ErrMissingScript
		}
	default:
		return req, ErrInvalidScriptOption
	}
	if req.VoiceID == "" {
		return req, ErrMissingVoice
	}
	return req, nil
}

// ProgressView is a snapshot plus its discriminated outcome.
type ProgressView struct {
	Process domain.GenerationProcess `json:"process"`
	Outcome domain.Outcome           `json:"outcome"`
}

// Progress reads the store. An unknown processId yields *progress.NotFoundError.
func (s *GenerationService) Progress(ctx context.Context, processID string) (*ProgressView, error) {
	p, err := s.Store.Read(ctx, processID)
	if err != nil {
		return nil, err
	}
	return &ProgressView{Process: p, Outcome: p.Outcome()}, nil
}

// Cancel requests cooperative cancellation. A job no worker has claimed is
// finished immediately; a running one stops at its next checkpoint.
func (s *GenerationService) Cancel(ctx context.Context, userID, processID string) error {
	ctx, span := otel.Tracer("services/GenerationService").Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("process.id", processID)))
	defer span.End()

	now, err := repo.RequestCancel(ctx, s.DB, processID, userID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrProcessNotFound
	case errors.Is(err, repo.ErrTerminal):
		return ErrAlreadyTerminal
	case err != nil:
		return err
	}

	u := domain.ProcessUpdate{Cancelled: domain.Ptr(true)}
	if now {
		u.Progress = domain.Ptr(100)
		u.Status = domain.Ptr(domain.ErrorPrefix + CancelledReason)
		u.Stage = domain.Ptr(domain.StageFailed)
		u.FailureReason = domain.Ptr(CancelledReason)
	}
	if _, err := s.Store.Merge(ctx, processID, u); err != nil {
		s.Log.Warn().Err(err).Str("process_id", processID).Msg("failed to flag cancellation in progress store")
	}
	if now {
		if job, err := repo.GetJob(ctx, s.DB, processID); err == nil {
			if req, err := repo.DecodeRequest(job); err == nil {
				s.unstage(ctx, req)
			}
		}
	}
	s.Log.Info().Str("process_id", processID).Bool("immediate", now).Msg("cancellation requested")
	return nil
}

// Job returns the queue row for processID if userID owns it.
func (s *GenerationService) Job(ctx context.Context, userID, processID string) (*domain.GenerationJob, error) {
	job, err := repo.GetJobForUser(ctx, s.DB, processID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProcessNotFound
	}
	return job, err
}

// Upload stores a file ahead of submission and returns its URL.
func (s *GenerationService) Upload(ctx context.Context, name string, data []byte) (gateway.Upload, error) {
	return s.Uploads.UploadFile(ctx, name, data)
}
