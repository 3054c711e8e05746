// Package services – Orchestrator
//
// This file implements the pipeline that drives one generation process from
// STARTED to DONE or FAILED. Every stage transition is merged into the
// Progress Store; vendor start calls are retried with linear backoff and
// vendor jobs are polled on a fixed interval with a bounded attempt budget.
//
// Observability: Execute opens one span per run and one child span per stage.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/repo"
	"github.com/tbourn/go-reel-backend/internal/retry"
)

// CancelledReason is the failure reason of a user-cancelled process.
const CancelledReason = "cancelled by user"

// errCancelled stops the pipeline at the next checkpoint.
var errCancelled = errors.New(CancelledReason)

// Staging reads and discards files parked at submission time.
type Staging interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// JobTracker exposes the queue row to the orchestrator.
type JobTracker interface {
	IsCancelRequested(ctx context.Context, processID string) (bool, error)
	SetStage(ctx context.Context, processID string, stage domain.Stage) error
}

// Debiter bills a finished process.
type Debiter interface {
	DebitForVideo(ctx context.Context, userID, processID string, cost int, durationSeconds float64) error
}

// VideoRecorder persists the Video produced by a successful process.
type VideoRecorder interface {
	Record(ctx context.Context, v *domain.Video) error
}

// Orchestrator runs generation processes. Gateway and Store are required;
// the remaining collaborators are optional.
type Orchestrator struct {
	Gateway gateway.Gateway
	Store   progress.Store
	Staging Staging
	Jobs    JobTracker
	Credits Debiter
	Videos  VideoRecorder

	StartPolicy     retry.Policy
	PollInterval    time.Duration
	PollMaxAttempts int

	Log zerolog.Logger
}

// Run implements worker.Runner.
func (o *Orchestrator) Run(ctx context.Context, job *domain.GenerationJob) domain.Outcome {
	req, err := repo.DecodeRequest(job)
	if err != nil {
		r := o.newRun(job.ID, job.UserID, req)
		return r.fail(ctx, fmt.Errorf("decode request: %w", err))
	}
	return o.Execute(ctx, job.ID, job.UserID, req)
}

// Execute drives one process to a terminal state and returns its Outcome.
// A process already terminal in the store is not run again. When ctx is
// cancelled (as opposed to timing out) the run is interrupted: the store keeps
// its last non-terminal snapshot and the returned Outcome has kind progress.
func (o *Orchestrator) Execute(ctx context.Context, processID, userID string, req domain.GenerationRequest) domain.Outcome {
	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("process.id", processID),
			attribute.String("user.id", userID),
			attribute.String("script.option", req.ScriptOption),
		),
	)
	defer span.End()

	r := o.newRun(processID, userID, req)
	if cur, err := o.Store.Read(ctx, processID); err == nil {
		r.snap = cur
		if cur.Terminal() {
			r.log.Info().Msg("process already terminal; skipping")
			return cur.Outcome()
		}
	}

	r.update(ctx, domain.ProcessUpdate{VoiceID: domain.Ptr(req.VoiceID)})
	if err := r.pipeline(ctx); err != nil {
		span.RecordError(err)
		if errors.Is(ctx.Err(), context.Canceled) {
			return r.interrupt(ctx, err)
		}
		span.SetStatus(codes.Error, err.Error())
		return r.fail(ctx, err)
	}
	out := r.snap.Outcome()
	processOutcomes.WithLabelValues(string(out.Kind)).Inc()
	return out
}

func (o *Orchestrator) newRun(processID, userID string, req domain.GenerationRequest) *run {
	return &run{
		o:      o,
		id:     processID,
		userID: userID,
		req:    req,
		snap:   domain.NewProcess(processID),
		log:    o.Log.With().Str("component", "orchestrator").Str("process_id", processID).Logger(),
	}
}

// run is the mutable state of one Execute call.
type run struct {
	o      *Orchestrator
	id     string
	userID string
	req    domain.GenerationRequest
	snap   domain.GenerationProcess
	log    zerolog.Logger

	stage      domain.Stage
	stageStart time.Time

	uploadKeys []string
	script     string
	supporting string
	portrait   string
	avatarURL  string
	finalURL   string
	duration   float64
}

func (r *run) pipeline(ctx context.Context) error {
	steps := []struct {
		stage    domain.Stage
		progress int
		status   string
		fn       func(context.Context) error
		skip     bool
	}{
		{domain.StageUploadingMedia, 10, "Uploading media...", r.uploadMedia, !r.req.HasFiles()},
		{domain.StageScripting, 25, "Generating script...", r.writeScript, false},
		{domain.StageSynthesizing, 50, "Creating avatar video...", r.synthesize, false},
		{domain.StageCompositing, 75, "Compositing final video...", r.compose, false},
		{domain.StageFinalizing, 97, "Finalizing...", r.finalize, false},
	}

	for _, s := range steps {
		if s.skip {
			continue
		}
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		if s.stage == domain.StageScripting {
			r.resolveMedia(ctx)
		}
		r.enter(ctx, s.stage, s.progress, s.status)
		if err := r.traced(ctx, s.stage, s.fn); err != nil {
			return err
		}
	}

	r.leave()
	r.update(ctx, domain.ProcessUpdate{
		Progress:      domain.Ptr(100),
		Status:        domain.Ptr("Done!"),
		Stage:         domain.Ptr(domain.StageDone),
		FinalVideoURL: domain.Ptr(r.finalURL),
	})
	r.setJobStage(ctx, domain.StageDone)
	r.log.Info().Str("final_video_url", r.finalURL).Msg("process done")
	r.cleanup(ctx, true)
	return nil
}

func (r *run) traced(ctx context.Context, stage domain.Stage, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("services/Orchestrator").Start(ctx, string(stage))
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// enter records a stage transition in the store and on the job row.
func (r *run) enter(ctx context.Context, stage domain.Stage, pct int, status string) {
	r.leave()
	r.stage = stage
	r.stageStart = time.Now()
	r.log.Debug().Str("stage", string(stage)).Msg("entering stage")
	r.update(ctx, domain.ProcessUpdate{
		Progress: domain.Ptr(pct),
		Status:   domain.Ptr(status),
		Stage:    domain.Ptr(stage),
	})
	r.setJobStage(ctx, stage)
}

func (r *run) leave() {
	if r.stage != "" {
		stageDuration.WithLabelValues(string(r.stage)).Observe(time.Since(r.stageStart).Seconds())
		r.stage = ""
	}
}

func (r *run) setJobStage(ctx context.Context, stage domain.Stage) {
	if r.o.Jobs == nil {
		return
	}
	if err := r.o.Jobs.SetStage(ctx, r.id, stage); err != nil {
		r.log.Warn().Err(err).Str("stage", string(stage)).Msg("failed to record job stage")
	}
}

// update merges u into the store. A store failure keeps the in-memory value
// so the run carries on.
func (r *run) update(ctx context.Context, u domain.ProcessUpdate) {
	merged, err := r.o.Store.Merge(ctx, r.id, u)
	if err != nil {
		r.log.Warn().Err(err).Msg("progress store write failed")
		r.snap = r.snap.Apply(u, time.Now().UTC())
		return
	}
	r.snap = merged
}

// checkpoint stops the run when ctx is done or a cancel was requested.
func (r *run) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.o.Jobs != nil {
		if c, err := r.o.Jobs.IsCancelRequested(ctx, r.id); err == nil && c {
			return errCancelled
		}
	}
	if p, err := r.o.Store.Read(ctx, r.id); err == nil && p.Cancelled {
		return errCancelled
	}
	return nil
}

// uploadMedia pushes staged files to durable storage. Failures leave the slot
// empty so the default asset is used.
func (r *run) uploadMedia(ctx context.Context) error {
	r.supporting = r.upload(ctx, r.req.SupportingMedia, "supporting")
	r.portrait = r.upload(ctx, r.req.VoiceMedia, "voice")
	r.update(ctx, domain.ProcessUpdate{Progress: domain.Ptr(15)})
	return nil
}

func (r *run) upload(ctx context.Context, f *domain.StagedFile, slot string) string {
	if f == nil {
		return ""
	}
	log := r.log.With().Str("slot", slot).Str("file", f.Name).Logger()
	if r.o.Staging == nil {
		log.Warn().Msg("no staging configured; using default asset")
		anomalies.WithLabelValues("upload_failed").Inc()
		return ""
	}
	data, err := r.o.Staging.Read(ctx, f.Key)
	if err != nil {
		log.Warn().Err(err).Msg("staged file unreadable; using default asset")
		anomalies.WithLabelValues("upload_failed").Inc()
		return ""
	}
	up, err := r.o.Gateway.UploadFile(ctx, f.Name, data)
	if err != nil {
		log.Warn().Err(err).Msg("upload failed; using default asset")
		anomalies.WithLabelValues("upload_failed").Inc()
		return ""
	}
	r.uploadKeys = append(r.uploadKeys, up.Key)
	if !up.Durable {
		log.Warn().Str("url", up.URL).Msg("upload stored on local fallback")
		anomalies.WithLabelValues("upload_local_fallback").Inc()
	}
	return up.URL
}

// resolveMedia fixes the media URLs handed to vendors. Uploaded files win
// over pasted URLs; anything unusable becomes the default asset.
func (r *run) resolveMedia(ctx context.Context) {
	supporting := lo.Ternary(r.supporting != "", r.supporting, r.req.SupportingMediaURL)
	portrait := lo.Ternary(r.portrait != "", r.portrait, r.req.VoiceMediaURL)
	r.supporting = r.o.Gateway.ResolveMedia(ctx, supporting, gateway.MediaSupporting)
	r.portrait = r.o.Gateway.ResolveMedia(ctx, portrait, gateway.MediaPortrait)
	r.update(ctx, domain.ProcessUpdate{
		SupportingMediaURL: domain.Ptr(r.supporting),
		VoiceMediaURL:      domain.Ptr(r.portrait),
	})
}

// writeScript passes a custom script through or asks the LLM for one. An
// exhausted LLM falls back to a templated script.
func (r *run) writeScript(ctx context.Context) error {
	switch r.req.ScriptOption {
	case domain.ScriptOptionCustom:
		r.script = strings.TrimSpace(r.req.CustomScript)
		if r.script == "" {
			return ErrMissingScript
		}
	case domain.ScriptOptionGPT:
		topic := strings.TrimSpace(r.req.Topic)
		if topic == "" {
			return ErrMissingScript
		}
		s, err := retry.DoWithResult(ctx, r.policy("script"), func(ctx context.Context, _ int) (string, error) {
			return r.o.Gateway.GenerateScript(ctx, topic)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warn().Err(err).Msg("script generation exhausted; using fallback script")
			anomalies.WithLabelValues("script_fallback").Inc()
			s = FallbackScript(topic)
		}
		r.script = s
	default:
		return ErrInvalidScriptOption
	}
	r.update(ctx, domain.ProcessUpdate{
		Progress:   domain.Ptr(30),
		Status:     domain.Ptr("Script ready"),
		ScriptText: domain.Ptr(r.script),
	})
	return nil
}

// FallbackScript is used when the LLM cannot produce a script.
func FallbackScript(topic string) string {
	return fmt.Sprintf("Here's a cool video about %s!", strings.Join(strings.Fields(topic), " "))
}

func (r *run) synthesize(ctx context.Context) error {
	areq := gateway.AvatarRequest{
		Script:      r.script,
		VoiceID:     r.req.VoiceID,
		PortraitURL: r.portrait,
		HighRes:     r.req.HighResolution,
	}
	jobID, err := retry.DoWithResult(ctx, r.policy("avatar"), func(ctx context.Context, _ int) (string, error) {
		return r.o.Gateway.StartAvatarSynthesis(ctx, areq)
	})
	if err != nil {
		return fmt.Errorf("avatar synthesis failed to start: %w", err)
	}
	r.log.Info().Str("avatar_job_id", jobID).Msg("avatar synthesis started")

	err = r.poll(ctx, "avatar", 50, 70, func(ctx context.Context) (bool, error) {
		st, err := r.o.Gateway.PollAvatarSynthesis(ctx, jobID)
		if err != nil {
			return false, err
		}
		if st.Failed {
			return false, retry.Permanent(fmt.Errorf("avatar synthesis failed: %s", st.Status))
		}
		if !st.Completed {
			return false, nil
		}
		if st.VideoURL == "" {
			return false, retry.Permanent(errors.New("avatar synthesis finished without a video url"))
		}
		r.avatarURL = st.VideoURL
		return true, nil
	})
	if err != nil {
		return err
	}
	r.update(ctx, domain.ProcessUpdate{
		Progress:   domain.Ptr(70),
		Status:     domain.Ptr("Avatar video ready"),
		AIVideoURL: domain.Ptr(r.avatarURL),
	})
	return nil
}

func (r *run) compose(ctx context.Context) error {
	creq := gateway.CompositionRequest{
		AvatarVideoURL:     r.avatarURL,
		SupportingMediaURL: r.supporting,
		HighRes:            r.req.HighResolution,
	}
	renderID, err := retry.DoWithResult(ctx, r.policy("composer"), func(ctx context.Context, _ int) (string, error) {
		return r.o.Gateway.StartComposition(ctx, creq)
	})
	if err != nil {
		return fmt.Errorf("composition failed to start: %w", err)
	}
	r.log.Info().Str("render_id", renderID).Msg("composition started")

	return r.poll(ctx, "composer", 75, 95, func(ctx context.Context) (bool, error) {
		st, err := r.o.Gateway.PollComposition(ctx, renderID)
		if err != nil {
			return false, err
		}
		if st.Failed {
			return false, retry.Permanent(fmt.Errorf("composition failed: %s", st.Status))
		}
		if !st.Completed {
			return false, nil
		}
		if st.URL == "" {
			return false, retry.Permanent(errors.New("composition finished without a url"))
		}
		r.finalURL = st.URL
		r.duration = st.DurationSeconds
		return true, nil
	})
}

// poll waits PollInterval then calls check, up to PollMaxAttempts times.
// Transient errors are logged and the loop continues; a permanent error
// ends the stage. Progress rises from `from` towards `to` as attempts pass.
func (r *run) poll(ctx context.Context, vendor string, from, to int, check func(context.Context) (bool, error)) error {
	limit := r.o.PollMaxAttempts
	if limit < 1 {
		limit = 1
	}
	for attempt := 1; attempt <= limit; attempt++ {
		if err := sleep(ctx, r.o.PollInterval); err != nil {
			return err
		}
		if err := r.checkpoint(ctx); err != nil {
			return err
		}

		done, err := check(ctx)
		switch {
		case err != nil && retry.IsPermanent(err):
			vendorPolls.WithLabelValues(vendor, "failed").Inc()
			return err
		case err != nil:
			vendorPolls.WithLabelValues(vendor, "error").Inc()
			r.log.Warn().Err(err).Str("vendor", vendor).Int("attempt", attempt).Msg("poll error; will retry")
			continue
		case done:
			vendorPolls.WithLabelValues(vendor, "completed").Inc()
			return nil
		}
		vendorPolls.WithLabelValues(vendor, "pending").Inc()
		r.update(ctx, domain.ProcessUpdate{Progress: domain.Ptr(from + (to-from)*attempt/limit)})
	}
	return fmt.Errorf("%s timed out after %d polls", vendor, limit)
}

// finalize records the video and bills the user. Neither failure blocks
// delivery of the final URL.
func (r *run) finalize(ctx context.Context) error {
	cost, anomalous := CreditCost(r.duration)
	if anomalous {
		anomalies.WithLabelValues("cost_floor").Inc()
		r.log.Warn().Float64("duration_seconds", r.duration).Int("cost", cost).Msg("unusable render duration; charging minimum")
	}

	if r.o.Videos != nil {
		v := &domain.Video{
			UserID:          r.userID,
			ProcessID:       r.id,
			Title:           videoTitle(r.req, r.script),
			FinalVideoURL:   r.finalURL,
			ScriptText:      r.script,
			AIVideoURL:      lo.EmptyableToPtr(r.avatarURL),
			DurationSeconds: r.duration,
		}
		if err := r.o.Videos.Record(ctx, v); err != nil {
			r.log.Error().Err(err).Msg("failed to persist video")
		}
	}

	if r.o.Credits != nil {
		err := r.o.Credits.DebitForVideo(ctx, r.userID, r.id, cost, r.duration)
		switch {
		case errors.Is(err, ErrDuplicateDebit):
			r.log.Info().Msg("process already debited")
		case err != nil:
			anomalies.WithLabelValues("debit_failed").Inc()
			r.log.Warn().Err(err).Int("cost", cost).Msg("credit debit failed")
		default:
			creditsDebited.Add(float64(cost))
			r.log.Info().Int("cost", cost).Msg("credits debited")
		}
	}
	return nil
}

// fail forces the terminal failure state. It writes even when ctx is done.
func (r *run) fail(ctx context.Context, cause error) domain.Outcome {
	ctx = context.WithoutCancel(ctx)
	cancelled := errors.Is(cause, errCancelled)
	reason := failureReason(cause)

	r.leave()
	r.update(ctx, domain.ProcessUpdate{
		Progress:      domain.Ptr(100),
		Status:        domain.Ptr(domain.ErrorPrefix + reason),
		Stage:         domain.Ptr(domain.StageFailed),
		FailureReason: domain.Ptr(reason),
		Cancelled:     domain.Ptr(cancelled),
	})
	r.setJobStage(ctx, domain.StageFailed)
	r.cleanup(ctx, false)

	if cancelled {
		r.log.Info().Msg("process cancelled")
	} else {
		r.log.Warn().Err(cause).Msg("process failed")
	}
	out := r.snap.Outcome()
	processOutcomes.WithLabelValues(string(out.Kind)).Inc()
	return out
}

// interrupt abandons the run without a terminal write. Staged files stay for
// the next attempt; durable uploads made by this attempt are dropped.
func (r *run) interrupt(ctx context.Context, cause error) domain.Outcome {
	r.log.Warn().Err(cause).Str("stage", string(r.stage)).Int("progress", r.snap.Progress).
		Msg("process interrupted; leaving it for another attempt")
	r.leave()
	r.discardUploads(context.WithoutCancel(ctx))
	processOutcomes.WithLabelValues("interrupted").Inc()
	return r.snap.Outcome()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "pipeline timed out"
	case errors.Is(err, context.Canceled):
		return "pipeline interrupted"
	default:
		return err.Error()
	}
}

// cleanup removes staged files always, and durable uploads once DONE.
func (r *run) cleanup(ctx context.Context, done bool) {
	ctx = context.WithoutCancel(ctx)
	if r.o.Staging != nil {
		for _, f := range []*domain.StagedFile{r.req.SupportingMedia, r.req.VoiceMedia} {
			if f == nil {
				continue
			}
			if err := r.o.Staging.Remove(ctx, f.Key); err != nil {
				r.log.Warn().Err(err).Str("key", f.Key).Msg("failed to remove staged file")
			}
		}
	}
	if done {
		r.discardUploads(ctx)
	}
}

func (r *run) discardUploads(ctx context.Context) {
	for _, key := range lo.Compact(r.uploadKeys) {
		if err := r.o.Gateway.DeleteUpload(ctx, key); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("failed to delete upload")
		}
	}
	r.uploadKeys = nil
}

const titleMaxRunes = 80

// videoTitle derives a display title from the topic, or from the first words
// of a custom script.
func videoTitle(req domain.GenerationRequest, script string) string {
	src := strings.TrimSpace(req.Topic)
	if req.ScriptOption == domain.ScriptOptionCustom || src == "" {
		words := strings.Fields(script)
		src = strings.Join(lo.Subset(words, 0, 8), " ")
	}
	src = strings.Join(strings.Fields(src), " ")
	if src == "" {
		return "Untitled video"
	}
	if utf8.RuneCountInString(src) > titleMaxRunes {
		src = strings.TrimSpace(string([]rune(src)[:titleMaxRunes]))
	}
	return cases.Title(language.Und).String(src)
}

func (r *run) policy(vendor string) retry.Policy {
	p := r.o.StartPolicy
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.log.Warn().Err(err).Str("vendor", vendor).Int("attempt", attempt).Dur("backoff", delay).Msg("start call failed; retrying")
	}
	return p
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
