package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/progress"
)

// Interval bounds for the poll loop.
const (
	MinInterval     = time.Second
	MaxInterval     = 2 * time.Second
	DefaultInterval = 1500 * time.Millisecond
)

// StepState is the display state of one pipeline step.
type StepState string

const (
	StepPending StepState = "pending"
	StepActive  StepState = "active"
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
)

// Step is one user-facing indicator.
type Step struct {
	Stage domain.Stage `json:"stage"`
	Label string       `json:"label"`
	State StepState    `json:"state"`
}

var stepLabels = []Step{
	{Stage: domain.StageUploadingMedia, Label: "Uploading media"},
	{Stage: domain.StageScripting, Label: "Writing script"},
	{Stage: domain.StageSynthesizing, Label: "Creating avatar"},
	{Stage: domain.StageCompositing, Label: "Compositing video"},
	{Stage: domain.StageFinalizing, Label: "Finishing up"},
}

// Update is delivered to the caller after every successful fetch.
type Update struct {
	Snapshot Snapshot
	Steps    []Step
}

// Steps maps a snapshot to step indicators. A failed snapshot carries stage
// FAILED, so last names the stage the caller saw before the failure.
func Steps(p domain.GenerationProcess, last domain.Stage) []Step {
	out := make([]Step, len(stepLabels))
	copy(out, stepLabels)

	failed := p.Stage == domain.StageFailed || p.Failed()
	cur := indexOf(p.Stage)
	if failed && cur < 0 {
		cur = indexOf(last)
	}
	for i := range out {
		switch {
		case p.Stage == domain.StageDone || (cur >= 0 && i < cur):
			out[i].State = StepDone
		case i == cur && failed:
			out[i].State = StepFailed
		case i == cur:
			out[i].State = StepActive
		default:
			out[i].State = StepPending
		}
	}
	return out
}

func indexOf(s domain.Stage) int {
	for i, st := range stepLabels {
		if st.Stage == s {
			return i
		}
	}
	return -1
}

// Poller repeatedly reads a Source until progress reaches 100.
type Poller struct {
	Source   Source
	Interval time.Duration
	// MaxNotFound tolerates a not-yet-visible process a few times before
	// giving up. Zero fails on the first NotFoundError.
	MaxNotFound int
	Log         zerolog.Logger
}

// New creates a Poller with the interval clamped to [1s, 2s].
func New(src Source, interval time.Duration, log zerolog.Logger) *Poller {
	switch {
	case interval <= 0:
		interval = DefaultInterval
	case interval < MinInterval:
		interval = MinInterval
	case interval > MaxInterval:
		interval = MaxInterval
	}
	return &Poller{Source: src, Interval: interval, Log: log}
}

// Watch polls until the snapshot is terminal and returns its Outcome.
// Abandoning ctx stops polling only; the pipeline keeps running.
func (p *Poller) Watch(ctx context.Context, processID string, onUpdate func(Update)) (domain.Outcome, error) {
	log := p.Log.With().Str("component", "poller").Str("process_id", processID).Logger()
	notFound := 0
	last := -1
	var lastStage domain.Stage

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		snap, err := p.Source.Fetch(ctx, processID)
		var nf *progress.NotFoundError
		switch {
		case errors.As(err, &nf):
			notFound++
			if notFound > p.MaxNotFound {
				return domain.Outcome{}, err
			}
		case err != nil:
			if ctx.Err() != nil {
				return domain.Outcome{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("progress fetch failed; retrying")
		default:
			notFound = 0
			if snap.Process.Progress < last {
				log.Warn().Int("was", last).Int("now", snap.Process.Progress).Msg("progress went backwards")
			}
			last = snap.Process.Progress
			if !snap.Process.Stage.IsTerminal() {
				lastStage = snap.Process.Stage
			}
			if onUpdate != nil {
				onUpdate(Update{Snapshot: snap, Steps: Steps(snap.Process, lastStage)})
			}
			if snap.Process.Terminal() {
				return snap.Process.Outcome(), nil
			}
		}

		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
