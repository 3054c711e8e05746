package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/progress"
)

type seqSource struct {
	mu    sync.Mutex
	steps []func() (Snapshot, error)
	n     int
}

func (s *seqSource) Fetch(context.Context, string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.n
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.n++
	return s.steps[i]()
}

func snapAt(pct int, stage domain.Stage, status string) func() (Snapshot, error) {
	return func() (Snapshot, error) {
		p := domain.GenerationProcess{ProcessID: "p1", Progress: pct, Stage: stage, Status: status}
		if pct == 100 && stage == domain.StageDone {
			p.FinalVideoURL = "https://cdn/final.mp4"
		}
		return Snapshot{Process: p, Outcome: p.Outcome()}, nil
	}
}

func fastPoller(src Source) *Poller {
	return &Poller{Source: src, Interval: time.Millisecond, Log: zerolog.Nop()}
}

func TestWatch_StopsAtTerminalSuccess(t *testing.T) {
	src := &seqSource{steps: []func() (Snapshot, error){
		snapAt(0, domain.StageStarted, "Starting..."),
		func() (Snapshot, error) { return Snapshot{}, errors.New("connection reset") },
		snapAt(25, domain.StageScripting, "Generating script..."),
		snapAt(60, domain.StageSynthesizing, "Creating avatar video..."),
		snapAt(100, domain.StageDone, "Done!"),
	}}
	var seen []int
	out, err := fastPoller(src).Watch(context.Background(), "p1", func(u Update) {
		seen = append(seen, u.Snapshot.Process.Progress)
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if out.Kind != domain.OutcomeSuccess || out.FinalVideoURL == "" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(seen) != 4 || seen[3] != 100 {
		t.Fatalf("updates = %v", seen)
	}
	if src.n != 5 {
		t.Fatalf("fetches = %d; polling should stop at terminal", src.n)
	}
}

func TestWatch_TerminalFailureIsReportedNotErrored(t *testing.T) {
	src := &seqSource{steps: []func() (Snapshot, error){
		snapAt(50, domain.StageSynthesizing, "Creating avatar video..."),
		snapAt(100, domain.StageFailed, domain.ErrorPrefix+"avatar timed out"),
	}}
	var lastSteps []Step
	out, err := fastPoller(src).Watch(context.Background(), "p1", func(u Update) { lastSteps = u.Steps })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if out.Kind != domain.OutcomeFailed || out.Reason != "avatar timed out" {
		t.Fatalf("outcome = %+v", out)
	}
	if lastSteps[2].State != StepFailed || lastSteps[1].State != StepDone || lastSteps[3].State != StepPending {
		t.Fatalf("steps = %+v", lastSteps)
	}
}

func TestWatch_NotFound(t *testing.T) {
	nf := func() (Snapshot, error) { return Snapshot{}, &progress.NotFoundError{ProcessID: "p1"} }

	src := &seqSource{steps: []func() (Snapshot, error){nf}}
	_, err := fastPoller(src).Watch(context.Background(), "p1", nil)
	var target *progress.NotFoundError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v; want NotFoundError", err)
	}

	tolerant := fastPoller(&seqSource{steps: []func() (Snapshot, error){nf, nf, snapAt(100, domain.StageDone, "Done!")}})
	tolerant.MaxNotFound = 2
	if out, err := tolerant.Watch(context.Background(), "p1", nil); err != nil || out.Kind != domain.OutcomeSuccess {
		t.Fatalf("tolerant watch = %+v, %v", out, err)
	}
}

func TestWatch_AbandonedByCaller(t *testing.T) {
	src := &seqSource{steps: []func() (Snapshot, error){snapAt(10, domain.StageUploadingMedia, "Uploading media...")}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fastPoller(src).Watch(ctx, "p1", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want deadline exceeded", err)
	}
}

func TestNew_ClampsInterval(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                       DefaultInterval,
		100 * time.Millisecond:  MinInterval,
		time.Minute:             MaxInterval,
		1200 * time.Millisecond: 1200 * time.Millisecond,
	}
	for in, want := range cases {
		if got := New(nil, in, zerolog.Nop()).Interval; got != want {
			t.Fatalf("New(%v).Interval = %v; want %v", in, got, want)
		}
	}
}

func TestSteps(t *testing.T) {
	st := Steps(domain.GenerationProcess{Stage: domain.StageCompositing, Progress: 80}, "")
	want := []StepState{StepDone, StepDone, StepDone, StepActive, StepPending}
	for i, s := range st {
		if s.State != want[i] {
			t.Fatalf("step %d = %s; want %s", i, s.State, want[i])
		}
	}
	for _, s := range Steps(domain.GenerationProcess{Stage: domain.StageDone, Progress: 100}, "") {
		if s.State != StepDone {
			t.Fatalf("done process has %s step", s.State)
		}
	}
	for _, s := range Steps(domain.GenerationProcess{Stage: domain.StageStarted}, "") {
		if s.State != StepPending {
			t.Fatalf("new process has %s step", s.State)
		}
	}
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") != "u1" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/generations/p1/progress":
			p := domain.GenerationProcess{ProcessID: "p1", Progress: 40, Status: "Creating avatar video...", Stage: domain.StageSynthesizing}
			_ = json.NewEncoder(w).Encode(Snapshot{Process: p, Outcome: p.Outcome()})
		case "/api/v1/generations/missing/progress":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"request_id":"r","code":"not_found","message":"process not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"request_id":"r","code":"internal_error","message":"boom"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v1/", "tok", "u1", time.Second)
	ctx := context.Background()

	snap, err := c.Fetch(ctx, "p1")
	if err != nil || snap.Process.Progress != 40 || snap.Outcome.Kind != domain.OutcomeProgress {
		t.Fatalf("Fetch = %+v, %v", snap, err)
	}

	_, err = c.Fetch(ctx, "missing")
	var nf *progress.NotFoundError
	if !errors.As(err, &nf) || nf.ProcessID != "missing" {
		t.Fatalf("missing err = %v", err)
	}

	if _, err := c.Fetch(ctx, "explode"); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestStoreSource(t *testing.T) {
	store := progress.NewMemoryStore()
	src := StoreSource{Store: store}
	if _, err := src.Fetch(context.Background(), "p1"); err == nil {
		t.Fatalf("expected not found")
	}
	_, _ = store.Merge(context.Background(), "p1", domain.ProcessUpdate{Progress: domain.Ptr(30)})
	snap, err := src.Fetch(context.Background(), "p1")
	if err != nil || snap.Outcome.Progress != 30 {
		t.Fatalf("snap = %+v, %v", snap, err)
	}
}
