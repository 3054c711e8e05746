package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/repo"
	"github.com/tbourn/go-reel-backend/internal/retry"
)

const (
	defaultSupporting = "https://assets.test/defaults/background.mp4"
	defaultPortrait   = "https://assets.test/defaults/portrait.png"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// ----- Fake gateway -----

type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	script       func(topic string) (string, error)
	startAvatar  func(req gateway.AvatarRequest) (string, error)
	pollAvatar   func(n int) (gateway.AvatarStatus, error)
	startCompose func(req gateway.CompositionRequest) (string, error)
	pollCompose  func(n int) (gateway.RenderStatus, error)
	upload       func(name string, data []byte) (gateway.Upload, error)

	avatarReqs  []gateway.AvatarRequest
	composeReqs []gateway.CompositionRequest
	deleted     []string

	resolver *gateway.Resolver
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:    map[string]int{},
		resolver: gateway.NewResolver(defaultSupporting, defaultPortrait, zerolog.Nop()),
		script:   func(topic string) (string, error) { return "A short script about " + topic, nil },
		startAvatar: func(gateway.AvatarRequest) (string, error) {
			return "avatar-1", nil
		},
		pollAvatar: func(int) (gateway.AvatarStatus, error) {
			return gateway.AvatarStatus{Completed: true, VideoURL: "https://vendor.test/avatar.mp4", Status: "done"}, nil
		},
		startCompose: func(gateway.CompositionRequest) (string, error) {
			return "render-1", nil
		},
		pollCompose: func(int) (gateway.RenderStatus, error) {
			return gateway.RenderStatus{Completed: true, URL: "https://vendor.test/final.mp4", Status: "done", DurationSeconds: 90}, nil
		},
		upload: func(name string, _ []byte) (gateway.Upload, error) {
			return gateway.Upload{URL: "https://s3.test/uploads/" + name, Key: "s3:uploads/" + name, Durable: true}, nil
		},
	}
}

func (g *fakeGateway) hit(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
	return g.calls[name]
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) GenerateScript(_ context.Context, topic string) (string, error) {
	g.hit("script")
	return g.script(topic)
}

func (g *fakeGateway) UploadFile(_ context.Context, name string, data []byte) (gateway.Upload, error) {
	g.hit("upload")
	return g.upload(name, data)
}

func (g *fakeGateway) DeleteUpload(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, key)
	return nil
}

func (g *fakeGateway) ResolveMedia(ctx context.Context, ref string, kind gateway.MediaKind) string {
	return g.resolver.Resolve(ctx, ref, kind)
}

func (g *fakeGateway) StartAvatarSynthesis(_ context.Context, req gateway.AvatarRequest) (string, error) {
	g.hit("startAvatar")
	g.mu.Lock()
	g.avatarReqs = append(g.avatarReqs, req)
	g.mu.Unlock()
	return g.startAvatar(req)
}

func (g *fakeGateway) PollAvatarSynthesis(context.Context, string) (gateway.AvatarStatus, error) {
	return g.pollAvatar(g.hit("pollAvatar"))
}

func (g *fakeGateway) StartComposition(_ context.Context, req gateway.CompositionRequest) (string, error) {
	g.hit("startCompose")
	g.mu.Lock()
	g.composeReqs = append(g.composeReqs, req)
	g.mu.Unlock()
	return g.startCompose(req)
}

func (g *fakeGateway) PollComposition(context.Context, string) (gateway.RenderStatus, error) {
	return g.pollCompose(g.hit("pollCompose"))
}

var _ gateway.Gateway = (*fakeGateway)(nil)

// ----- Recording store -----

// recordingStore remembers every merged progress value per process.
type recordingStore struct {
	*progress.MemoryStore
	mu      sync.Mutex
	history map[string][]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: progress.NewMemoryStore(), history: map[string][]int{}}
}

func (s *recordingStore) Merge(ctx context.Context, id string, u domain.ProcessUpdate) (domain.GenerationProcess, error) {
	p, err := s.MemoryStore.Merge(ctx, id, u)
	s.mu.Lock()
	s.history[id] = append(s.history[id], p.Progress)
	s.mu.Unlock()
	return p, err
}

func (s *recordingStore) progressOf(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.history[id]...)
}

// ----- Fake collaborators -----

type fakeJobs struct {
	mu       sync.Mutex
	cancelAt domain.Stage
	stages   []domain.Stage
}

func (j *fakeJobs) IsCancelRequested(context.Context, string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelAt == "" {
		return false, nil
	}
	for _, s := range j.stages {
		if s == j.cancelAt {
			return true, nil
		}
	}
	return false, nil
}

func (j *fakeJobs) SetStage(_ context.Context, _ string, stage domain.Stage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages = append(j.stages, stage)
	return nil
}

type fakeDebiter struct {
	mu    sync.Mutex
	costs map[string]int
	err   error
}

func (d *fakeDebiter) DebitForVideo(_ context.Context, _, processID string, cost int, _ float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.costs == nil {
		d.costs = map[string]int{}
	}
	if _, ok := d.costs[processID]; ok {
		return ErrDuplicateDebit
	}
	d.costs[processID] = cost
	return nil
}

type memStaging struct {
	mu      sync.Mutex
	files   map[string][]byte
	removed []string
}

func newMemStaging() *memStaging { return &memStaging{files: map[string][]byte{}} }

func (m *memStaging) Write(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return key, nil
}

func (m *memStaging) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[key]
	if !ok {
		return nil, errors.New("no such staged file")
	}
	return b, nil
}

func (m *memStaging) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	m.removed = append(m.removed, key)
	return nil
}

func newOrchestrator(gw gateway.Gateway, store progress.Store) *Orchestrator {
	return &Orchestrator{
		Gateway:         gw,
		Store:           store,
		StartPolicy:     retry.StartPolicy(3, time.Millisecond),
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 5,
		Log:             zerolog.Nop(),
	}
}

func gptRequest(topic string) domain.GenerationRequest {
	return domain.GenerationRequest{ScriptOption: domain.ScriptOptionGPT, Topic: topic, VoiceID: "voice-1"}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
