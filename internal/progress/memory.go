package progress

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// MemoryStore keeps records in a map owned by the instance.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]domain.GenerationProcess
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]domain.GenerationProcess),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context, processID string) (domain.GenerationProcess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[processID]
	if !ok {
		return domain.GenerationProcess{}, &NotFoundError{ProcessID: processID}
	}
	return p, nil
}

// Merge implements Store. The read-modify-write runs under one lock.
func (s *MemoryStore) Merge(_ context.Context, processID string, u domain.ProcessUpdate) (domain.GenerationProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[processID]
	if !ok {
		cur = domain.NewProcess(processID)
	}
	next := cur.Apply(u, s.now())
	s.items[processID] = next
	return next, nil
}

var _ Store = (*MemoryStore)(nil)
