// Package progress implements the Progress Store: a keyed record of in-flight
// generation state shared by the background orchestrator and pollers.
//
// Two backends are provided:
//   - MemoryStore: a per-instance map, suitable for single-process runs and tests.
//   - RedisStore:  one JSON value per process key, safe across API and worker
//     processes.
//
// Both apply updates through domain.GenerationProcess.Apply, so the monotonic
// progress and append-only field rules hold regardless of backend.
package progress

import (
	"context"
	"fmt"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

// Store reads and merges process records.
type Store interface {
	// Read returns the record for processID or a *NotFoundError.
	Read(ctx context.Context, processID string) (domain.GenerationProcess, error)

	// Merge applies u to the stored record, creating the default record when
	// absent, persists the result, and returns it. On backend failure the
	// merged value is still returned together with the error.
	Merge(ctx context.Context, processID string, u domain.ProcessUpdate) (domain.GenerationProcess, error)
}

// NotFoundError is returned by Read for unknown process IDs.
type NotFoundError struct {
	ProcessID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("process %q not found", e.ProcessID)
}
