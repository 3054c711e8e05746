// Package poller is the client-side read path: it fetches a process snapshot
// on a short interval until the process is terminal and reports user-facing
// step indicators along the way.
package poller

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/progress"
)

// Snapshot is the progress endpoint payload.
type Snapshot struct {
	Process domain.GenerationProcess `json:"process"`
	Outcome domain.Outcome           `json:"outcome"`
}

// Source returns the current snapshot of a process.
type Source interface {
	Fetch(ctx context.Context, processID string) (Snapshot, error)
}

type apiError struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Client reads progress from a running API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL, e.g. http://localhost:8080/api/v1.
// token, when set, is sent as a bearer token; userID as X-User-ID.
func NewClient(baseURL, token, userID string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if token != "" {
		c.SetAuthToken(token)
	}
	if userID != "" {
		c.SetHeader("X-User-ID", userID)
	}
	return &Client{http: c}
}

// Fetch calls GET /generations/{id}/progress. A 404 yields *progress.NotFoundError.
func (c *Client) Fetch(ctx context.Context, processID string) (Snapshot, error) {
	var out Snapshot
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", processID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/generations/{id}/progress")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch progress: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Snapshot{}, &progress.NotFoundError{ProcessID: processID}
	case resp.IsError():
		return Snapshot{}, fmt.Errorf("fetch progress: %d %s: %s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	return out, nil
}

// StoreSource reads a Progress Store directly, for in-process callers.
type StoreSource struct {
	Store progress.Store
}

// Fetch implements Source.
func (s StoreSource) Fetch(ctx context.Context, processID string) (Snapshot, error) {
	p, err := s.Store.Read(ctx, processID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Process: p, Outcome: p.Outcome()}, nil
}

var (
	_ Source = (*Client)(nil)
	_ Source = StoreSource{}
)
