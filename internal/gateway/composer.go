package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-reel-backend/internal/retry"
)

type renderStartBody struct {
	AvatarVideoURL string `json:"avatar_video_url"`
	BackgroundURL  string `json:"background_url"`
	Format         string `json:"format"`
	Resolution     string `json:"resolution"`
}

type renderStartResult struct {
	RenderID string `json:"render_id"`
}

type renderPollResult struct {
	Status   string  `json:"status"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// ComposerClient talks to the video composition vendor over REST.
type ComposerClient struct {
	http *resty.Client
}

// NewComposerClient creates a Resty-backed client.
func NewComposerClient(baseURL, apiKey string, timeout time.Duration) *ComposerClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	return &ComposerClient{http: c}
}

// StartComposition calls POST /v1/renders.
func (c *ComposerClient) StartComposition(ctx context.Context, req CompositionRequest) (string, error) {
	res := "720x1280"
	if req.HighRes {
		res = "1080x1920"
	}
	var out renderStartResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(renderStartBody{
			AvatarVideoURL: req.AvatarVideoURL,
			BackgroundURL:  req.SupportingMediaURL,
			Format:         "mp4",
			Resolution:     res,
		}).
		SetResult(&out).
		Post("/v1/renders")
	if err != nil {
		return "", fmt.Errorf("composition start: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("composition start: vendor returned %d: %s", resp.StatusCode(), truncate(resp.String()))
	}
	if out.RenderID == "" {
		return "", retry.Permanent(fmt.Errorf("composition start: %w", ErrNoJobID))
	}
	return out.RenderID, nil
}

// PollComposition calls GET /v1/renders/{id}.
func (c *ComposerClient) PollComposition(ctx context.Context, renderID string) (RenderStatus, error) {
	var out renderPollResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", renderID).
		SetResult(&out).
		Get("/v1/renders/{id}")
	if err != nil {
		return RenderStatus{}, fmt.Errorf("composition poll: %w", err)
	}
	if resp.IsError() {
		return RenderStatus{}, fmt.Errorf("composition poll: vendor returned %d", resp.StatusCode())
	}
	st := strings.ToLower(out.Status)
	return RenderStatus{
		Completed:       isDone(st),
		Failed:          isFailed(st),
		URL:             out.URL,
		Status:          st,
		DurationSeconds: out.Duration,
	}, nil
}

var _ Composer = (*ComposerClient)(nil)
