package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-reel-backend/internal/retry"
)

type avatarStartBody struct {
	Script     string `json:"script"`
	VoiceID    string `json:"voice_id"`
	ImageURL   string `json:"image_url"`
	Resolution string `json:"resolution"`
}

type avatarStartResult struct {
	JobID string `json:"job_id"`
}

type avatarPollResult struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
}

// AvatarClient talks to the talking-avatar vendor over REST.
type AvatarClient struct {
	http *resty.Client
}

// NewAvatarClient creates a Resty-backed client.
func NewAvatarClient(baseURL, apiKey string, timeout time.Duration) *AvatarClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &AvatarClient{http: c}
}

// StartAvatarSynthesis calls POST /v1/avatar/videos.
func (c *AvatarClient) StartAvatarSynthesis(ctx context.Context, req AvatarRequest) (string, error) {
	res := "720p"
	if req.HighRes {
		res = "1080p"
	}
	var out avatarStartResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(avatarStartBody{Script: req.Script, VoiceID: req.VoiceID, ImageURL: req.PortraitURL, Resolution: res}).
		SetResult(&out).
		Post("/v1/avatar/videos")
	if err != nil {
		return "", fmt.Errorf("avatar start: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("avatar start: vendor returned %d: %s", resp.StatusCode(), truncate(resp.String()))
	}
	if out.JobID == "" {
		return "", retry.Permanent(fmt.Errorf("avatar start: %w", ErrNoJobID))
	}
	return out.JobID, nil
}

// PollAvatarSynthesis calls GET /v1/avatar/videos/{id}.
func (c *AvatarClient) PollAvatarSynthesis(ctx context.Context, jobID string) (AvatarStatus, error) {
	var out avatarPollResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetResult(&out).
		Get("/v1/avatar/videos/{id}")
	if err != nil {
		return AvatarStatus{}, fmt.Errorf("avatar poll: %w", err)
	}
	if resp.IsError() {
		return AvatarStatus{}, fmt.Errorf("avatar poll: vendor returned %d", resp.StatusCode())
	}
	st := strings.ToLower(out.Status)
	return AvatarStatus{
		Completed: isDone(st),
		Failed:    isFailed(st),
		VideoURL:  out.VideoURL,
		Status:    st,
	}, nil
}

var _ AvatarSynthesizer = (*AvatarClient)(nil)

func isDone(status string) bool {
	switch status {
	case "completed", "done", "succeeded", "success":
		return true
	}
	return false
}

func isFailed(status string) bool {
	switch status {
	case "failed", "error", "cancelled", "canceled":
		return true
	}
	return false
}

func truncate(s string) string {
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
