// Package gateway wraps the external capabilities used by the generation
// pipeline: script generation, file uploads, avatar synthesis, and final
// composition. Each vendor's request/response shape stays inside this
// package; callers see small typed structs.
//
// Media URLs handed to out-of-process vendors are always resolved through
// ResolveMedia first, so a local or ephemeral reference never leaves the
// service. When resolution fails a configured default asset is used instead.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reel-backend/internal/retry"
)

// ErrMissingField marks a request that cannot be sent because a required
// input is empty. It is never retried.
var ErrMissingField = errors.New("missing required field")

// ErrNoJobID marks a vendor success response without the expected identifier.
var ErrNoJobID = errors.New("vendor response has no job id")

// MediaKind selects which default asset substitutes an unusable reference.
type MediaKind int

const (
	MediaSupporting MediaKind = iota
	MediaPortrait
)

// AvatarRequest starts talking-avatar synthesis.
type AvatarRequest struct {
	Script      string
	VoiceID     string
	PortraitURL string
	HighRes     bool
}

// AvatarStatus is one poll result for avatar synthesis.
type AvatarStatus struct {
	Completed bool
	Failed    bool
	VideoURL  string
	Status    string
}

// CompositionRequest starts final composition.
type CompositionRequest struct {
	AvatarVideoURL     string
	SupportingMediaURL string
	HighRes            bool
}

// RenderStatus is one poll result for composition. DurationSeconds is the
// billing duration, set once Completed.
type RenderStatus struct {
	Completed       bool
	Failed          bool
	URL             string
	Status          string
	DurationSeconds float64
}

// Upload is the result of UploadFile.
type Upload struct {
	URL         string
	Key         string
	ContentType string
	Durable     bool
}

// ScriptWriter generates narration scripts.
type ScriptWriter interface {
	GenerateScript(ctx context.Context, topic string) (string, error)
}

// AvatarSynthesizer starts and polls avatar synthesis jobs.
type AvatarSynthesizer interface {
	StartAvatarSynthesis(ctx context.Context, req AvatarRequest) (string, error)
	PollAvatarSynthesis(ctx context.Context, jobID string) (AvatarStatus, error)
}

// Composer starts and polls composition renders.
type Composer interface {
	StartComposition(ctx context.Context, req CompositionRequest) (string, error)
	PollComposition(ctx context.Context, renderID string) (RenderStatus, error)
}

// Gateway is the full surface consumed by the pipeline orchestrator.
type Gateway interface {
	ScriptWriter
	AvatarSynthesizer
	Composer
	UploadFile(ctx context.Context, name string, data []byte) (Upload, error)
	DeleteUpload(ctx context.Context, key string) error
	ResolveMedia(ctx context.Context, ref string, kind MediaKind) string
}

// Options wires a Client.
type Options struct {
	Script   ScriptWriter
	Avatar   AvatarSynthesizer
	Composer Composer
	Uploads  *Uploader
	Resolver *Resolver
	Log      zerolog.Logger
}

// Client implements Gateway by delegating to the configured vendors and
// enforcing durable media URLs on every start call.
type Client struct {
	script   ScriptWriter
	avatar   AvatarSynthesizer
	composer Composer
	uploads  *Uploader
	resolver *Resolver
	log      zerolog.Logger
	tracer   trace.Tracer
}

// New builds a Client. All collaborators are required.
func New(o Options) (*Client, error) {
	if o.Script == nil || o.Avatar == nil || o.Composer == nil || o.Uploads == nil || o.Resolver == nil {
		return nil, errors.New("gateway: all collaborators are required")
	}
	return &Client{
		script:   o.Script,
		avatar:   o.Avatar,
		composer: o.Composer,
		uploads:  o.Uploads,
		resolver: o.Resolver,
		log:      o.Log.With().Str("component", "gateway").Logger(),
		tracer:   otel.Tracer("gateway"),
	}, nil
}

// GenerateScript implements ScriptWriter.
func (c *Client) GenerateScript(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", retry.Permanent(fmt.Errorf("generate script: topic: %w", ErrMissingField))
	}
	ctx, span := c.tracer.Start(ctx, "GenerateScript")
	defer span.End()
	return c.script.GenerateScript(ctx, topic)
}

// UploadFile stores data and returns an absolute URL.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (Upload, error) {
	ctx, span := c.tracer.Start(ctx, "UploadFile", trace.WithAttributes(attribute.Int("bytes", len(data))))
	defer span.End()
	return c.uploads.Upload(ctx, name, data)
}

// DeleteUpload removes an object created by UploadFile.
func (c *Client) DeleteUpload(ctx context.Context, key string) error {
	return c.uploads.Delete(ctx, key)
}

// ResolveMedia implements Gateway.
func (c *Client) ResolveMedia(ctx context.Context, ref string, kind MediaKind) string {
	return c.resolver.Resolve(ctx, ref, kind)
}

// StartAvatarSynthesis validates inputs, resolves the portrait URL, and
// forwards to the vendor.
func (c *Client) StartAvatarSynthesis(ctx context.Context, req AvatarRequest) (string, error) {
	if strings.TrimSpace(req.Script) == "" {
		return "", retry.Permanent(fmt.Errorf("start avatar synthesis: script: %w", ErrMissingField))
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return "", retry.Permanent(fmt.Errorf("start avatar synthesis: voice id: %w", ErrMissingField))
	}
	req.PortraitURL = c.resolver.Resolve(ctx, req.PortraitURL, MediaPortrait)

	ctx, span := c.tracer.Start(ctx, "StartAvatarSynthesis", trace.WithAttributes(attribute.String("voice_id", req.VoiceID)))
	defer span.End()
	return c.avatar.StartAvatarSynthesis(ctx, req)
}

// PollAvatarSynthesis implements AvatarSynthesizer.
func (c *Client) PollAvatarSynthesis(ctx context.Context, jobID string) (AvatarStatus, error) {
	ctx, span := c.tracer.Start(ctx, "PollAvatarSynthesis", trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()
	return c.avatar.PollAvatarSynthesis(ctx, jobID)
}

// StartComposition validates inputs, resolves the supporting media URL, and
// forwards to the vendor.
func (c *Client) StartComposition(ctx context.Context, req CompositionRequest) (string, error) {
	if strings.TrimSpace(req.AvatarVideoURL) == "" {
		return "", retry.Permanent(fmt.Errorf("start composition: avatar video url: %w", ErrMissingField))
	}
	req.SupportingMediaURL = c.resolver.Resolve(ctx, req.SupportingMediaURL, MediaSupporting)

	ctx, span := c.tracer.Start(ctx, "StartComposition")
	defer span.End()
	return c.composer.StartComposition(ctx, req)
}

// PollComposition implements Composer.
func (c *Client) PollComposition(ctx context.Context, renderID string) (RenderStatus, error) {
	ctx, span := c.tracer.Start(ctx, "PollComposition", trace.WithAttributes(attribute.String("render_id", renderID)))
	defer span.End()
	return c.composer.PollComposition(ctx, renderID)
}

var _ Gateway = (*Client)(nil)
