package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/http/middleware"
	"github.com/tbourn/go-reel-backend/internal/services"
)

// GenerationService covers submission, progress, cancellation, and uploads.
type GenerationService interface {
	Submit(ctx context.Context, userID string, in services.SubmitInput) (*services.SubmitResult, error)
	Progress(ctx context.Context, processID string) (*services.ProgressView, error)
	Cancel(ctx context.Context, userID, processID string) error
	Job(ctx context.Context, userID, processID string) (*domain.GenerationJob, error)
	Upload(ctx context.Context, name string, data []byte) (gateway.Upload, error)
}

// VideoService lists a user's finished videos.
type VideoService interface {
	List(ctx context.Context, userID string, page, pageSize int) services.VideoPage
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// CreditService answers the credit query.
type CreditService interface {
	Summary(ctx context.Context, userID string) (*services.CreditSummary, error)
}

// Handlers groups the API endpoints.
type Handlers struct {
	gen     GenerationService
	videos  VideoService
	credits CreditService

	// MaxUploadBytes caps each uploaded file.
	MaxUploadBytes int64
}

// New constructs Handlers bound to the given services.
func New(gen GenerationService, videos VideoService, credits CreditService, maxUploadBytes int64) *Handlers {
	return &Handlers{gen: gen, videos: videos, credits: credits, MaxUploadBytes: maxUploadBytes}
}

func userID(c *gin.Context) string { return middleware.UserID(c) }

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
