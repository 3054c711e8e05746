// Package services – VideoService
//
// VideoService lists a user's finished videos and records new ones. Listing
// degrades to a fixed demo set when the store cannot be read.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/repo"
)

// VideoPage is one page of a user's videos.
type VideoPage struct {
	Items []domain.Video
	Total int64
	// Demo is true when Items is the fallback set.
	Demo bool
}

// VideoService provides video listing and recording.
type VideoService struct {
	DB   *gorm.DB
	Demo []domain.Video
	Log  zerolog.Logger
}

// NewVideoService constructs a VideoService with the built-in demo set.
func NewVideoService(db *gorm.DB, log zerolog.Logger) *VideoService {
	return &VideoService{DB: db, Demo: DemoVideos(), Log: log}
}

// List returns the caller's videos, most recent first. A read failure is
// logged and answered with the demo set instead of an error.
func (s *VideoService) List(ctx context.Context, userID string, page, pageSize int) VideoPage {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	items, total, err := repo.ListVideos(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		s.Log.Warn().Err(err).Str("user_id", userID).Msg("video list failed; serving demo set")
		anomalies.WithLabelValues("video_demo_fallback").Inc()
		return VideoPage{Items: s.Demo, Total: int64(len(s.Demo)), Demo: true}
	}
	if items == nil {
		items = []domain.Video{}
	}
	return VideoPage{Items: items, Total: total}
}

// Stats returns the count and newest timestamp used to build the list ETag.
func (s *VideoService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.VideosStats(ctx, s.DB, userID)
}

// Record stores v once per process. On a repeat for the same process v is
// replaced by the stored row.
func (s *VideoService) Record(ctx context.Context, v *domain.Video) error {
	err := repo.CreateVideo(ctx, s.DB, v)
	if errors.Is(err, repo.ErrDuplicate) {
		prev, gerr := repo.GetVideoByProcess(ctx, s.DB, v.ProcessID)
		if gerr != nil {
			return nil
		}
		*v = *prev
		return nil
	}
	return err
}

// DemoVideos is the fallback list served when the store is unavailable.
func DemoVideos() []domain.Video {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Video{
		{
			ID:              "demo-1",
			UserID:          "demo",
			Title:           "Morning Routines Of Founders",
			FinalVideoURL:   "https://assets.reelgen.dev/demo/morning-routines.mp4",
			ScriptText:      "Here's a cool video about morning routines of founders!",
			DurationSeconds: 42,
			CreatedAt:       at.Add(48 * time.Hour),
		},
		{
			ID:              "demo-2",
			UserID:          "demo",
			Title:           "Three Facts About Octopuses",
			FinalVideoURL:   "https://assets.reelgen.dev/demo/octopus-facts.mp4",
			ScriptText:      "Octopuses have three hearts and blue blood.",
			DurationSeconds: 35,
			CreatedAt:       at.Add(24 * time.Hour),
		},
		{
			ID:              "demo-3",
			UserID:          "demo",
			Title:           "Why Cities Glow At Night",
			FinalVideoURL:   "https://assets.reelgen.dev/demo/city-lights.mp4",
			ScriptText:      "Here's a cool video about why cities glow at night!",
			DurationSeconds: 58,
			CreatedAt:       at,
		},
	}
}
