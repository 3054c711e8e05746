// Video and credit HTTP handlers.
//
//   - GET /videos    the caller's finished videos, newest first (weak ETag)
//   - GET /credits   balance, active subscription, and recent ledger rows
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/utils"
)

// VideoDTO is one finished video as shown in the library.
type VideoDTO struct {
	ID              string    `json:"id"`
	ProcessID       string    `json:"processId"`
	Title           string    `json:"title"`
	FinalVideoURL   string    `json:"finalVideoUrl"`
	ScriptText      string    `json:"scriptText"`
	AIVideoURL      string    `json:"aiVideoUrl,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ListVideosResponse is a page of videos. Demo is true when the store was
// unavailable and the built-in demo set is shown instead.
type ListVideosResponse struct {
	Videos     []VideoDTO `json:"videos"`
	Pagination Pagination `json:"pagination"`
	Demo       bool       `json:"demo"`
}

func toVideoDTO(v domain.Video, _ int) VideoDTO {
	return VideoDTO{
		ID:              v.ID,
		ProcessID:       v.ProcessID,
		Title:           v.Title,
		FinalVideoURL:   v.FinalVideoURL,
		ScriptText:      v.ScriptText,
		AIVideoURL:      lo.FromPtr(v.AIVideoURL),
		DurationSeconds: v.DurationSeconds,
		CreatedAt:       v.CreatedAt,
	}
}

// ListVideos godoc
// @ID          listVideos
// @Summary     List videos
// @Description Returns the caller's videos, most recent first. Supports a weak ETag via
// @Description If-None-Match. Falls back to a demo set when the store is unavailable.
// @Tags        Videos
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (development auth)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListVideosResponse
// @Header      200  {string}  ETag  "Weak ETag for the current result"
// @Success     304  {string}  string "Not Modified"
// @Router      /videos [get]
func (h *Handlers) ListVideos(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	etag := ""
	if count, maxTS, err := h.videos.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag = fmt.Sprintf(`W/"videos:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Header("ETag", etag)
			c.Status(http.StatusNotModified)
			return
		}
	}

	res := h.videos.List(ctx, uid, page, pageSize)
	if etag != "" && !res.Demo {
		c.Header("ETag", etag)
	}

	totalPages := utils.TotalPages(res.Total, pageSize)
	ok(c, http.StatusOK, ListVideosResponse{
		Videos: lo.Map(res.Items, toVideoDTO),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      res.Total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
		Demo: res.Demo,
	})
}

// GetCredits godoc
// @ID          getCredits
// @Summary     Credit summary
// @Description Returns the balance, the active subscription if any, and up to 10 recent transactions.
// @Tags        Credits
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development auth)"
//
// @Success     200  {object}  services.CreditSummary
// @Failure     500  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	sum, err := h.credits.Summary(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreditsUnavailable, "credit ledger unavailable")
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, sum)
}
