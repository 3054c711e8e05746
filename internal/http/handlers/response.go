// Package handlers provides the HTTP handlers for the generation API.
//
// Every failure is written as an ErrorResponse with a stable code (see
// errors.go). 5xx responses are logged with the request-scoped logger.
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "process not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/http/middleware"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"process not found"`
}

func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps service and gateway errors onto the envelope. Unknown errors
// become a 500 with fallbackCode.
func failErr(c *gin.Context, err error, fallbackCode string) {
	var nf *progress.NotFoundError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &nf), errors.Is(err, services.ErrProcessNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "process not found")
	case errors.Is(err, services.ErrInvalidScriptOption),
		errors.Is(err, services.ErrMissingScript),
		errors.Is(err, services.ErrMissingVoice):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, err.Error())
	case errors.Is(err, services.ErrAlreadyTerminal):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, gateway.ErrUnsupportedMedia), errors.Is(err, gateway.ErrEmptyUpload):
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedMedia, err.Error())
	case errors.As(err, &tooLarge), errors.Is(err, errFileTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds the size limit")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
