package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/retry"
	"github.com/tbourn/go-reel-backend/internal/services"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_failErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&progress.NotFoundError{ProcessID: "p"}, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("wrap: %w", services.ErrProcessNotFound), http.StatusNotFound, ErrCodeNotFound},
		{services.ErrMissingScript, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrInvalidScriptOption, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrMissingVoice, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrInsufficientCredits, http.StatusPaymentRequired, ErrCodeInsufficientCredits},
		{services.ErrAlreadyTerminal, http.StatusConflict, ErrCodeConflict},
		{retry.Permanent(fmt.Errorf("%w: text/plain", gateway.ErrUnsupportedMedia)), http.StatusBadRequest, ErrCodeUnsupportedMedia},
		{retry.Permanent(gateway.ErrEmptyUpload), http.StatusBadRequest, ErrCodeUnsupportedMedia},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{errFileTooLarge, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{errors.New("db exploded"), http.StatusInternalServerError, ErrCodeSubmitFailed},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failErr(c, tc.err, ErrCodeSubmitFailed)

		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if w.Code != tc.status || resp.Code != tc.code {
			t.Fatalf("%v -> %d %q; want %d %q", tc.err, w.Code, resp.Code, tc.status, tc.code)
		}
	}
}
