// Generation HTTP handlers.
//
//   - POST /generations                 submit (multipart or JSON), 202 + processId
//   - GET  /generations/{id}/progress   snapshot + discriminated outcome
//   - POST /generations/{id}/cancel     cooperative cancellation
//   - GET  /generations/{id}            queue row for the owner
//   - POST /uploads                     store a file ahead of submission
//
// Submit returns as soon as the job is queued; clients poll progress.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/tbourn/go-reel-backend/internal/http/middleware"
	"github.com/tbourn/go-reel-backend/internal/services"
)

var errFileTooLarge = errors.New("file too large")

// SubmitRequest is the generation form. Multipart submissions may attach
// supportingMedia and voiceMedia files in place of the URL fields.
type SubmitRequest struct {
	ScriptOption       string `form:"scriptOption" json:"scriptOption" binding:"required,script_option" example:"gpt" enums:"gpt,custom"`
	Topic              string `form:"topic" json:"topic" binding:"max=500" example:"Why octopuses have three hearts"`
	CustomScript       string `form:"customScript" json:"customScript" binding:"max=5000"`
	SupportingMediaURL string `form:"supportingMediaUrl" json:"supportingMediaUrl" binding:"max=2048" example:"https://cdn.example.com/b-roll.mp4"`
	VoiceID            string `form:"voiceId" json:"voiceId" binding:"required,max=128" example:"en-US-jenny"`
	VoiceMediaURL      string `form:"voiceMediaUrl" json:"voiceMediaUrl" binding:"max=2048"`
	HighResolution     bool   `form:"highResolution" json:"highResolution"`
}

// SubmitResponse carries the handle used to poll progress.
type SubmitResponse struct {
	ProcessID string `json:"processId" example:"0b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	ProcessID string `json:"processId"`
	Status    string `json:"status" example:"cancel_requested"`
}

// UploadResponse is the stored file's URL.
type UploadResponse struct {
	URL         string `json:"url" example:"https://cdn.example.com/uploads/2025/01/02/abc.mp4"`
	ContentType string `json:"contentType" example:"video/mp4"`
	Durable     bool   `json:"durable"`
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == binding.MIMEMultipartPOSTForm
}

// readPart reads an optional multipart file, enforcing limit. slot labels
// the upload size metric.
func readPart(c *gin.Context, field, slot string, limit int64) (*services.FilePart, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && fh.Size > limit {
		return nil, errFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errFileTooLarge
	}
	middleware.ObserveUpload(slot, len(data))
	return &services.FilePart{Name: fh.Filename, Data: data}, nil
}

// SubmitGeneration godoc
// @ID          submitGeneration
// @Summary     Submit a video generation
// @Description Queues a generation and returns its processId immediately. Accepts JSON or
// @Description multipart/form-data (with optional supportingMedia and voiceMedia files).
// @Description A repeated Idempotency-Key returns the original processId with Idempotency-Replayed: true.
// @Tags        Generations
// @Accept      json,mpfd
// @Produce     json
//
// @Param       X-User-ID        header    string  false "User ID (development auth)"  example(user123)
// @Param       Idempotency-Key  header    string  false "Idempotency key for safe retries"
// @Param       body             body      handlers.SubmitRequest  true  "Generation form"
// @Param       supportingMedia  formData  file    false "Secondary visual asset"
// @Param       voiceMedia       formData  file    false "Avatar portrait or voice sample"
//
// @Success     202  {object}  handlers.SubmitResponse
// @Header      202  {string}  Idempotency-Replayed  "true when an earlier submission was returned"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     413  {object}  handlers.ErrorResponse  "Upload too large"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /generations [post]
func (h *Handlers) SubmitGeneration(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			failErr(c, err, ErrCodeSubmitFailed)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeValidation, bindMessage(err))
		return
	}

	in := services.SubmitInput{
		ScriptOption:       req.ScriptOption,
		Topic:              req.Topic,
		CustomScript:       req.CustomScript,
		SupportingMediaURL: req.SupportingMediaURL,
		VoiceID:            req.VoiceID,
		VoiceMediaURL:      req.VoiceMediaURL,
		HighResolution:     req.HighResolution,
	}
	in.IdempotencyKey, _ = middleware.GetIdempotencyKey(c)
	if middleware.IsReplay(c) {
		middleware.LoggerFrom(c).Debug().Str("idempotency_key", in.IdempotencyKey).Msg("replaying submission")
	}

	if isMultipart(c) {
		var err error
		if in.SupportingMedia, err = readPart(c, "supportingMedia", "supporting", h.MaxUploadBytes); err != nil {
			failErr(c, err, ErrCodeSubmitFailed)
			return
		}
		if in.VoiceMedia, err = readPart(c, "voiceMedia", "voice", h.MaxUploadBytes); err != nil {
			failErr(c, err, ErrCodeSubmitFailed)
			return
		}
	}

	res, err := h.gen.Submit(c.Request.Context(), userID(c), in)
	if err != nil {
		failErr(c, err, ErrCodeSubmitFailed)
		return
	}
	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusAccepted, SubmitResponse{ProcessID: res.ProcessID})
}

// processID validates the :id path parameter.
func processID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "process id must be a UUID")
		return "", false
	}
	return id, true
}

// GetProgress godoc
// @ID          getProgress
// @Summary     Check generation progress
// @Description Returns the current snapshot and its outcome. Clients poll every 1-2s until
// @Description outcome.kind is success or failed.
// @Tags        Generations
// @Produce     json
//
// @Param       id   path  string  true  "Process ID"  format(uuid)
//
// @Success     200  {object}  services.ProgressView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown process"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /generations/{id}/progress [get]
func (h *Handlers) GetProgress(c *gin.Context) {
	id, valid := processID(c)
	if !valid {
		return
	}
	view, err := h.gen.Progress(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, view)
}

// CancelGeneration godoc
// @ID          cancelGeneration
// @Summary     Cancel a generation
// @Description Requests cooperative cancellation. A queued job stops immediately; a running
// @Description one stops at its next checkpoint and ends failed with reason "cancelled by user".
// @Tags        Generations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development auth)"
// @Param       id         path    string  true  "Process ID"  format(uuid)
//
// @Success     202  {object}  handlers.CancelResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown process"
// @Failure     409  {object}  handlers.ErrorResponse  "Already finished"
// @Router      /generations/{id}/cancel [post]
func (h *Handlers) CancelGeneration(c *gin.Context) {
	id, valid := processID(c)
	if !valid {
		return
	}
	if err := h.gen.Cancel(c.Request.Context(), userID(c), id); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusAccepted, CancelResponse{ProcessID: id, Status: "cancel_requested"})
}

// GetGeneration godoc
// @ID          getGeneration
// @Summary     Inspect a generation job
// @Tags        Generations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development auth)"
// @Param       id         path    string  true  "Process ID"  format(uuid)
//
// @Success     200  {object}  domain.GenerationJob
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown process"
// @Router      /generations/{id} [get]
func (h *Handlers) GetGeneration(c *gin.Context) {
	id, valid := processID(c)
	if !valid {
		return
	}
	job, err := h.gen.Job(c.Request.Context(), userID(c), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, job)
}

// UploadFile godoc
// @ID          uploadFile
// @Summary     Upload a media file
// @Description Stores an image, video, or audio file and returns an absolute URL usable as
// @Description supportingMediaUrl or voiceMediaUrl.
// @Tags        Uploads
// @Accept      mpfd
// @Produce     json
//
// @Param       file  formData  file  true  "Media file"
//
// @Success     201  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or unsupported file"
// @Failure     413  {object}  handlers.ErrorResponse  "Upload too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /uploads [post]
func (h *Handlers) UploadFile(c *gin.Context) {
	if !isMultipart(c) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart/form-data with a file field is required")
		return
	}
	part, err := readPart(c, "file", "direct", h.MaxUploadBytes)
	if err != nil {
		failErr(c, err, ErrCodeUploadFailed)
		return
	}
	if part == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file is required")
		return
	}
	up, err := h.gen.Upload(c.Request.Context(), part.Name, part.Data)
	if err != nil {
		failErr(c, err, ErrCodeUploadFailed)
		return
	}
	ok(c, http.StatusCreated, UploadResponse{URL: up.URL, ContentType: up.ContentType, Durable: up.Durable})
}

// bindMessage flattens binding errors into one line.
func bindMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = fmt.Sprintf("%s (and more)", msg[:i])
	}
	return msg
}
