package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reel-backend/internal/domain"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/http/middleware"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/services"
)

const pid = "0b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e"

type fakeGen struct {
	mu       sync.Mutex
	inputs   []services.SubmitInput
	users    []string
	submit   func(in services.SubmitInput) (*services.SubmitResult, error)
	progress func(id string) (*services.ProgressView, error)
	cancel   func(user, id string) error
	job      func(user, id string) (*domain.GenerationJob, error)
	upload   func(name string, data []byte) (gateway.Upload, error)
}

func (f *fakeGen) Submit(_ context.Context, user string, in services.SubmitInput) (*services.SubmitResult, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.users = append(f.users, user)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(in)
	}
	return &services.SubmitResult{ProcessID: pid}, nil
}

func (f *fakeGen) Progress(_ context.Context, id string) (*services.ProgressView, error) {
	return f.progress(id)
}

func (f *fakeGen) Cancel(_ context.Context, user, id string) error { return f.cancel(user, id) }

func (f *fakeGen) Job(_ context.Context, user, id string) (*domain.GenerationJob, error) {
	return f.job(user, id)
}

func (f *fakeGen) Upload(_ context.Context, name string, data []byte) (gateway.Upload, error) {
	return f.upload(name, data)
}

type fakeVideos struct {
	page  services.VideoPage
	count int64
	ts    *time.Time
	err   error
	lists int
}

func (f *fakeVideos) List(context.Context, string, int, int) services.VideoPage {
	f.lists++
	return f.page
}

func (f *fakeVideos) Stats(context.Context, string) (int64, *time.Time, error) {
	return f.count, f.ts, f.err
}

type fakeCredits struct {
	sum *services.CreditSummary
	err error
}

func (f fakeCredits) Summary(context.Context, string) (*services.CreditSummary, error) {
	return f.sum, f.err
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Auth(middleware.AuthOptions{}))
	r.POST("/generations", middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: services.IdempotencyScope}, nil), h.SubmitGeneration)
	r.GET("/generations/:id/progress", h.GetProgress)
	r.POST("/generations/:id/cancel", h.CancelGeneration)
	r.GET("/generations/:id", h.GetGeneration)
	r.POST("/uploads", h.UploadFile)
	r.GET("/videos", h.ListVideos)
	r.GET("/credits", h.GetCredits)
	return r
}

func doJSON(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "u1")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e.Code
}

// png is a minimal PNG header, enough for content sniffing.
var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for k, data := range files {
		fw, err := mw.CreateFormFile(k, k+".png")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestSubmitGeneration_JSON(t *testing.T) {
	gen := &fakeGen{}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 1<<20))

	w := doJSON(r, http.MethodPost, "/generations", SubmitRequest{
		ScriptOption: "GPT", Topic: "octopus hearts", VoiceID: "v1",
	}, map[string]string{middleware.HeaderIdempotencyKey: "k-1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp SubmitResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ProcessID != pid {
		t.Fatalf("processId = %q", resp.ProcessID)
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatal("fresh submission must not be marked replayed")
	}
	in := gen.inputs[0]
	if in.ScriptOption != "GPT" || in.Topic != "octopus hearts" || in.IdempotencyKey != "k-1" || gen.users[0] != "u1" {
		t.Fatalf("input = %+v user=%s", in, gen.users[0])
	}
}

func TestSubmitGeneration_Validation(t *testing.T) {
	gen := &fakeGen{submit: func(in services.SubmitInput) (*services.SubmitResult, error) {
		if in.Topic == "" {
			return nil, services.ErrMissingScript
		}
		return nil, services.ErrInsufficientCredits
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 1<<20))

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad option", SubmitRequest{ScriptOption: "poem", Topic: "x", VoiceID: "v"}, http.StatusBadRequest, ErrCodeValidation},
		{"no voice", SubmitRequest{ScriptOption: "gpt", Topic: "x"}, http.StatusBadRequest, ErrCodeValidation},
		{"empty topic", SubmitRequest{ScriptOption: "gpt", VoiceID: "v"}, http.StatusBadRequest, ErrCodeValidation},
		{"no credits", SubmitRequest{ScriptOption: "gpt", Topic: "x", VoiceID: "v"}, http.StatusPaymentRequired, ErrCodeInsufficientCredits},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/generations", tc.body, nil)
			if w.Code != tc.status || errCode(t, w) != tc.code {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
	if len(gen.inputs) != 2 {
		t.Fatalf("binding failures must not reach the service; calls=%d", len(gen.inputs))
	}
}

func TestSubmitGeneration_Replay(t *testing.T) {
	gen := &fakeGen{submit: func(services.SubmitInput) (*services.SubmitResult, error) {
		return &services.SubmitResult{ProcessID: pid, Replayed: true}, nil
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 1<<20))
	w := doJSON(r, http.MethodPost, "/generations", SubmitRequest{ScriptOption: "custom", CustomScript: "hi", VoiceID: "v"},
		map[string]string{middleware.HeaderIdempotencyKey: "k-1"})
	if w.Code != http.StatusAccepted || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d headers=%v", w.Code, w.Header())
	}
}

func TestSubmitGeneration_Multipart(t *testing.T) {
	gen := &fakeGen{}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 1<<10))

	body, ct := multipartBody(t,
		map[string]string{"scriptOption": "custom", "customScript": "Hello there", "voiceId": "v1", "highResolution": "true"},
		map[string][]byte{"supportingMedia": png})
	req := httptest.NewRequest(http.MethodPost, "/generations", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	in := gen.inputs[0]
	if in.SupportingMedia == nil || !bytes.Equal(in.SupportingMedia.Data, png) || in.VoiceMedia != nil || !in.HighResolution {
		t.Fatalf("input = %+v", in)
	}

	body, ct = multipartBody(t,
		map[string]string{"scriptOption": "custom", "customScript": "x", "voiceId": "v1"},
		map[string][]byte{"voiceMedia": bytes.Repeat([]byte{1}, 2<<10)})
	req = httptest.NewRequest(http.MethodPost, "/generations", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge || errCode(t, w) != ErrCodePayloadTooLarge {
		t.Fatalf("oversized file: %d %s", w.Code, w.Body.String())
	}
}

func TestGetProgress(t *testing.T) {
	proc := domain.GenerationProcess{ProcessID: pid, Progress: 50, Status: "Creating avatar video...", Stage: domain.StageSynthesizing}
	gen := &fakeGen{progress: func(id string) (*services.ProgressView, error) {
		if id != pid {
			return nil, &progress.NotFoundError{ProcessID: id}
		}
		return &services.ProgressView{Process: proc, Outcome: proc.Outcome()}, nil
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 0))

	w := doJSON(r, http.MethodGet, "/generations/"+pid+"/progress", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view services.ProgressView
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if view.Process.Progress != 50 || view.Outcome.Kind != domain.OutcomeProgress {
		t.Fatalf("view = %+v", view)
	}

	other := "1b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e"
	if w := doJSON(r, http.MethodGet, "/generations/"+other+"/progress", nil, nil); w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("unknown id: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodGet, "/generations/not-a-uuid/progress", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
}

func TestCancelGeneration(t *testing.T) {
	var gotUser string
	gen := &fakeGen{cancel: func(user, id string) error {
		gotUser = user
		switch id {
		case pid:
			return nil
		case "2b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e":
			return services.ErrAlreadyTerminal
		}
		return services.ErrProcessNotFound
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 0))

	w := doJSON(r, http.MethodPost, "/generations/"+pid+"/cancel", nil, nil)
	if w.Code != http.StatusAccepted || gotUser != "u1" || !strings.Contains(w.Body.String(), "cancel_requested") {
		t.Fatalf("cancel: %d %s user=%s", w.Code, w.Body.String(), gotUser)
	}
	if w := doJSON(r, http.MethodPost, "/generations/2b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e/cancel", nil, nil); w.Code != http.StatusConflict {
		t.Fatalf("terminal: %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/generations/3b8f3c1e-2a4d-4f6b-9c1d-7e5a3b2c1d0e/cancel", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown: %d", w.Code)
	}
}

func TestGetGeneration(t *testing.T) {
	gen := &fakeGen{job: func(user, id string) (*domain.GenerationJob, error) {
		if user != "u1" {
			return nil, services.ErrProcessNotFound
		}
		return &domain.GenerationJob{ID: id, UserID: user, Status: "processing", Stage: domain.StageScripting}, nil
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 0))

	w := doJSON(r, http.MethodGet, "/generations/"+pid, nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stage":"SCRIPTING"`) {
		t.Fatalf("job: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodGet, "/generations/"+pid, nil, map[string]string{middleware.HeaderUserID: "intruder"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign job: %d", w.Code)
	}
}

func TestUploadFile(t *testing.T) {
	gen := &fakeGen{upload: func(name string, data []byte) (gateway.Upload, error) {
		if !bytes.Equal(data, png) {
			return gateway.Upload{}, gateway.ErrUnsupportedMedia
		}
		return gateway.Upload{URL: "https://cdn.test/uploads/" + name, ContentType: "image/png", Durable: true}, nil
	}}
	r := newTestRouter(New(gen, &fakeVideos{}, fakeCredits{}, 1<<10))

	post := func(files map[string][]byte) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, nil, files)
		req := httptest.NewRequest(http.MethodPost, "/uploads", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(map[string][]byte{"file": png})
	var up UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &up)
	if w.Code != http.StatusCreated || up.URL != "https://cdn.test/uploads/file.png" || !up.Durable {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	if w := post(map[string][]byte{"file": []byte("plain text")}); w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeUnsupportedMedia {
		t.Fatalf("unsupported: %d %s", w.Code, w.Body.String())
	}
	if w := post(map[string][]byte{"other": png}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", w.Code)
	}
	if w := post(map[string][]byte{"file": bytes.Repeat([]byte{1}, 2<<10)}); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("too large: %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/uploads", map[string]string{"url": "x"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("json body: %d", w.Code)
	}
}

func TestListVideos_ETagAndDemo(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ai := "https://vendor.test/a.mp4"
	vids := &fakeVideos{
		count: 1,
		ts:    &ts,
		page: services.VideoPage{Total: 1, Items: []domain.Video{{
			ID: "v1", ProcessID: pid, Title: "Octopus", FinalVideoURL: "https://cdn.test/final.mp4", AIVideoURL: &ai, CreatedAt: ts,
		}}},
	}
	r := newTestRouter(New(&fakeGen{}, vids, fakeCredits{}, 0))

	w := doJSON(r, http.MethodGet, "/videos?page=1&page_size=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListVideosResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Videos) != 1 || resp.Videos[0].AIVideoURL != ai || resp.Pagination.TotalPages != 1 || resp.Demo {
		t.Fatalf("resp = %+v", resp)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"videos:u1:1:`) {
		t.Fatalf("etag = %q", etag)
	}

	w = doJSON(r, http.MethodGet, "/videos?page=1&page_size=10", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || vids.lists != 1 {
		t.Fatalf("conditional GET: %d lists=%d", w.Code, vids.lists)
	}

	vids.err = errors.New("db down")
	vids.page = services.VideoPage{Items: services.DemoVideos(), Total: 3, Demo: true}
	w = doJSON(r, http.MethodGet, "/videos", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Demo || len(resp.Videos) != 3 || w.Header().Get("ETag") != "" {
		t.Fatalf("demo fallback: %d %+v etag=%q", w.Code, resp, w.Header().Get("ETag"))
	}
}

func TestGetCredits(t *testing.T) {
	sum := &services.CreditSummary{Balance: 850, RecentTransactions: []domain.CreditTransaction{{ID: "t1", Amount: -150}}}
	r := newTestRouter(New(&fakeGen{}, &fakeVideos{}, fakeCredits{sum: sum}, 0))
	w := doJSON(r, http.MethodGet, "/credits", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"balance":850`) || strings.Contains(w.Body.String(), "activeSubscription") {
		t.Fatalf("credits: %d %s", w.Code, w.Body.String())
	}

	r = newTestRouter(New(&fakeGen{}, &fakeVideos{}, fakeCredits{err: errors.New("down")}, 0))
	if w := doJSON(r, http.MethodGet, "/credits", nil, nil); w.Code != http.StatusInternalServerError || errCode(t, w) != ErrCodeCreditsUnavailable {
		t.Fatalf("credits failure: %d %s", w.Code, w.Body.String())
	}
}
