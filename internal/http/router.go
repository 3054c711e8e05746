// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, auth, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; services are built by the caller
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/config"
	"github.com/tbourn/go-reel-backend/internal/http/handlers"
	"github.com/tbourn/go-reel-backend/internal/http/middleware"
	"github.com/tbourn/go-reel-backend/internal/repo"
	"github.com/tbourn/go-reel-backend/internal/services"
)

// jsonBodyLimit caps non-multipart request bodies.
const jsonBodyLimit = 1 << 20

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	DB          *gorm.DB
	Generations handlers.GenerationService
	Videos      handlers.VideoService
	Credits     handlers.CreditService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (multipart gets the upload allowance)
//  6. Metrics
//  7. CORS, security headers, gzip
//  8. Auth on the API group, then the global rate limiter per route
//  9. Submit: idempotency validator first so replays bypass both limiters
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limit: two media files plus form fields for multipart
	r.Use(limitBody(jsonBodyLimit, 2*cfg.Storage.MaxUploadBytes+jsonBodyLimit))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		ExposeHeaders: []string{middleware.HeaderIdempotencyReplayed, "ETag"},
	}))

	// Media is already compressed; metrics scrapers negotiate on their own.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/files"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Process-local upload fallback; URLs are built as PUBLIC_BASE_URL/files/<key>.
	if dir := strings.TrimSpace(cfg.Storage.LocalDir); dir != "" {
		r.Static("/files", dir)
	}

	handlers.RegisterValidators()
	h := handlers.New(deps.Generations, deps.Videos, deps.Credits, cfg.Storage.MaxUploadBytes)

	globalRL := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	// Submissions trigger paid vendor work: one per second per caller, small burst.
	submitRL := middleware.NewRateLimiter("submit", min(cfg.RateRPS, 1), min(cfg.RateBurst, 3), middleware.KeyByUserOrIP())

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: services.IdempotencyScope, MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			if deps.DB == nil {
				return false, nil
			}
			rec, err := repo.GetIdempotency(ctx, deps.DB, userID, scope, key, now)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			return rec != nil, nil
		},
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{Secret: cfg.Security.JWTSecret}))

	// Submit validates the key first so replays skip both limiters.
	api.POST("/generations", idem, globalRL.Handler(), submitRL.Handler(), h.SubmitGeneration)

	limited := api.Group("", globalRL.Handler())
	{
		// Generations
		limited.GET("/generations/:id", h.GetGeneration)
		limited.GET("/generations/:id/progress", h.GetProgress)
		limited.POST("/generations/:id/cancel", h.CancelGeneration)

		// Uploads ahead of submission
		limited.POST("/uploads", h.UploadFile)

		// Library and billing
		limited.GET("/videos", h.ListVideos)
		limited.GET("/credits", h.GetCredits)
	}
}

// limitBody caps the request body size using http.MaxBytesReader. Multipart
// requests get multipartMax; everything else gets jsonMax. Requests exceeding
// the cap cause downstream body reads to error.
func limitBody(jsonMax, multipartMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := jsonMax
		if strings.HasPrefix(strings.ToLower(c.GetHeader("Content-Type")), "multipart/") {
			limit = multipartMax
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
