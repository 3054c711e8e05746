// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// storage backends, vendor endpoints, pipeline timings, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS and bearer auth.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
	JWTSecret  string // JWT_SECRET; empty disables bearer verification
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-reel-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// ProgressConfig selects the Progress Store backend.
type ProgressConfig struct {
	Backend   string        // redis|memory
	RedisURL  string        // redis://host:6379/0
	TTL       time.Duration // 0 keeps entries forever
	KeyPrefix string        // empty keeps the store default
}

// StorageConfig holds durable upload settings.
type StorageConfig struct {
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string // optional public base, e.g. https://cdn.example.com/bucket

	LocalDir      string // process-local fallback directory, served under /files
	StagingDir    string // private scratch space for submitted files
	PublicBaseURL string // base URL the API is reachable at, used for local fallback URLs

	DefaultSupportingMediaURL string
	DefaultPortraitURL        string
	MaxUploadBytes            int64
}

// VendorConfig holds the external AI/video vendor endpoints.
type VendorConfig struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	AvatarURL   string
	AvatarKey   string
	ComposerURL string
	ComposerKey string

	RequestTimeout time.Duration
}

// PipelineConfig holds orchestrator retry and polling parameters.
type PipelineConfig struct {
	StartMaxAttempts int           // START_MAX_ATTEMPTS
	StartBackoff     time.Duration // START_BACKOFF; delay = attempt * backoff
	PollInterval     time.Duration // POLL_INTERVAL
	PollMaxAttempts  int           // POLL_MAX_ATTEMPTS
	InitialCredits   int           // INITIAL_CREDITS
}

// WorkerConfig holds queue consumer settings.
type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
	TaskTimeout  time.Duration // 0 derives it from PipelineBudget
	StaleAfter   time.Duration // 0 derives it from TaskTimeout and DrainTimeout
	DrainTimeout time.Duration // grace for in-flight jobs on shutdown
	Embedded     bool          // run the pool inside `serve`
}

// staleSlack separates the longest legitimate run from the point where a
// processing job is considered abandoned.
const staleSlack = 5 * time.Minute

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	Database DatabaseConfig
	Progress ProgressConfig
	Storage  StorageConfig
	Vendors  VendorConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "reels.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Progress: ProgressConfig{
			Backend:   strings.ToLower(getenv("PROGRESS_BACKEND", "memory")),
			RedisURL:  getenv("REDIS_URL", "redis://localhost:6379/0"),
			TTL:       getdur("PROGRESS_TTL", 0),
			KeyPrefix: getenv("PROGRESS_KEY_PREFIX", ""),
		},
		Storage: StorageConfig{
			MinioEndpoint:             getenv("MINIO_ENDPOINT", ""),
			MinioAccessKey:            getenv("MINIO_ACCESS_KEY", "minioadmin"),
			MinioSecretKey:            getenv("MINIO_SECRET_KEY", "minioadmin"),
			MinioBucket:               getenv("MINIO_BUCKET", "reel-uploads"),
			MinioUseSSL:               getbool("MINIO_USE_SSL", false),
			MinioPublicURL:            strings.TrimRight(getenv("MINIO_PUBLIC_URL", ""), "/"),
			LocalDir:                  getenv("LOCAL_UPLOAD_DIR", "uploads"),
			StagingDir:                getenv("STAGING_DIR", "staging"),
			PublicBaseURL:             strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			DefaultSupportingMediaURL: getenv("DEFAULT_SUPPORTING_MEDIA_URL", "https://assets.reelgen.dev/defaults/background.mp4"),
			DefaultPortraitURL:        getenv("DEFAULT_PORTRAIT_URL", "https://assets.reelgen.dev/defaults/portrait.png"),
			MaxUploadBytes:            int64(getint("MAX_UPLOAD_BYTES", 50<<20)),
		},
		Vendors: VendorConfig{
			OpenAIKey:      getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getenv("OPENAI_BASE_URL", ""),
			OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o-mini"),
			AvatarURL:      getenv("AVATAR_API_URL", "http://localhost:9101"),
			AvatarKey:      getenv("AVATAR_API_KEY", ""),
			ComposerURL:    getenv("COMPOSER_API_URL", "http://localhost:9102"),
			ComposerKey:    getenv("COMPOSER_API_KEY", ""),
			RequestTimeout: getdur("VENDOR_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			StartMaxAttempts: getint("START_MAX_ATTEMPTS", 3),
			StartBackoff:     getdur("START_BACKOFF", time.Second),
			PollInterval:     getdur("POLL_INTERVAL", 5*time.Second),
			PollMaxAttempts:  getint("POLL_MAX_ATTEMPTS", 60),
			InitialCredits:   getint("INITIAL_CREDITS", 1000),
		},
		Worker: WorkerConfig{
			Count:        getint("WORKER_COUNT", 2),
			PollInterval: getdur("WORKER_POLL_INTERVAL", 2*time.Second),
			TaskTimeout:  getdur("TASK_TIMEOUT", 0),
			StaleAfter:   getdur("WORKER_STALE_AFTER", 0),
			DrainTimeout: getdur("WORKER_DRAIN_TIMEOUT", 20*time.Second),
			Embedded:     getbool("WORKER_EMBEDDED", true),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			JWTSecret:  getenv("JWT_SECRET", ""),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-reel-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Database.Driver == "postgresql" || cfg.Database.Driver == "pg" {
		cfg.Database.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Progress.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Progress.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when PROGRESS_BACKEND=redis")
		}
	default:
		return cfg, errors.New("PROGRESS_BACKEND must be one of: memory, redis")
	}
	if cfg.Progress.TTL < 0 {
		return cfg, errors.New("PROGRESS_TTL must be >= 0")
	}
	if strings.TrimSpace(cfg.Storage.LocalDir) == "" {
		return cfg, errors.New("LOCAL_UPLOAD_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.Storage.StagingDir) == "" {
		return cfg, errors.New("STAGING_DIR must not be empty")
	}
	if filepath.Clean(cfg.Storage.StagingDir) == filepath.Clean(cfg.Storage.LocalDir) {
		return cfg, errors.New("STAGING_DIR must differ from LOCAL_UPLOAD_DIR")
	}
	if !isAbsoluteHTTP(cfg.Storage.DefaultSupportingMediaURL) || !isAbsoluteHTTP(cfg.Storage.DefaultPortraitURL) {
		return cfg, errors.New("default media URLs must be absolute http(s) URLs")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Vendors.RequestTimeout <= 0 {
		return cfg, errors.New("VENDOR_TIMEOUT must be > 0")
	}
	if cfg.Pipeline.StartMaxAttempts < 1 {
		return cfg, errors.New("START_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Pipeline.StartBackoff < 0 {
		return cfg, errors.New("START_BACKOFF must be >= 0")
	}
	if cfg.Pipeline.PollInterval <= 0 || cfg.Pipeline.PollMaxAttempts < 1 {
		return cfg, errors.New("POLL_INTERVAL must be > 0 and POLL_MAX_ATTEMPTS >= 1")
	}
	if cfg.Pipeline.InitialCredits < 0 {
		return cfg, errors.New("INITIAL_CREDITS must be >= 0")
	}
	if cfg.Worker.Count < 1 {
		return cfg, errors.New("WORKER_COUNT must be >= 1")
	}
	if cfg.Worker.PollInterval <= 0 || cfg.Worker.TaskTimeout < 0 || cfg.Worker.StaleAfter < 0 || cfg.Worker.DrainTimeout <= 0 {
		return cfg, errors.New("worker intervals must be positive durations")
	}
	budget := cfg.PipelineBudget()
	if cfg.Worker.TaskTimeout == 0 {
		cfg.Worker.TaskTimeout = budget
	}
	if cfg.Worker.TaskTimeout < budget {
		return cfg, fmt.Errorf("TASK_TIMEOUT %s is shorter than the worst-case pipeline run %s", cfg.Worker.TaskTimeout, budget)
	}
	if cfg.Worker.StaleAfter == 0 {
		cfg.Worker.StaleAfter = cfg.Worker.TaskTimeout + cfg.Worker.DrainTimeout + staleSlack
	}
	if cfg.Worker.StaleAfter <= cfg.Worker.TaskTimeout+cfg.Worker.DrainTimeout {
		return cfg, errors.New("WORKER_STALE_AFTER must exceed TASK_TIMEOUT plus WORKER_DRAIN_TIMEOUT")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// PipelineBudget is the longest a single generation can legitimately take
// with the configured retry and polling limits: three start phases with
// their backoffs, two poll loops, and the script and upload calls, each
// vendor call bounded by VENDOR_TIMEOUT.
func (c Config) PipelineBudget() time.Duration {
	call := c.Vendors.RequestTimeout
	p := c.Pipeline

	n := max(p.StartMaxAttempts, 1)
	var backoff time.Duration
	for i := 1; i < n; i++ {
		backoff += time.Duration(i) * p.StartBackoff
	}
	start := time.Duration(n)*call + backoff
	polls := time.Duration(max(p.PollMaxAttempts, 1)) * (p.PollInterval + call)

	return 3*start + 2*polls + 3*call
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isAbsoluteHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
