package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-reel-backend/internal/config"
	"github.com/tbourn/go-reel-backend/internal/gateway"
	"github.com/tbourn/go-reel-backend/internal/progress"
	"github.com/tbourn/go-reel-backend/internal/queue"
	"github.com/tbourn/go-reel-backend/internal/repo"
	"github.com/tbourn/go-reel-backend/internal/retry"
	"github.com/tbourn/go-reel-backend/internal/services"
	"github.com/tbourn/go-reel-backend/internal/worker"
)

// app holds the wired collaborators shared by serve and worker.
type app struct {
	cfg config.Config
	log zerolog.Logger

	db      *gorm.DB
	store   progress.Store
	queue   *queue.GormQueue
	staging *gateway.FileStore
	gateway *gateway.Client

	generations  *services.GenerationService
	credits      *services.CreditService
	videos       *services.VideoService
	orchestrator *services.Orchestrator

	closers []func() error
}

// buildApp opens the database and progress store, builds the vendor gateway,
// and wires the services. Callers must call close.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, log: log.Logger}

	db, err := repo.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	if err := repo.AutoMigrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if a.store, err = openProgressStore(ctx, cfg.Progress, a); err != nil {
		a.close()
		return nil, err
	}

	if a.gateway, err = buildGateway(ctx, cfg, a.log); err != nil {
		a.close()
		return nil, err
	}

	if a.staging, err = gateway.NewFileStore(cfg.Storage.StagingDir, ""); err != nil {
		a.close()
		return nil, fmt.Errorf("staging: %w", err)
	}

	a.queue = queue.NewGormQueue(db, a.log)
	a.credits = services.NewCreditService(db, cfg.Pipeline.InitialCredits)
	a.videos = services.NewVideoService(db, a.log)
	a.generations = &services.GenerationService{
		DB:             db,
		Queue:          a.queue,
		Store:          a.store,
		Staging:        a.staging,
		Credits:        a.credits,
		Uploads:        a.gateway,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MinimumBalance: services.MinimumCharge,
		Log:            a.log.With().Str("component", "generations").Logger(),
	}
	a.orchestrator = &services.Orchestrator{
		Gateway:         a.gateway,
		Store:           a.store,
		Staging:         a.staging,
		Jobs:            a.queue,
		Credits:         a.credits,
		Videos:          a.videos,
		StartPolicy:     retry.StartPolicy(cfg.Pipeline.StartMaxAttempts, cfg.Pipeline.StartBackoff),
		PollInterval:    cfg.Pipeline.PollInterval,
		PollMaxAttempts: cfg.Pipeline.PollMaxAttempts,
		Log:             a.log.With().Str("component", "orchestrator").Logger(),
	}
	return a, nil
}

func openProgressStore(ctx context.Context, cfg config.ProgressConfig, a *app) (progress.Store, error) {
	if cfg.Backend != "redis" {
		a.log.Warn().Msg("progress store is in-memory; run API and workers in one process")
		return progress.NewMemoryStore(), nil
	}
	rdb, err := progress.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return progress.NewRedisStore(rdb, progress.WithKeyPrefix(cfg.KeyPrefix), progress.WithTTL(cfg.TTL)), nil
}

func buildGateway(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*gateway.Client, error) {
	local, err := gateway.NewFileStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL+"/files")
	if err != nil {
		return nil, fmt.Errorf("local uploads: %w", err)
	}

	var durable gateway.ObjectStore
	if cfg.Storage.MinioEndpoint != "" {
		ms, err := gateway.NewMinioStore(ctx, gateway.MinioOptions{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			Bucket:    cfg.Storage.MinioBucket,
			UseSSL:    cfg.Storage.MinioUseSSL,
			PublicURL: cfg.Storage.MinioPublicURL,
		})
		if err != nil {
			// Uploads fall back to local files; URLs stay valid only on this host.
			logger.Error().Err(err).Msg("object storage unavailable; using local uploads")
		} else {
			durable = ms
		}
	}

	v := cfg.Vendors
	return gateway.New(gateway.Options{
		Script:   gateway.NewOpenAIScriptWriter(v.OpenAIKey, v.OpenAIBaseURL, v.OpenAIModel),
		Avatar:   gateway.NewAvatarClient(v.AvatarURL, v.AvatarKey, v.RequestTimeout),
		Composer: gateway.NewComposerClient(v.ComposerURL, v.ComposerKey, v.RequestTimeout),
		Uploads:  gateway.NewUploader(durable, local, logger),
		Resolver: gateway.NewResolver(cfg.Storage.DefaultSupportingMediaURL, cfg.Storage.DefaultPortraitURL, logger),
		Log:      logger,
	})
}

// newPool builds the worker pool over the app's queue and orchestrator.
func (a *app) newPool() *worker.Pool {
	return worker.NewPool(a.queue, a.orchestrator, worker.Config{
		WorkerCount:  a.cfg.Worker.Count,
		PollInterval: a.cfg.Worker.PollInterval,
		TaskTimeout:  a.cfg.Worker.TaskTimeout,
		StaleAfter:   a.cfg.Worker.StaleAfter,
		DrainTimeout: a.cfg.Worker.DrainTimeout,
	}, a.log)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
