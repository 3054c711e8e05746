package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-reel-backend/internal/http"
	"github.com/tbourn/go-reel-backend/internal/observability"
	"github.com/tbourn/go-reel-backend/internal/repo"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the workers unless WORKER_EMBEDDED=false)",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run pipeline workers without the HTTP API",
	RunE:  runWorker,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig("migrate")
		if err != nil {
			return err
		}
		db, err := repo.Open(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := repo.AutoMigrate(db); err != nil {
			return err
		}
		cmd.Printf("schema up to date (%s)\n", repo.Dialect(db))
		return nil
	},
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig("api")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, "api")
	if err != nil {
		return err
	}
	defer flush(shutdownOTel)

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Worker.Embedded {
		pool := a.newPool()
		if err := pool.Start(ctx); err != nil {
			return err
		}
		defer pool.Stop()
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:          a.db,
		Generations: a.generations,
		Videos:      a.videos,
		Credits:     a.credits,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Bool("workers", cfg.Worker.Embedded).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("failed to shutdown server")
	}
	a.log.Info().Msg("server stopped")
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig("worker")
	if err != nil {
		return err
	}
	if cfg.Progress.Backend != "redis" {
		return errors.New("a standalone worker needs PROGRESS_BACKEND=redis so the API can read progress")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, "worker")
	if err != nil {
		return err
	}
	defer flush(shutdownOTel)

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	pool := a.newPool()
	if err := pool.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	pool.Stop()
	return nil
}

func flush(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
