package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/api"
	"github.com/kwonkwonn/chatting-sever/internal/config"
	"github.com/kwonkwonn/chatting-sever/internal/registry"
	"github.com/kwonkwonn/chatting-sever/internal/service"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
	"github.com/kwonkwonn/chatting-sever/internal/worker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Durable message store
	var st store.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		st = pg
		logger.Info().Msg("connected to PostgreSQL")
	case cfg.SQLitePath != "":
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		st = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
	default:
		st = store.NewMemoryStore()
		logger.Warn().Msg("no durable store configured, messages vanish on restart")
	}
	defer st.Close()

	// Append log
	var lg stream.Log
	if cfg.RedisURL != "" {
		rl, err := stream.NewRedisLog(ctx, cfg.RedisURL, cfg.ClaimTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		lg = rl
		logger.Info().Msg("connected to Redis")
	} else {
		lg = stream.NewMemoryLog(cfg.ClaimTimeout)
		logger.Warn().Msg("no redis configured, using in-process log")
	}
	defer lg.Close()

	reg := registry.New(logger)
	svc := service.New(lg, st, reg, service.Config{
		Group:        cfg.PersistGroup,
		MaxStreamLen: cfg.StreamMaxLen,
	}, logger)

	// Reseed room logs from the durable store before serving traffic.
	if err := svc.Restore(ctx); err != nil {
		logger.Fatal().Err(err).Msg("restore failed")
	}

	// Persistence worker
	w := worker.New(lg, st, worker.Config{
		Group:         cfg.PersistGroup,
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		MaxStreamLen:  cfg.StreamMaxLen,
		ShutdownGrace: cfg.ShutdownGrace,
	}, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Supervise(workerCtx)
	}()

	// Create router
	router := api.NewRouter(logger, svc, st, lg)

	// Create server. No global read/write timeouts: websocket sessions stay
	// open far longer than any sane request timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the worker after the HTTP surface drains; an in-flight batch
	// still completes within the shutdown grace.
	stopWorker()
	wg.Wait()

	logger.Info().Msg("server stopped")
}
