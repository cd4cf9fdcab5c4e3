package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sungwon/wa-dispatch/internal/api"
	"github.com/sungwon/wa-dispatch/internal/config"
	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/msgstore"
	"github.com/sungwon/wa-dispatch/internal/queue"
)

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(cfg.Logging, "ingest-server")
	log.Info().Msg("starting ingest server")

	ctx := context.Background()
	if cfg.Queue.Type == "memory" {
		log.Fatal().Msg("the in-memory queue cannot be shared with a worker; run dispatch-worker instead")
	}

	backend, err := queue.New(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue backend")
	}
	defer backend.Queue.Close()
	if err := backend.Queue.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to reach queue backend")
	}

	objects, err := msgstore.New(ctx, cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create rejection archive")
	}

	if cfg.API.AdminKey == "" {
		log.Warn().Msg("api.admin_key is not set; operator endpoints are disabled (set DISPATCH_API_ADMIN_KEY)")
	}

	router := api.NewRouter(api.Deps{
		Queue:        backend.Queue,
		DeadLetters:  backend.DeadLetters,
		Archive:      msgstore.NewArchive(objects),
		AdminKey:     cfg.API.AdminKey,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Workers:      cfg.Worker.WorkerCount(),
		Log:          log,
	})

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("ingest server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
