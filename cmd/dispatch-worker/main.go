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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/api"
	"github.com/sungwon/wa-dispatch/internal/bootstrap"
	"github.com/sungwon/wa-dispatch/internal/config"
	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/msgstore"
	"github.com/sungwon/wa-dispatch/internal/notify"
	"github.com/sungwon/wa-dispatch/internal/pipeline"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/supervisor"
	"github.com/sungwon/wa-dispatch/internal/writer"
)

// tenantStore is the storage backend seen by the worker.
type tenantStore interface {
	storage.Directory
	storage.Sink
}

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging, "dispatch-worker")
	log.Info().Msg("starting dispatch worker")

	ctx := context.Background()
	names := cfg.Storage.Naming

	// Storage backend.
	var (
		store tenantStore
		db    *storage.DB
	)
	switch cfg.Storage.Backend {
	case "memory":
		mem := storage.NewMemory(names)
		if cfg.Storage.SeedFile != "" {
			fixtures, err := bootstrap.LoadFixtures(cfg.Storage.SeedFile)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load seed file")
			}
			if err := bootstrap.Seed(mem, fixtures, log); err != nil {
				log.Fatal().Err(err).Msg("failed to seed memory store")
			}
		}
		log.Warn().Msg("using in-memory storage; writes do not survive a restart")
		store = mem
	default:
		db, err = storage.NewDB(ctx, storage.PoolConfig{
			URL:            cfg.Database.URL,
			MinConns:       cfg.Database.PoolMin,
			MaxConns:       cfg.Database.PoolMax,
			ConnectTimeout: cfg.Database.ConnectTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		store = storage.NewPostgres(db.Pool, names)
		log.Info().Msg("database connection established")
	}

	// Queue backend.
	backend, err := queue.New(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue backend")
	}
	defer backend.Queue.Close()
	if err := backend.Queue.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to reach queue backend")
	}

	// Delivery provider.
	httpClient := provider.NewHTTPClient(cfg.Provider.Timeout)
	prov, err := provider.New(cfg.Provider, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create delivery provider")
	}
	if err := prov.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Str("provider", prov.GetName()).Msg("provider health check failed")
	}

	// Rejection archive.
	objects, err := msgstore.New(ctx, cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create rejection archive")
	}
	archive := msgstore.NewArchive(objects)

	proc := dispatch.New(store, names, prov, cfg.Dispatch)
	notifier := notify.New(store, names, provider.NewHTTPClient(cfg.Notify.Timeout), cfg.Notify, log)
	var archiver pipeline.Archiver
	if archive != nil {
		archiver = archive
	}
	pool := pipeline.New(backend.Queue, proc, writer.New(store, names, log), notifier, archiver, cfg.Worker, log)

	// Supervised loops.
	sup := supervisor.New(ctx, log)
	for i := range pool.Workers() {
		name := fmt.Sprintf("worker-%d", i)
		sup.GoRestart(name, func(ctx context.Context) error {
			return pool.Run(ctx, name)
		})
	}
	if backend.Reclaimer != nil {
		sup.GoRestart("lease-reaper", func(ctx context.Context) error {
			return pipeline.RunReaper(ctx, backend.Reclaimer, cfg.Queue.ReclaimInterval, log)
		})
	}
	if db != nil {
		sup.GoRestart("db-stats", func(ctx context.Context) error {
			return db.ReportStats(ctx, cfg.Metrics.StatsInterval)
		})
	}

	log.Info().
		Int("workers", pool.Workers()).
		Int("batch_size", cfg.Worker.BatchSize).
		Str("queue", cfg.Queue.Type).
		Str("provider", prov.GetName()).
		Msg("dispatch worker pool started")

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           opsRouter(cfg, backend, archive, sup, pool.Workers(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server error")
		}
	}()

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down dispatch worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := sup.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("workers did not stop before the shutdown timeout")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	log.Info().Msg("dispatch worker stopped")
}

// opsRouter serves metrics, health and supervisor stats. With the in-memory
// queue the ingest endpoint is served here too, since no other process can
// reach the queue.
func opsRouter(cfg *config.Config, backend *queue.Backend, archive *msgstore.Archive,
	sup *supervisor.Supervisor, workers int, log zerolog.Logger) http.Handler {
	var r *chi.Mux
	if cfg.Queue.Type == "memory" {
		log.Warn().Msg("serving the ingest endpoint from the worker for the in-memory queue")
		r = api.NewRouter(api.Deps{
			Queue:        backend.Queue,
			DeadLetters:  backend.DeadLetters,
			Archive:      archive,
			AdminKey:     cfg.API.AdminKey,
			MaxBodyBytes: cfg.API.MaxBodyBytes,
			Workers:      workers,
			Log:          log,
		})
	} else {
		r = chi.NewRouter()
		r.Use(api.RecoverMiddleware(log))
		r.Get("/health", api.HealthHandler(backend.Queue, workers))
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/tasks", api.TasksHandler(sup))
	return r
}
