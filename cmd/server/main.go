package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tarkostock/internal/config"
	"tarkostock/internal/handler"
	"tarkostock/internal/infra"
	"tarkostock/internal/repository"
	"tarkostock/internal/router"
	"tarkostock/internal/service"
	"tarkostock/internal/worker"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := infra.NewTracing(ctx, cfg.OTelExporter, cfg.OTelEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise tracing")
	}

	store := openStore(cfg)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
	}

	deps := router.Deps{
		Store:   store,
		RDB:     rdb,
		Ledger:  service.NewLedgerService(store),
		Catalog: service.NewCatalogService(store, rdb, cfg.CatalogCacheTTL),
		Checker: service.NewConsistencyService(store),
	}

	var publisher service.EventPublisher
	var pool *worker.Pool
	var scheduler *worker.Scheduler
	if rdb != nil {
		redisPub := infra.NewRedisPublisher(rdb, infra.NewCircuitBreaker(infra.DefaultCBConfig()))
		publisher = redisPub
		deps.Breaker = redisPub.Breaker()

		// Worker pool and scheduler are owned here and stopped on shutdown.
		dispatcher := worker.NewDispatcher(rdb)
		reports := worker.NewReportStore(rdb)
		deps.Queue = dispatcher
		deps.Reports = reports
		deps.DeadLetters = worker.NewDeadLetters(rdb, worker.QueueConsistency)

		pool = worker.StartWorkerPool(ctx, rdb, &worker.WorkerHandlers{
			Sweep: worker.NewSweepWorker(deps.Checker, reports),
		}, cfg.WorkerPoolSize)

		scheduler = worker.NewScheduler(dispatcher, redislock.New(rdb), cfg.SweepInterval)
		scheduler.Start(ctx)
	}

	deps.Lifecycle = service.NewLifecycleService(store, publisher, service.Options{
		Timeout:         cfg.StoreTimeout,
		ConflictRetries: cfg.ConflictRetries,
	})

	r := router.New(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("store", cfg.StoreDriver).Msgf("tarkostock listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	if pool != nil {
		pool.Wait()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("server exited")
}

func openStore(cfg *config.Config) repository.Store {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store: data is lost on restart")
		return repository.NewMemoryStore()
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	return repository.NewGormStore(db)
}

var (
	_ handler.SweepQueue       = (*worker.Dispatcher)(nil)
	_ handler.ReportReader     = (*worker.ReportStore)(nil)
	_ handler.DeadLetterReader = (*worker.DeadLetters)(nil)
)
