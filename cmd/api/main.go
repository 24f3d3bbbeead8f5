package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moviesite/internal/api"
	"moviesite/internal/auth"
	"moviesite/internal/config"
	"moviesite/internal/database"
	"moviesite/internal/domain"
	"moviesite/internal/events"
	"moviesite/internal/export"
	"moviesite/internal/logging"
	"moviesite/internal/metrics"
	"moviesite/internal/queue"
	"moviesite/internal/repository"
	"moviesite/internal/service"
	"moviesite/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recoverStaleIntents(ctx, db, cfg.Queue.StaleAfter, logger)

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	subscribeQueueEvents(bus, logging.Component(logger, "queue-events"))

	var (
		deadLetterSink   domain.DeadLetterSink
		deadLetterReader service.DeadLetterReader
	)
	if redisClient != nil {
		deadLetters := queue.NewRedisDeadLetters(redisClient, cfg.Queue.DeadLetterKey)
		deadLetterSink, deadLetterReader = deadLetters, deadLetters
	}

	processor := queue.NewProcessor(db, db, queue.Options{
		BatchSize: cfg.Queue.BatchSize,
		Retry: queue.RetryPolicy{
			InitialDelay:  cfg.Queue.Backoff.InitialDelay,
			MaxDelay:      cfg.Queue.Backoff.MaxDelay,
			BackoffFactor: cfg.Queue.Backoff.Factor,
		},
		QuarantineMissingTarget: cfg.Queue.QuarantineMissingTarget,
		DeadLetters:             deadLetterSink,
		Events:                  bus,
		Logger:                  logging.Component(logger, "queue-processor"),
	})
	scheduler := queue.NewScheduler(processor, cfg.Queue.PollInterval, logging.Component(logger, "queue-scheduler"))
	enqueuer := queue.NewEnqueuer(db, scheduler, bus, cfg.Queue.MaxRetries, logging.Component(logger, "queue-enqueuer"))

	blobs, err := storage.NewLocalStore(cfg.Storage.Path, cfg.Storage.PublicURL)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Storage.Path).Msg("init storage")
		return err
	}

	serviceLogger := logging.Component(logger, "service")
	httpServer := api.NewHTTPServer(cfg.API, api.Dependencies{
		Movies: service.NewMovieService(db, enqueuer, blobs, serviceLogger),
		Users: service.NewUserService(
			db,
			auth.NewTokenManager(cfg.API.Auth.JWTSecret, cfg.API.Auth.TokenTTL),
			initThrottle(redisClient, logger),
			cfg.API.LoginLimit,
			serviceLogger,
		),
		Queue: service.NewQueueService(
			db, scheduler, bus,
			export.NewExporter(db, cfg.Exports.Path),
			deadLetterReader,
			serviceLogger,
		),
		Ready:      db,
		UploadsDir: blobs.Dir(),
		UploadsURL: blobs.PublicURL(),
	}, logging.Component(logger, "http"))

	startMetrics(ctx, cfg, logger)

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	scheduler.Start(ctx)
	defer scheduler.Stop()

	return startServer(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// recoverStaleIntents returns intents orphaned in processing by a previous crash to pending.
func recoverStaleIntents(ctx context.Context, db *database.DB, staleAfter time.Duration, logger *zerolog.Logger) {
	n, err := db.RequeueStaleIntents(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		logger.Warn().Err(err).Msg("requeue stale intents")
		return
	}
	if n > 0 {
		logger.Warn().Int64("count", n).Msg("stale processing intents returned to pending")
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(client)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initThrottle(client *redis.Client, logger *zerolog.Logger) domain.LoginThrottle {
	memory := repository.NewMemoryThrottle()
	if client == nil {
		return memory
	}
	return repository.NewFailoverThrottle(
		repository.NewRedisThrottle(client),
		memory,
		logging.Component(logger, "login-throttle"),
	)
}

func subscribeQueueEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventIntentFailed, func(ev *events.Event) error {
		var p events.IntentEventPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		logger.Error().
			Int64("intent_id", p.IntentID).
			Str("operation", p.Operation).
			Int64("target_id", p.TargetID).
			Str("last_error", p.LastError).
			Msg("intent quarantined, requeue via admin API after fixing the cause")
		return nil
	})
	bus.Subscribe(events.EventIntentRequeued, func(ev *events.Event) error {
		var p events.IntentEventPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		logger.Info().Int64("intent_id", p.IntentID).Msg("intent requeued")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Str("http_addr", httpServer.Addr()).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
