package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"animaldetect/internal/cache"
	"animaldetect/internal/classifier"
	"animaldetect/internal/config"
	"animaldetect/internal/database"
	"animaldetect/internal/handlers"
	"animaldetect/internal/jobs"
	"animaldetect/internal/queue"
	"animaldetect/internal/repository"
	"animaldetect/internal/server"
	"animaldetect/internal/service"
	"animaldetect/internal/storage"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

type app struct {
	log       zerolog.Logger
	server    *server.HTTPServer
	persister *queue.Persister
	scheduler *jobs.Scheduler
	db        *pgxpool.Pool
	redis     *redis.Client
}

// newApp wires every component. Missing or unreachable backends are logged
// and left for the first request that needs them to report.
func newApp(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) *app {
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn().Strs("keys", missing).Msg("configuration incomplete; affected calls will fail")
	}

	a := &app{log: logger}

	var (
		records     = repository.NewDetectionRepository(nil)
		dbPinger    handlers.Pinger
		cachePinger handlers.Pinger
		deadLetters queue.DeadLetterSink = queue.NewLogDeadLetters(logger)
	)

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	switch {
	case errors.Is(err, database.ErrNoDSN):
		logger.Warn().Msg("postgres dsn not set; saves will fail")
	case err != nil:
		logger.Error().Err(err).Msg("postgres pool init failed; saves will fail")
	default:
		a.db = dbPool
		records = repository.NewDetectionRepository(dbPool)
		dbPinger = dbPool
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; dead letters go to the log")
	}
	if redisClient != nil {
		a.redis = redisClient
		deadLetters = queue.NewRedisDeadLetters(redisClient, cfg.Redis.DeadLetterStream, cfg.Redis.DeadLetterMaxLen)
		cachePinger = redisPinger{client: redisClient}
	}

	objectStore := storage.NewObjectStore(cfg.Storage)
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	a.persister = queue.NewPersister(cfg.Persist, service.PersistHandler(objectStore, records), deadLetters, logger)
	a.persister.Start()

	detections := service.NewDetectionService(
		classifier.New(cfg.Model, logger),
		objectStore,
		records,
		a.persister,
		service.Buckets{Labeled: cfg.Storage.BucketLabeled, Captured: cfg.Storage.BucketCaptured},
		logger,
	)

	handlerSet := handlers.NewHandlerSet(logger, detections, cfg.Detection.AutoPersist, dbPinger, cachePinger)
	a.server = server.NewHTTPServer(cfg, logger, handlerSet)

	// a nil client leaves the scheduler idle
	a.scheduler = jobs.NewScheduler(a.redis, cfg.Redis.DeadLetterStream, cfg.Redis.DeadLetterMaxLen, cfg.Redis.TrimSchedule, logger)
	if err := a.scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	return a
}

// close runs after the HTTP server has drained, so no new background tasks
// can arrive.
func (a *app) close(ctx context.Context) {
	if err := a.persister.Stop(ctx); err != nil {
		a.log.Error().Err(err).Msg("background persistence did not drain")
	}

	a.scheduler.Stop()

	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error().Err(err).Msg("redis close error")
		}
	}
}
