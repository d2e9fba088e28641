package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/report"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	} else {
		log.Warn().Msg("REDIS_URL not set, exam store and live monitor stay in memory")
	}

	// ─── Connect to PostgreSQL (optional) ──────────────────────────────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" && cfg.ArchiveResults {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	var (
		examStore   repository.ExamStore   = repository.NewMemoryExamStore()
		monitorFeed repository.MonitorFeed = repository.NewMemoryMonitorFeed()
		archive     service.ResultArchiver
		archiveLen  handler.QueueLength
		resultRepo  *repository.ResultRepository
		checks      = map[string]handler.HealthCheck{}
	)
	if rdb != nil {
		examStore = repository.NewRedisExamStore(rdb)
		monitorFeed = repository.NewRedisMonitorFeed(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pool != nil {
		resultRepo = repository.NewResultRepository(pool)
		checks["postgres"] = pool.Ping
		if rdb != nil {
			queue := repository.NewArchiveQueue(rdb)
			archive = queue
			archiveLen = queue.Len
		} else {
			archive = directArchive{repo: resultRepo}
		}
	}

	// ─── Report Dispatchers ────────────────────────────────────────────
	dispatcher, closeDispatchers := buildDispatchers(cfg, rdb, log)
	defer closeDispatchers()

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.SessionTokenTTL)
	examService := service.NewExamService(examStore, log)
	gradingService := service.NewGradingService(examService, dispatcher, archive, cfg.ExaminerEmail, log)
	monitorService := service.NewMonitorService(monitorFeed, log)
	sessionService := service.NewSessionService(ctx, examService, gradingService, tokenService, monitorService,
		service.SessionOptions{
			TickInterval: cfg.TickInterval,
			Retention:    cfg.SessionRetention,
		}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	var resultLister handler.ResultLister
	if resultRepo != nil {
		resultLister = resultRepo
	}
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(examService, gradingService),
		Session: handler.NewSessionHandler(sessionService),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(examService, sessionService, monitorService, log),
		Result:  handler.NewResultHandler(resultLister, examService),
		System:  handler.NewSystemHandler(sessionService, checks, archiveLen, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		sessionService.RunJanitor(workerCtx, time.Minute)
	}()

	if resultRepo != nil && rdb != nil {
		archiveWorker := worker.NewArchiveWorker(resultRepo, rdb, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			archiveWorker.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, tokenService, sessionService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are not tracked by Shutdown and end with the process.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the archive buffer to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// buildDispatchers creates the dispatchers named in REPORT_DISPATCHERS.
// The returned func closes those that hold connections.
func buildDispatchers(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (report.Dispatcher, func()) {
	var (
		dispatchers []report.Dispatcher
		closers     []func() error
	)

	if cfg.HasDispatcher(config.DispatcherLog) {
		dispatchers = append(dispatchers, report.NewLogDispatcher(log))
	}
	if cfg.HasDispatcher(config.DispatcherRedis) {
		if rdb == nil {
			log.Warn().Msg("Redis report dispatcher requested without REDIS_URL, skipping")
		} else {
			dispatchers = append(dispatchers, report.NewRedisDispatcher(rdb))
		}
	}
	if cfg.HasDispatcher(config.DispatcherKafka) {
		kd, err := report.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaReportTopic, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka report dispatcher")
		}
		dispatchers = append(dispatchers, kd)
		closers = append(closers, kd.Close)
	}

	if len(dispatchers) == 0 {
		log.Warn().Msg("No report dispatcher configured, results are only logged by the grader")
	}

	return report.NewMulti(log, dispatchers...), func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Error().Err(err).Msg("Failed to close report dispatcher")
			}
		}
	}
}

// directArchive writes reports straight to PostgreSQL when there is no
// Redis queue to buffer them.
type directArchive struct {
	repo *repository.ResultRepository
}

func (a directArchive) Enqueue(ctx context.Context, r *model.ResultReport) error {
	return a.repo.InsertReport(ctx, r)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
