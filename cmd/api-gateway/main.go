package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/maap-api/api/swagger"
	"github.com/noah-isme/maap-api/internal/handler"
	"github.com/noah-isme/maap-api/internal/repository"
	"github.com/noah-isme/maap-api/internal/service"
	"github.com/noah-isme/maap-api/pkg/cache"
	"github.com/noah-isme/maap-api/pkg/config"
	"github.com/noah-isme/maap-api/pkg/database"
	"github.com/noah-isme/maap-api/pkg/jobs"
	"github.com/noah-isme/maap-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// @title MAAP API
// @version 1.0.0
// @description Check-ins, MAAP change snapshots and stats rollups
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, stats caching disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, "stats", logr.Named("cache"))
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr.Named("cache"), redisClient != nil)

	// The queue handler needs the invalidator and the invalidator needs the queue.
	var invalidator *service.QueuedStatsInvalidator
	queue := jobs.NewQueue("stats-invalidation", func(ctx context.Context, job jobs.Job) error {
		return invalidator.HandleJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr.Named("jobs"),
	})
	invalidator = service.NewQueuedStatsInvalidator(queue, cacheSvc, logr.Named("stats"))
	queue.Start(ctx)
	defer queue.Stop()

	checkInRepo := repository.NewCheckInRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	employmentRepo := repository.NewEmploymentRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	checkIns := service.NewCheckInService(checkInRepo, auditRepo, logr.Named("check-ins"),
		service.WithCheckInMetrics(metrics),
		service.WithCheckInStatsInvalidator(invalidator),
	)
	snapshots := service.NewSnapshotService(snapshotRepo, employmentRepo, assignmentRepo, checkInRepo, auditRepo,
		validator.New(), logr.Named("snapshots"))
	executor := service.NewSnapshotExecutor(snapshotRepo, service.NewSQLTxRunner(db), auditRepo, logr.Named("executor"),
		service.WithExecutorMetrics(metrics),
		service.WithExecutorStatsInvalidator(invalidator),
	)
	stats := service.NewStatsService(checkInRepo, feedbackRepo, employmentRepo, cacheSvc, metrics, logr.Named("stats"))
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	readyChecks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		readyChecks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(handler.RouterDeps{
		Logger:          logr,
		Metrics:         metrics,
		Tokens:          tokens,
		Audit:           auditRepo,
		APIPrefix:       cfg.APIPrefix,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		EnableDocs:      cfg.Env != config.EnvProduction,
		EnableStats:     cfg.Stats.Enabled,
		EnableSnapshots: cfg.Snapshots.Enabled,
		ReadyChecks:     readyChecks,
		CheckIns:        handler.NewCheckInHandler(checkIns),
		Snapshots:       handler.NewSnapshotHandler(snapshots, executor),
		Stats:           handler.NewStatsHandler(stats),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
