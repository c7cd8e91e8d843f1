package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/church-attendance-api/api/swagger"
	"github.com/noah-isme/church-attendance-api/internal/handler"
	"github.com/noah-isme/church-attendance-api/internal/middleware"
	"github.com/noah-isme/church-attendance-api/internal/models"
	"github.com/noah-isme/church-attendance-api/internal/repository"
	"github.com/noah-isme/church-attendance-api/internal/service"
	"github.com/noah-isme/church-attendance-api/pkg/cache"
	"github.com/noah-isme/church-attendance-api/pkg/config"
	"github.com/noah-isme/church-attendance-api/pkg/database"
	"github.com/noah-isme/church-attendance-api/pkg/jobs"
	"github.com/noah-isme/church-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/church-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/church-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/church-attendance-api/pkg/storage"
)

// @title Church Attendance API
// @version 1.0.0
// @description Attendance regularity statistics and tribe/department conflict resolution
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, statistics cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	service.RegisterAttendanceValidations(validate)

	attendanceRepo := repository.NewAttendanceRepository(db, metricsSvc)
	memberRepo := repository.NewMemberRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, service.CacheConfig{
		Enabled:    cfg.Statistics.CacheEnabled && redisClient != nil,
		DefaultTTL: cfg.Statistics.CacheTTL,
		Namespace:  "church",
	}, logr)
	statisticsSvc := service.NewStatisticsService(memberRepo, attendanceRepo, cacheSvc, validate, cfg.Statistics.CacheTTL, logr)

	notificationWorker := service.NewNotificationWorker(notificationRepo, metricsSvc, logr)
	notificationQueue := jobs.NewQueue("notifications", notificationWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.Retries,
		Logger:     logr,
	})
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()
	notificationSvc := service.NewNotificationService(notificationQueue, logr)

	var sweepWorker *service.ConflictSweepWorker
	sweepQueue := jobs.NewQueue("conflict-sweep", func(ctx context.Context, job jobs.Job) error {
		return sweepWorker.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Conflicts.SweepRetries,
		RetryDelay: cfg.Conflicts.RetryDelay,
		Logger:     logr,
	})
	conflictSvc := service.NewConflictService(service.ConflictServiceParams{
		Facts:      attendanceRepo,
		Members:    memberRepo,
		Notifier:   notificationSvc,
		Statistics: statisticsSvc,
		Queue:      sweepQueue,
		Metrics:    metricsSvc,
		Validator:  validate,
		Logger:     logr,
		Config: service.ConflictServiceConfig{
			Workers:   cfg.Conflicts.SweepWorkers,
			PublicURL: cfg.PublicURL,
		},
	})
	sweepWorker = service.NewConflictSweepWorker(conflictSvc, logr)
	sweepQueue.Start(ctx)
	defer sweepQueue.Stop()

	if cfg.Conflicts.Enabled {
		sweepTicker := jobs.NewTicker(sweepQueue, service.JobTypeConflictSweep, cfg.Conflicts.SweepInterval, logr)
		sweepTicker.Start(ctx, false)
		defer sweepTicker.Stop()
	}

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("export storage init failed", "error", err, "dir", cfg.Exports.StorageDir)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(statisticsSvc, files, signer, validate, service.ExportConfig{
			PublicURL:       cfg.PublicURL,
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, logr)
		exportSvc.StartCleanup(ctx)
	}

	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	attendanceHandler := handler.NewAttendanceHandler(statisticsSvc, exportSvc)
	conflictHandler := handler.NewConflictHandler(conflictSvc)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	readers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTribeManager, models.RoleDepartmentManager)

	api := r.Group(cfg.APIPrefix)
	if exportSvc != nil {
		api.GET("/exports/:token", handler.NewExportHandler(exportSvc).Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(tokenSvc), middleware.WithResponseMeta())
	secured.GET("/attendance/statistics", readers, attendanceHandler.Statistics)
	if exportSvc != nil {
		secured.POST("/attendance/statistics/export", readers, attendanceHandler.Export)
	}
	secured.GET("/attendance/conflicts", readers, conflictHandler.List)
	secured.POST("/attendance/conflicts/resolve", readers, conflictHandler.Resolve)
	secured.POST("/attendance/conflicts/sweep", admins, conflictHandler.Sweep)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
