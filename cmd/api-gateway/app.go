package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/Anuj-afk/TimeTable-Generator/api/swagger"
	"github.com/Anuj-afk/TimeTable-Generator/internal/handler"
	internalmiddleware "github.com/Anuj-afk/TimeTable-Generator/internal/middleware"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/repository"
	"github.com/Anuj-afk/TimeTable-Generator/internal/service"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/cache"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/config"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/database"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/jobs"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/logger"
	corsmiddleware "github.com/Anuj-afk/TimeTable-Generator/pkg/middleware/cors"
	reqidmiddleware "github.com/Anuj-afk/TimeTable-Generator/pkg/middleware/requestid"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/response"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/storage"
)

const timetableQueue = "timetable"

type application struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *sqlx.DB
	cacheRepo *repository.CacheRepository
	queue     *jobs.Queue

	metrics    *service.MetricsService
	cache      *service.CacheService
	auth       *service.AuthService
	timetables *service.TimetableService
	jobs       *service.TimetableJobService
	exports    *service.ExportService
}

func newApplication(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = config.DriverSQLite
	}
	if err := database.Migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, result caching disabled", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.CacheTTL, logr, redisClient != nil)

	runRepo := repository.NewTimetableRunRepository(db)
	resultRepo := repository.NewTimetableResultRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()

	timetableSvc := service.NewTimetableService(runRepo, resultRepo, cacheSvc, metricsSvc, validate, logr, service.TimetableServiceConfig{
		Days:          cfg.Scheduler.Days,
		PeriodsPerDay: cfg.Scheduler.PeriodsPerDay,
		CacheTTL:      cfg.Scheduler.CacheTTL,
	})

	fileStore, err := storage.NewLocalStorage(cfg.Timetables.StorageDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init timetable storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Timetables.SignedURLSecret, cfg.Timetables.SignedURLTTL)
	exportSvc := service.NewExportService(fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Timetables.RetentionPeriod,
	}, logr, nil, nil, nil)

	worker := service.NewTimetableWorker(runRepo, fileStore, timetableSvc, exportSvc, cfg.Timetables.WorkerRetries, logr)
	queue := jobs.NewQueue(timetableQueue, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Timetables.WorkerConcurrency,
		MaxRetries: cfg.Timetables.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	if err := metricsSvc.TrackQueueDepth(timetableQueue, queue.Len); err != nil {
		logr.Warn("queue depth gauge not registered", zap.Error(err))
	}

	jobSvc := service.NewTimetableJobService(runRepo, fileStore, queue, exportSvc, timetableSvc, logr, service.TimetableJobConfig{
		ResultTTL:       cfg.Timetables.RetentionPeriod,
		CleanupInterval: cfg.Timetables.CleanupInterval,
		MaxUploadBytes:  cfg.Timetables.MaxUploadBytes,
	})

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "timetable-generator",
		Audience:          []string{"timetable-api"},
	})

	return &application{
		cfg:        cfg,
		logger:     logr,
		db:         db,
		cacheRepo:  cacheRepo,
		queue:      queue,
		metrics:    metricsSvc,
		cache:      cacheSvc,
		auth:       authSvc,
		timetables: timetableSvc,
		jobs:       jobSvc,
		exports:    exportSvc,
	}, nil
}

// start seeds the administrator and brings up the background workers.
func (a *application) start(ctx context.Context) error {
	if a.cfg.Auth.Enabled {
		if _, err := a.auth.EnsureAdmin(ctx, service.AdminAccount{
			Email:    a.cfg.Auth.AdminEmail,
			Password: a.cfg.Auth.AdminPassword,
			FullName: a.cfg.Auth.AdminName,
		}); err != nil {
			return fmt.Errorf("seed administrator: %w", err)
		}
	}

	a.queue.Start(ctx)
	a.jobs.RecoverPendingJobs(ctx)
	a.jobs.StartCleanup(ctx)
	return nil
}

func (a *application) close() {
	a.queue.Stop()
	if err := a.cacheRepo.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(a.metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(a.metrics, map[string]handler.ReadinessCheck{
		"database": a.db.PingContext,
		"redis":    a.cacheRepo.Ping,
	})
	authHandler := handler.NewAuthHandler(a.auth)
	timetableHandler := handler.NewTimetableHandler(a.timetables, a.jobs, a.exports, a.cache)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", internalmiddleware.JWT(a.auth), authHandler.Me)
	api.GET("/export/:token", timetableHandler.Download)

	readers := api.Group("")
	operators := api.Group("")
	if a.cfg.Auth.Enabled {
		readers.Use(internalmiddleware.JWT(a.auth), internalmiddleware.RBAC(models.ReaderRoles...))
		operators.Use(internalmiddleware.JWT(a.auth), internalmiddleware.RBAC(models.OperatorRoles...))
	}
	readers.GET("/metrics/summary", metricsHandler.Snapshot)
	readers.GET("/timetables/runs", timetableHandler.ListRuns)
	readers.GET("/timetables/runs/:id", timetableHandler.GetRun)
	readers.GET("/timetables/runs/:id/grids", timetableHandler.GetGrids)
	readers.GET("/timetables/runs/:id/summary", timetableHandler.GetSummary)
	readers.GET("/timetables/grids/latest", timetableHandler.LatestGrids)

	operators.POST("/timetables/generate", timetableHandler.Generate)
	operators.POST("/timetables/export", timetableHandler.Export)
	operators.POST("/timetables/upload", timetableHandler.Upload)
	operators.DELETE("/timetables/cache", timetableHandler.InvalidateCache)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	return r
}
