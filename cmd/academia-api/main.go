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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academia-api/api/swagger"
	"github.com/noah-isme/academia-api/internal/handler"
	internalmiddleware "github.com/noah-isme/academia-api/internal/middleware"
	"github.com/noah-isme/academia-api/internal/migrations"
	"github.com/noah-isme/academia-api/internal/repository"
	"github.com/noah-isme/academia-api/internal/service"
	"github.com/noah-isme/academia-api/internal/validation"
	"github.com/noah-isme/academia-api/pkg/cache"
	"github.com/noah-isme/academia-api/pkg/config"
	"github.com/noah-isme/academia-api/pkg/database"
	"github.com/noah-isme/academia-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academia-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academia-api/pkg/middleware/requestid"
)

// @title Academia API
// @version 1.0.0
// @description Students, courses and enrollments with enrollment rules and student reports
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 10 * time.Second

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := migrations.NewMigrator(db, logr).Up(ctx)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Int("count", applied))
	}

	var redisClient *redis.Client
	cacheEnabled := cfg.ReportCache.Enabled
	if cacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
			cacheEnabled = false
			redisClient = nil
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ReportCache.TTL, logr, cacheEnabled)

	rules := validation.NewEnrollmentRules(nil)
	validate := service.NewValidator()
	paging := service.PageConfig{DefaultSize: cfg.Pagination.DefaultPageSize, MaxSize: cfg.Pagination.MaxPageSize}

	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, rules)

	studentSvc := service.NewStudentService(studentRepo, cacheSvc, paging, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, paging, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentDeps{
		Repo:      enrollmentRepo,
		Students:  studentRepo,
		Courses:   courseRepo,
		Rules:     rules,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Paging:    paging,
		Validator: validate,
		Logger:    logr,
	})
	reportSvc := service.NewReportService(studentRepo, enrollmentRepo, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(reportSvc, logr)

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	handler.Register(api, handler.Handlers{
		Students:    handler.NewStudentHandler(studentSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Reports:     handler.NewReportHandler(reportSvc, exportSvc),
		Metrics:     metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
