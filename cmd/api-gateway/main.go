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
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-eval-api/internal/handler"
	"github.com/noah-isme/course-eval-api/internal/middleware"
	"github.com/noah-isme/course-eval-api/internal/models"
	"github.com/noah-isme/course-eval-api/internal/repository"
	"github.com/noah-isme/course-eval-api/internal/service"
	"github.com/noah-isme/course-eval-api/pkg/cache"
	"github.com/noah-isme/course-eval-api/pkg/config"
	"github.com/noah-isme/course-eval-api/pkg/database"
	"github.com/noah-isme/course-eval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-eval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-eval-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-eval-api/pkg/storage"
)

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

	location, err := time.LoadLocation(cfg.Import.Timezone)
	if err != nil {
		logr.Fatal("invalid import timezone", zap.String("timezone", cfg.Import.Timezone), zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient), metricsSvc, cfg.Rewards.EventCacheTTL, logr, cfg.Rewards.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	importParams := service.ImportServiceParams{
		DB:            db,
		Semesters:     repository.NewSemesterRepository(db),
		Users:         repository.NewUserProfileRepository(db),
		CourseTypes:   repository.NewCourseTypeRepository(db),
		Programs:      repository.NewProgramRepository(db),
		Courses:       repository.NewCourseRepository(db),
		Evaluations:   repository.NewEvaluationRepository(db),
		Contributions: repository.NewContributionRepository(db),
		Locker:        repository.NewImportLockRepository(redisClient),
		Metrics:       metricsSvc,
		Validator:     validate,
		Logger:        logr,
		Config: service.ImportServiceConfig{
			Location:          location,
			LockTTL:           cfg.Import.LockTTL,
			EmailReplacements: cfg.Import.EmailReplacements,
		},
	}

	archiveHandler := handler.NewArchiveHandler(nil)
	if cfg.Import.ReportDir != "" {
		reportStore, err := storage.NewLocalStorage(cfg.Import.ReportDir)
		if err != nil {
			logr.Fatal("failed to prepare report directory", zap.Error(err))
		}
		importParams.Archiver = service.NewExportService(reportStore, logr, nil, nil)
		archiveHandler = handler.NewArchiveHandler(reportStore)
	}

	importSvc := service.NewImportService(importParams)
	redemptionSvc := service.NewRedemptionService(db, repository.NewRewardRepository(db), cacheSvc, metricsSvc, validate, logr, service.RedemptionServiceConfig{
		Location:      location,
		EventCacheTTL: cfg.Rewards.EventCacheTTL,
	})

	importHandler := handler.NewImportHandler(importSvc)
	redemptionHandler := handler.NewRedemptionHandler(redemptionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	imports := api.Group("/semesters/:semesterId/imports", middleware.RequireRoles(models.RoleManager))
	imports.POST("", importHandler.Import)
	imports.GET("/reports/:file", archiveHandler.Download)

	rewards := api.Group("/rewards")
	rewards.GET("/redemptions", redemptionHandler.Overview)
	rewards.POST("/redemptions", redemptionHandler.Redeem)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
