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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-curriculum-api/api/swagger"
	"github.com/noah-isme/sma-curriculum-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	"github.com/noah-isme/sma-curriculum-api/pkg/cache"
	"github.com/noah-isme/sma-curriculum-api/pkg/config"
	"github.com/noah-isme/sma-curriculum-api/pkg/database"
	"github.com/noah-isme/sma-curriculum-api/pkg/events"
	"github.com/noah-isme/sma-curriculum-api/pkg/generator"
	"github.com/noah-isme/sma-curriculum-api/pkg/jobs"
	"github.com/noah-isme/sma-curriculum-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-curriculum-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-curriculum-api/pkg/middleware/requestid"
)

// @title SMA Curriculum Planning API
// @version 1.0.0
// @description Collaborative review of learning objectives and rubric levels
// @BasePath /api/v1
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}

	var redisClient redis.UniversalClient
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, proposal cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}

	publisher, stopEvents := buildPublisher(ctx, cfg, logr)
	defer stopEvents()

	metricsSvc := service.NewMetricsService()
	router := buildRouter(cfg, logr, db, redisClient, publisher, metricsSvc, checks)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildPublisher returns the lifecycle event publisher and a function draining it.
func buildPublisher(ctx context.Context, cfg *config.Config, logr *zap.Logger) (events.Publisher, func()) {
	if !cfg.Events.Enabled {
		return events.Nop{}, func() {}
	}
	conn, err := events.Connect(cfg.Events.NATSURL)
	if err != nil {
		logr.Warn("event publishing disabled", zap.Error(err))
		return events.Nop{}, func() {}
	}
	async := events.NewAsyncPublisher(events.NewNATSPublisher(conn, cfg.Events.SubjectPrefix), jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr.Named("events"),
	})
	async.Start(ctx)
	return async, func() {
		async.Stop()
		if err := conn.Drain(); err != nil {
			logr.Warn("nats drain failed", zap.Error(err))
		}
	}
}

func buildRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient redis.UniversalClient, publisher events.Publisher, metricsSvc *service.MetricsService, checks map[string]handler.ReadinessCheck) *gin.Engine {
	validate := validator.New()

	proposalRepo := repository.NewProposalRepository(db)
	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	quorumSvc := service.NewQuorumService(assignmentRepo, logr)
	proposalSvc := service.NewProposalService(proposalRepo, quorumSvc, auditRepo, validate, logr,
		service.WithProposalCache(cacheSvc, cfg.Cache.TTL),
		service.WithProposalEvents(publisher),
		service.WithProposalMetrics(metricsSvc),
	)

	var draftGenerator service.DraftGenerator
	if cfg.Generator.Enabled {
		draftGenerator = generator.New(generator.Config{
			APIKey:  cfg.Generator.APIKey,
			BaseURL: cfg.Generator.BaseURL,
			Models:  cfg.Generator.Models,
			Timeout: cfg.Generator.Timeout,
		}, logr.Named("generator"))
	}
	generationSvc := service.NewGenerationService(proposalRepo, quorumSvc, draftGenerator, auditRepo, validate, logr, service.GenerationServiceConfig{
		Cache:   cacheSvc,
		Events:  publisher,
		Metrics: metricsSvc,
	})
	lineageSvc := service.NewLineageService(proposalRepo, cfg.Review, logr)
	exportSvc := service.NewExportService(proposalRepo, logr, nil, nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	handler.RegisterOpsRoutes(r, metricsHandler)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterPlanningRoutes(r.Group(cfg.APIPrefix), handler.PlanningHandlers{
		Proposals:  handler.NewProposalHandler(proposalSvc),
		Generation: handler.NewGenerationHandler(generationSvc),
		Lineage:    handler.NewLineageHandler(lineageSvc),
		Quorum:     handler.NewQuorumHandler(quorumSvc),
		Export:     handler.NewExportHandler(exportSvc),
		Metrics:    metricsHandler,
		Auth:       handler.NewAuthHandler(),
	},
		internalmiddleware.Audit(auditRepo, logr, models.AuditActionCurriculumExport, "curriculum"),
		internalmiddleware.JWT(authSvc),
		internalmiddleware.RequireRoles(internalmiddleware.PlanningRoles...),
	)

	return r
}
