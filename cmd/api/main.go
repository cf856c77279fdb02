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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-allocator/api/swagger"
	"github.com/noah-isme/timetable-allocator/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-allocator/internal/middleware"
	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/internal/repository"
	"github.com/noah-isme/timetable-allocator/internal/service"
	"github.com/noah-isme/timetable-allocator/pkg/broker"
	"github.com/noah-isme/timetable-allocator/pkg/cache"
	"github.com/noah-isme/timetable-allocator/pkg/config"
	"github.com/noah-isme/timetable-allocator/pkg/database"
	"github.com/noah-isme/timetable-allocator/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-allocator/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-allocator/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-allocator/pkg/storage"
	"github.com/noah-isme/timetable-allocator/pkg/timetable"
)

// @title Timetable Allocation API
// @version 1.0.0
// @description Teacher-load and room-batch allocation ahead of timetable generation
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Roster.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, roster cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, "timetable", logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Roster.CacheTTL, logr, cfg.Roster.CacheEnabled && redisClient != nil)

	rosterSvc := service.NewRosterService(
		repository.NewTeacherRepository(db),
		repository.NewSubjectRepository(db),
		repository.NewRoomRepository(db),
		repository.NewDivisionRepository(db),
		cacheSvc,
		cfg.Roster.CacheTTL,
		logr,
	)
	allocationSvc := service.NewAllocationService(rosterSvc, metricsSvc, validate, logr)
	if cfg.Roster.LoadOnStart {
		if summary, err := allocationSvc.Start(ctx, 0); err != nil {
			logr.Warn("roster not loaded at startup", zap.Error(err))
		} else {
			logr.Info("allocation session ready", zap.Int("subjects", summary.Subjects), zap.Int("batches", summary.Batches))
		}
	}

	snapshotRepo := repository.NewAllocationSnapshotRepository(db)
	dispatchSvc, closeDispatch := newDispatchService(ctx, cfg, snapshotRepo, metricsSvc, logr)
	defer closeDispatch()

	var finalizeSvc *service.FinalizeService
	if dispatchSvc != nil {
		finalizeSvc = service.NewFinalizeService(allocationSvc, snapshotRepo, db, dispatchSvc, validate, logr)
	} else {
		finalizeSvc = service.NewFinalizeService(allocationSvc, snapshotRepo, db, nil, validate, logr)
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(finalizeSvc, files, signer, metricsSvc, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		RetainFor: cfg.Exports.RetainFor,
	}, logr)
	go exportSvc.RunCleanup(ctx, cfg.Exports.CleanupInterval)

	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	router := newRouter(cfg, logr, metricsSvc, tokenSvc, routeHandlers{
		roster:   handler.NewRosterHandler(allocationSvc),
		teachers: handler.NewTeacherAllocationHandler(allocationSvc),
		rooms:    handler.NewRoomAllocationHandler(allocationSvc),
		finalize: handler.NewFinalizeHandler(allocationSvc, finalizeSvc, exportSvc),
		metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.HealthCheck{
			"database": db.PingContext,
			"redis":    cacheRepo.Ping,
		}),
	})

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

// newDispatchService picks the generator transport. It returns nil when dispatch is disabled or unreachable.
func newDispatchService(ctx context.Context, cfg *config.Config, snapshots *repository.AllocationSnapshotRepository, metrics *service.MetricsService, logr *zap.Logger) (*service.DispatchService, func()) {
	noop := func() {}
	if !cfg.Dispatch.Enabled {
		return nil, noop
	}

	var (
		publisher service.GeneratorPublisher
		closer    = noop
	)
	switch cfg.Dispatch.Transport {
	case config.DispatchTransportAMQP:
		amqpPublisher, err := broker.Dial(cfg.Dispatch.AMQPURL, cfg.Dispatch.Queue)
		if err != nil {
			logr.Error("dispatch disabled: broker unreachable", zap.Error(err))
			return nil, noop
		}
		publisher = amqpPublisher
		closer = func() { _ = amqpPublisher.Close() }
	default:
		publisher = timetable.NewClient(cfg.Dispatch.SchedulerURL, cfg.Dispatch.Timeout, nil)
	}

	svc := service.NewDispatchService(publisher, snapshots, metrics, service.DispatchConfig{
		Transport:  cfg.Dispatch.Transport,
		Workers:    cfg.Dispatch.Workers,
		Retries:    cfg.Dispatch.Retries,
		RetryDelay: cfg.Dispatch.RetryDelay,
	}, logr)
	svc.Start(ctx)
	return svc, func() {
		svc.Stop()
		closer()
	}
}

type routeHandlers struct {
	roster   *handler.RosterHandler
	teachers *handler.TeacherAllocationHandler
	rooms    *handler.RoomAllocationHandler
	finalize *handler.FinalizeHandler
	metrics  *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens internalmiddleware.TokenValidator, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Download links carry their own signature.
	api.GET("/exports/download", h.finalize.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokens))
	read := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	write := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	secured.GET("/metrics/summary", write, h.metrics.Summary)

	secured.GET("/roster", read, h.roster.Get)
	secured.POST("/roster/reload", write, h.roster.Reload)

	teachers := secured.Group("/allocations/teachers")
	teachers.GET("/assignments", read, h.teachers.Assignments)
	teachers.GET("/workloads", read, h.teachers.Workloads)
	teachers.GET("/workloads/:id", read, h.teachers.Workload)
	teachers.GET("/progress", read, h.teachers.Progress)
	teachers.POST("/assign", write, h.teachers.Assign)
	teachers.POST("/unassign", write, h.teachers.Unassign)
	teachers.POST("/priority", write, h.teachers.Priority)
	teachers.POST("/auto", write, h.teachers.Auto)
	teachers.POST("/reset", write, h.teachers.Reset)

	rooms := secured.Group("/allocations/rooms")
	rooms.GET("/pairings", read, h.rooms.Pairings)
	rooms.GET("/conflicts", read, h.rooms.Conflicts)
	rooms.GET("/progress", read, h.rooms.Progress)
	rooms.POST("/mode", write, h.rooms.Mode)
	rooms.POST("/assign", write, h.rooms.Assign)
	rooms.POST("/auto", write, h.rooms.Auto)
	rooms.POST("/reset", write, h.rooms.Reset)
	rooms.POST("/revalidate", write, h.rooms.Revalidate)

	allocations := secured.Group("/allocations")
	allocations.GET("/snapshot", read, h.finalize.Snapshot)
	allocations.POST("/finalize", write, h.finalize.Finalize)
	allocations.GET("/finalized", read, h.finalize.List)
	allocations.GET("/finalized/:id", read, h.finalize.Get)
	allocations.POST("/finalized/:id/export", write, h.finalize.Export)

	return r
}
