package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/accesslog"
	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/config"
	"github.com/nis-portal/portal-api/internal/handlers"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/middleware"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/storage"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/nis-portal/portal-api/docs"
)

// @title           NIS Cross-Border Benefit Portal API
// @version         1.0
// @description     API for tracking cross-border pension benefit requests between CARICOM national insurance agencies: authentication, request lifecycle, document upload, reference data and audit log.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @tag.name requests
// @tag.description Benefit request lifecycle

// @tag.name health
// @tag.description Health check operations

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}
	cfg := config.AppConfig

	// Initialize observability
	observability.InitTracer()
	defer observability.ShutdownTracer()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Relational store
	if err := config.InitPostgres(ctx); err != nil {
		logging.Logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	applied, err := store.Migrate(ctx, config.Postgres)
	if err != nil {
		logging.Logger.Fatal("failed to apply migrations", zap.Error(err))
	}
	logging.Logger.Info("schema up to date", zap.Strings("applied", applied))
	repo := store.NewPostgresStore(config.Postgres)

	// Redis backs the login throttle; the limiter falls back to local counters
	config.InitRedis()
	limiter := services.NewRateLimiter(config.Redis, "nis:login:", cfg.LoginRateLimit, cfg.LoginRateWindow, logging.Logger)
	limiter.StartCleanup(ctx, time.Minute)

	// Access trail
	var accessWorker *accesslog.Worker
	if cfg.AccessLogEnabled {
		if err := config.InitMongoDB(); err != nil {
			logging.Logger.Error("access trail disabled: mongodb unavailable", zap.Error(err))
		} else {
			sink := accesslog.NewMongoSink(config.MongoDB.Collection(cfg.AccessLogCollection))
			accessWorker = accesslog.NewWorker(sink, cfg.AccessLogWorkers, cfg.AccessLogBufferSize, logging.Logger.Named("accesslog"))
			accessWorker.Start()
		}
	}

	// Document blobs
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to initialize document storage", zap.Error(err))
	}

	// Services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	services.AuditServiceInstance = services.NewAuditService(repo, logging.Logger)
	services.RequestServiceInstance = services.NewRequestService(repo, services.AuditServiceInstance, services.RequestSettings{
		DefaultRequestingCountryID: cfg.DefaultRequestingCountryID,
		DefaultCountryCode:         cfg.DefaultCountryCode,
		ResponseDays:               cfg.ResponseTargetDays,
	}, logging.Logger)
	services.DocumentServiceInstance = services.NewDocumentService(repo, blobs, cfg.UploadMaxBytes, logging.Logger)
	services.MetaServiceInstance = services.NewMetaService(repo, logging.Logger)
	services.UserServiceInstance = services.NewUserService(repo, tokens, limiter, logging.Logger)

	handlers.RegisterHealthCheck("postgres", true, repo.Ping)
	handlers.RegisterHealthCheck("redis", false, func(ctx context.Context) error {
		return config.Redis.Ping(ctx).Err()
	})
	if config.MongoDB != nil {
		handlers.RegisterHealthCheck("mongodb", false, func(ctx context.Context) error {
			return config.MongoDB.Client().Ping(ctx, nil)
		})
	}
	if accessWorker != nil {
		handlers.RegisterHealthDetail("access_log", accessWorker.Stats)
	}
	if cfg.UploadMaxBytes > 0 {
		handlers.UploadBodyLimit = cfg.UploadMaxBytes*10 + 1<<20
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with middleware
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestTiming(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		cors.New(corsConfig(cfg.CORSAllowedOrigins)),
	)
	if accessWorker != nil {
		router.Use(middleware.AuditMiddleware(accessWorker))
	}

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if local, ok := blobs.(*storage.LocalStore); ok {
		router.Static("/uploads", local.Root())
	}

	handlers.RegisterRoutes(router, tokens)

	// Create server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("storage_backend", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logging.Logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("server forced to shutdown", zap.Error(err))
	}
	stop()
	if accessWorker != nil {
		accessWorker.Stop()
	}
	config.CloseConnections(shutdownCtx)

	logging.Logger.Info("server exited gracefully")
}

// newBlobStore selects the document backend named by STORAGE_BACKEND
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.StorageBackend == "s3" {
		client, err := storage.NewS3Client(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, cfg.S3Bucket, logging.Logger), nil
	}
	local, err := storage.NewLocalStore(cfg.UploadDir, logging.Logger)
	if err != nil {
		return nil, err
	}
	return local, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID")
	c.ExposeHeaders = []string{"X-Request-ID"}
	return c
}
