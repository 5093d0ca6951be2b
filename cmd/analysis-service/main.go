// Package main is the entry point for the Analysis Service.
// Analysis Service scores Microsoft 365 accounts for signs of compromise
// and serves the results over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/common/logger"
	"github.com/entraguard/entraguard/internal/common/tracing"
	"github.com/entraguard/entraguard/internal/directory"
	"github.com/entraguard/entraguard/internal/geo"
	"github.com/entraguard/entraguard/internal/indicator"
	"github.com/entraguard/entraguard/internal/metrics"
	"github.com/entraguard/entraguard/internal/report"
	"github.com/entraguard/entraguard/internal/reputation"
	"github.com/entraguard/entraguard/internal/risk"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

const serviceName = "analysis-service"

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Analysis Service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.Init(context.Background(), tracing.ConfigFromEnv(serviceName, cfg.Environment), log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	redisClient := newRedisClient(cfg.RedisURL, log)

	geoResolver, closeGeo, err := newGeoResolver(cfg.Geo)
	if err != nil {
		log.Fatal("Failed to initialize geo resolver", zap.Error(err))
	}
	if closeGeo != nil {
		defer closeGeo()
	}
	geoCache := geo.NewCache(geoResolver, redisClient,
		time.Duration(cfg.Geo.CacheTTLMin)*time.Minute, log)

	reputationClient := reputation.NewClient(
		cfg.Reputation.Endpoint,
		cfg.Reputation.APIKey,
		time.Duration(cfg.Reputation.TimeoutSecs)*time.Second,
		redisClient,
		time.Duration(cfg.Reputation.CacheTTLMin)*time.Minute,
		log,
	)

	registry, err := indicator.NewRegistry(cfg.Scoring.PointOverrides)
	if err != nil {
		log.Fatal("Failed to load indicator registry", zap.Error(err))
	}

	graphClient := directory.NewGraphClient(cfg.Graph, log)
	service := risk.NewService(graphClient, geoCache, reputationClient,
		registry, cfg.Scoring, cfg.Breach, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(logger.GinMiddleware(log))
	router.Use(metrics.Middleware(serviceName))

	handler := report.NewHandler(service, log)
	handler.RegisterRoutes(router.Group("/api/v1"))

	router.GET("/metrics", metrics.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
			"version": Version,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if redisClient != nil {
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// newRedisClient connects the shared L2 cache. A missing redis only costs
// cross-instance caching, so failures downgrade to a warning.
func newRedisClient(redisURL string, log *zap.Logger) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("Invalid redis URL, running without shared cache", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, running without shared cache", zap.Error(err))
		return nil
	}
	return client
}

// newGeoResolver picks the configured provider: local MaxMind databases
// or the ip-api.com HTTP service.
func newGeoResolver(cfg config.GeoConfig) (geo.Resolver, func(), error) {
	switch cfg.Provider {
	case "maxmind":
		resolver, err := geo.NewMaxMindResolver(cfg.CityDBPath, cfg.ASNDBPath)
		if err != nil {
			return nil, nil, err
		}
		return resolver, resolver.Close, nil
	default:
		return geo.NewIPAPIResolver(time.Duration(cfg.TimeoutSecs) * time.Second), nil, nil
	}
}
