package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/song-catalog/server/internal/cache"
	"github.com/song-catalog/server/internal/cron"
	"github.com/song-catalog/server/internal/handler"
	"github.com/song-catalog/server/internal/loader"
	"github.com/song-catalog/server/internal/middleware"
	"github.com/song-catalog/server/internal/repository"
	"github.com/song-catalog/server/internal/service"
	"github.com/song-catalog/server/pkg/config"
	"github.com/song-catalog/server/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Caller: cfg.Log.Caller,
	})
	log.Info("Starting catalog-svc", logger.Int("port", cfg.Server.HTTPPort))

	ctx := context.Background()

	if err := repository.Migrate(&cfg.Postgres); err != nil {
		log.Fatal("Failed to run migrations", logger.Error(err))
	}

	pool, err := repository.NewPool(ctx, &cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to database", logger.Error(err))
	}
	defer pool.Close()
	log.Info("Database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()

	store := cache.NewRedisStore(redisClient, cfg.Cache.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		// The cache is an optimisation; the service still works without it.
		log.Warn("Redis unreachable at startup, serving from store only", logger.Error(err))
	} else {
		log.Info("Redis connected")
	}

	repo := repository.NewSongRepository(pool)
	catalog := service.NewCatalogService(repo, store, service.TTLConfig{
		List:      cfg.Cache.ListTTL,
		Aggregate: cfg.Cache.AggregateTTL,
		Stats:     cfg.Cache.StatsTTL,
	}, log)

	if cfg.Data.PlaylistFile != "" {
		playlistLoader := loader.New(repo, store, log)
		if _, err := playlistLoader.LoadFile(ctx, cfg.Data.PlaylistFile); err != nil {
			log.Warn("Playlist ingestion at startup failed", logger.Error(err))
		}
	}

	cronManager := cron.NewManager(catalog, cfg.Cache.WarmupSchedule, cfg.Cache.WarmupLimit, log)
	if err := cronManager.Start(); err != nil {
		log.Fatal("Failed to start cron manager", logger.Error(err))
	}
	defer cronManager.Stop()

	router := setupRouter(cfg, catalog, repo, store, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down catalog-svc")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", logger.Error(err))
	}
	log.Info("catalog-svc stopped")
}

func setupRouter(
	cfg *config.Config,
	catalog *service.CatalogService,
	repo repository.SongRepository,
	store cache.Store,
	log logger.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		handler.NewSongHandler(catalog).RegisterRoutes(api)

		playlistLoader := loader.New(repo, store, log)
		handler.NewLoadHandler(playlistLoader, cfg.Data.PlaylistFile).RegisterRoutes(api)
	}

	return router
}
