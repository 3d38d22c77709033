// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/bikelane/internal/cache"
	"github.com/jason-s-yu/bikelane/internal/config"
	"github.com/jason-s-yu/bikelane/internal/database"
	"github.com/jason-s-yu/bikelane/internal/geocode"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/jason-s-yu/bikelane/internal/handlers"
	"github.com/jason-s-yu/bikelane/internal/hub"
	"github.com/jason-s-yu/bikelane/internal/reports"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, closeItems := itemSource(ctx, cfg, logger)
	defer closeItems()

	deps := guessgame.Deps{Logger: logger}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		deps.Recorder = cache.NewRoundQueue(rdb, cfg.Historian.QueueName)
		logger.Infof("Recording finished rounds to Redis list %s", cfg.Historian.QueueName)
	}

	if cfg.GeoNamesUsername != "" {
		var lookupCache geocode.Cache
		if rdb != nil {
			lookupCache = cache.NewIntersectionCache(rdb, cfg.IntersectionCacheTTL)
		}
		deps.Geocoder = geocode.NewClient(cfg.GeoNamesURL, cfg.GeoNamesUsername, lookupCache, logger)
		logger.Info("Reverse geocoding enabled")
	}

	h := hub.New(logger)
	deps.Broadcaster = h
	registry := guessgame.NewRegistry(guessgame.RegistryConfig{
		Deps:        deps,
		Items:       items,
		RoundLength: cfg.RoundLength,
	})

	gs := handlers.NewGameServer(registry, h, logger, cfg.AllowedOrigins)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(gs, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down with %d live games", registry.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	registry.Close()
}

// itemSource picks Postgres when DATABASE_URL is set and the reports file otherwise.
func itemSource(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (guessgame.ItemSource, func()) {
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("database: %v", err)
		}
		logger.Info("Reported items served from Postgres")
		return database.NewReportedItemRepository(pool), pool.Close
	}

	src, err := reports.LoadFile(cfg.ReportsFile)
	if err != nil {
		logger.Fatalf("reports: %v", err)
	}
	logger.Infof("Loaded %d reported items from %s", src.Len(), cfg.ReportsFile)
	return src, func() {}
}
