// cmd/historian/main.go pops finished guess game rounds from Redis and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/bikelane/internal/cache"
	"github.com/jason-s-yu/bikelane/internal/config"
	"github.com/jason-s-yu/bikelane/internal/database"
	"github.com/jason-s-yu/bikelane/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Fatal("historian needs both DATABASE_URL and REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("database: %v", err)
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.NewService(
		cache.NewRoundQueue(rdb, cfg.Historian.QueueName),
		database.NewRoundResultRepository(pool),
		historian.Config{
			BatchSize:     cfg.Historian.BatchSize,
			FlushInterval: cfg.Historian.FlushInterval,
		},
		logger,
	)
	svc.Run(ctx)
	logger.Info("Historian shutdown complete.")
}
