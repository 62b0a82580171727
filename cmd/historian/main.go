// cmd/historian/main.go drains the game action queue from Redis into Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/jason-s-yu/scoretracker/internal/config"
	"github.com/jason-s-yu/scoretracker/internal/database"
	"github.com/jason-s-yu/scoretracker/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	store := database.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalf("postgres: %v", err)
	}

	client, err := cache.Connect(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB, QueueName: cfg.HistorianQueueName})
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer client.Close()

	svc := historian.New(client.Redis(), store, historian.Options{
		QueueName:     cfg.HistorianQueueName,
		BatchSize:     cfg.HistorianBatchSize,
		FlushInterval: cfg.FlushInterval(),
		Inactivity:    cfg.InactivityTimeout,
	}, logger)
	svc.Run(ctx)
}
