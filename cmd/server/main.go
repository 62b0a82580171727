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

	"github.com/jason-s-yu/scoretracker/internal/auth"
	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/jason-s-yu/scoretracker/internal/config"
	"github.com/jason-s-yu/scoretracker/internal/database"
	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/jason-s-yu/scoretracker/internal/handlers"
	"github.com/jason-s-yu/scoretracker/internal/persistence"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ttl, _ := cfg.TokenTTL()
	if cfg.PersistentKeys() {
		if err := auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, ttl); err != nil {
			logger.Fatalf("auth: %v", err)
		}
	} else {
		logger.Warn("JWT key paths not set, table tokens will not survive a restart")
		if err := auth.Init(ttl); err != nil {
			logger.Fatalf("auth: %v", err)
		}
	}

	rules, err := game.ParseRules(cfg.RuleOverrides(), game.DefaultRules())
	if err != nil {
		logger.Fatalf("rules: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := handlers.TableServerOptions{
		SnapshotKey:  cfg.SnapshotKey,
		Rules:        rules,
		Logger:       logger,
		SecureCookie: cfg.IsProduction(),
	}

	// The action queue needs Redis whatever the snapshot backend is.
	var redisClient *cache.Client
	if cfg.SnapshotBackend == config.BackendRedis || cfg.DatabaseURL != "" {
		redisClient, err = cache.Connect(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB, QueueName: cfg.HistorianQueueName})
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		opts.Actions = redisClient
		logger.Infof("publishing game actions to %s", redisClient.QueueName())
	}

	var pgStore *database.PostgresStore
	if cfg.DatabaseURL != "" {
		pool, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		pgStore = database.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		opts.Results = pgStore
	}

	switch cfg.SnapshotBackend {
	case config.BackendRedis:
		opts.KV = redisClient
	case config.BackendSQLite:
		store, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("sqlite: %v", err)
		}
		defer store.Close()
		opts.KV = store
	case config.BackendPostgres:
		opts.KV = pgStore
	default:
		opts.KV = persistence.NewMemoryStore()
	}
	logger.Infof("snapshot backend: %s", cfg.SnapshotBackend)

	origins := cfg.AllowedOrigins
	if !cfg.IsProduction() {
		// accept any origin outside production
		origins = nil
	}
	srv := handlers.NewTableServer(opts)
	go srv.RunJanitor(ctx, cfg.TableIdleTimeout)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(srv, handlers.RouterOptions{AllowedOrigins: origins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
