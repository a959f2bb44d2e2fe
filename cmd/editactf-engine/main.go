package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/editactf/engine/internal/api"
	"github.com/editactf/engine/internal/auth"
	"github.com/editactf/engine/internal/catalog"
	"github.com/editactf/engine/internal/cleanup"
	"github.com/editactf/engine/internal/config"
	"github.com/editactf/engine/internal/ctf"
	"github.com/editactf/engine/internal/ratelimit"
	"github.com/editactf/engine/internal/scoring"
	"github.com/editactf/engine/internal/shell"
	"github.com/editactf/engine/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting editactf-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Optional Redis: distributed rate limiting and persistent terminal
	// history. Without it both fall back to in-process state.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(initCtx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("redis connected successfully", "address", cfg.Redis.Address)
	}

	var limiter ratelimit.Limiter
	var history shell.HistoryStore
	var memLimiter *ratelimit.Memory
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, cfg.RateLimit.MaxSubmissions, cfg.RateLimit.Window)
		history = shell.NewRedisHistoryStore(redisClient)
	} else {
		memLimiter = ratelimit.NewMemory(cfg.RateLimit.MaxSubmissions, cfg.RateLimit.Window)
		limiter = memLimiter
		history = shell.NewMemoryHistoryStore()
	}

	// Load challenge catalog
	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", cfg.Catalog.Dir, "error", err)
	}
	if loader.Len() == 0 {
		slog.Warn("no challenges loaded", "dir", cfg.Catalog.Dir)
	}

	// Wire the engine
	accounts := auth.NewService(repo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	engine := scoring.NewEngine(repo, repo, loader, limiter, slog.Default())
	service := ctf.NewService(cfg.Catalog.Dir, loader, repo, engine, accounts, slog.Default())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker for in-process rate-limit windows
	if memLimiter != nil {
		cleaner := cleanup.NewCleaner(cfg.Cleanup.Interval, memLimiter)
		cleaner.Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, service, repo, history)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("editactf-engine stopped")
}
