package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/briankwest/imglink/internal/adapter/httpserver"
	"github.com/briankwest/imglink/internal/adapter/metrics"
	"github.com/briankwest/imglink/internal/adapter/postgres"
	"github.com/briankwest/imglink/internal/adapter/redis"
	"github.com/briankwest/imglink/internal/auth"
	"github.com/briankwest/imglink/internal/platform/config"
	"github.com/briankwest/imglink/internal/platform/logging"
	"github.com/briankwest/imglink/internal/realtime"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: redisClient.Ping},
	}
}

func runGracefulShutdown(srv *httpserver.Server, heartbeat *realtime.HeartbeatMonitor, registry *realtime.Registry) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		heartbeat.Stop()
		registry.Close()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	presence := redis.NewPresenceStore(redisClient)
	notificationRepo := postgres.NewNotificationRepo(pool)
	commentRepo := postgres.NewCommentRepo(pool)

	promRegistry := metrics.NewRegistry()
	realtimeMetrics := metrics.NewRealtimeMetrics(promRegistry)

	// Presence callbacks fire on a user's first connection and last
	// disconnect. A presence store failure must not take down the
	// registry, so errors are logged and dropped.
	registry := realtime.NewRegistry(realtime.RegistryConfig{
		Clock:          clock,
		SendBufferSize: cfg.SendBufferSize,
		MaxConnections: cfg.MaxWebSocketConnections,
		Metrics:        realtimeMetrics,
		OnUserOnline: func(userID int64) {
			if err := presence.SetOnline(context.Background(), userID); err != nil {
				slog.Error("Failed to mark user online", "user_id", userID, "error", err)
			}
		},
		OnUserOffline: func(userID int64) {
			if err := presence.SetOffline(context.Background(), userID); err != nil {
				slog.Error("Failed to mark user offline", "user_id", userID, "error", err)
			}
		},
	})

	dispatcher := realtime.NewDispatcher(registry, realtimeMetrics)

	heartbeat := realtime.NewHeartbeatMonitor(registry, clock, cfg.HeartbeatInterval, realtimeMetrics)
	heartbeat.Start()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gateway := realtime.NewGateway(registry, verifier, notificationRepo, presence, realtimeMetrics)

	srv := httpserver.NewServer(
		cfg,
		notificationRepo,
		commentRepo,
		dispatcher,
		verifier,
		gateway.Handle,
		metrics.Handler(promRegistry),
		healthChecks(pool, redisClient),
	)

	done := runGracefulShutdown(srv, heartbeat, registry)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
