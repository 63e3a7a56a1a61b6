package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
	"github.com/unfoldingWord/bt-servant-web-client/internal/config"
	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/ratelimit"
	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
	"github.com/unfoldingWord/bt-servant-web-client/internal/telemetry"
	"github.com/unfoldingWord/bt-servant-web-client/internal/web"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()
	slog.SetDefault(buildLogger(cfg.Telemetry))

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (server will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (session cache and rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Stream registry with background staleness sweeper
	registry := relay.NewRegistry()
	registry.OnSweep = func(n int) { metrics.StaleEntriesSwept.Add(float64(n)) }
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go registry.Run(sweepCtx, cfg.Relay.SweepInterval, cfg.Relay.StaleAfter)
	engineClient := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey, cfg.Engine.ClientID, cfg.Engine.ChatTimeout)
	loader.OnReload(func() {
		logger.Info("configuration reloaded")
	})

	sessionStore := auth.NewCachedSessionStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)
	handler := web.NewHandler(registry, engineClient, loader.Config, metrics)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes. The progress callback authenticates the engine
	// by shared secret inside the handler, not by browser session.
	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/progress-callback", handler.ProgressCallback)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessionStore))
		if cfg.RateLimit.Enabled {
			r.Use(ratelimit.Middleware(limiter, cfg.RateLimit.RequestsPerMinute, metrics))
		}
		r.Post("/api/chat/stream", handler.ChatStream)
		r.Post("/api/chat", handler.Chat)
		r.Get("/api/chat/history", handler.History)
		r.Get("/api/preferences", handler.GetPreferences)
		r.Put("/api/preferences", handler.UpdatePreferences)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout must exceed the engine chat ceiling or open SSE
		// streams get cut off mid-request.
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("web client starting", "addr", addr, "version", version, "engine", cfg.Engine.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("web client stopped")
}

func buildLogger(cfg config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
