package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/s1natex/todos-api/internal/config"
	"github.com/s1natex/todos-api/internal/middleware"
	"github.com/s1natex/todos-api/internal/telemetry"
	"github.com/s1natex/todos-api/internal/todos"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Level())
	slog.SetDefault(logger) // for third-party packages that use slog

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.TracesExporter, os.Stdout)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing_shutdown_error", slog.String("error", err.Error()))
		}
	}()

	repo, err := todos.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("store_close_error", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(repo, logger, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", slog.String("error", err.Error()))
	}
	return nil
}

// newRouter wires the health endpoint, todo routes, metrics and middleware stack
func newRouter(repo todos.Repository, logger *slog.Logger, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware)

	// Panic recovery sits inside the logger so that 500s are logged.
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Traceparent"},
		ExposedHeaders:   []string{"X-Request-Id", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.NotFound(todos.NotFound)
	r.MethodNotAllowed(todos.MethodNotAllowed)

	// ---- Routes ----

	// Liveness stays outside the rate limiter.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	limiter := middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(limiter))

		r.Handle("/metrics", middleware.MetricsHandler())

		// todo routes (GET/POST /todos, PATCH/DELETE /todos/{id})
		todos.RegisterRoutes(r, repo, logger)
	})

	return r
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
