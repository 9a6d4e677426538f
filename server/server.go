package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/config"
	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/stream"
	"github.com/streamforge/backend/telemetry"
)

// NewMux returns the HTTP handler with all routes.
// The provided context is used for rate limiter cleanup goroutines lifecycle.
func NewMux(ctx context.Context, dbx *sql.DB, cfg *config.Config, issuer *auth.Issuer, blocklist auth.Blocklist, streams *stream.Service) http.Handler {
	rateLimiterCfg := loadRateLimiterConfig()
	corsCfg := loadCORSConfig()

	// Redis-backed limiter when requested so limits hold across replicas;
	// memory otherwise.
	var rateLimiter RateLimiter
	if os.Getenv("RATE_LIMIT_BACKEND") == "redis" && cfg.RedisURL != "" {
		slog.Info("initializing distributed rate limiter", slog.String("backend", "redis"))
		redisLimiter, err := newRedisRateLimiter(ctx, cfg.RedisURL, rateLimiterCfg)
		if err != nil {
			slog.Error("failed to create redis rate limiter, falling back to memory", slog.Any("error", err))
			rateLimiter = newIPRateLimiter(ctx, rateLimiterCfg)
		} else {
			rateLimiter = redisLimiter
		}
	} else {
		slog.Info("initializing in-memory rate limiter", slog.String("backend", "memory"))
		rateLimiter = newIPRateLimiter(ctx, rateLimiterCfg)
	}

	handlers := NewHandlers(dbx, cfg, issuer, blocklist, streams)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health, readiness, and status endpoints
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)

	// Session endpoints
	mux.HandleFunc("/auth/register", handlers.HandleRegister)
	mux.HandleFunc("/auth/activate", handlers.HandleActivate)
	mux.HandleFunc("/auth/login", handlers.HandleLogin)
	mux.HandleFunc("/auth/refresh", handlers.HandleRefresh)
	mux.HandleFunc("/auth/logout", handlers.requireAuth(handlers.HandleLogout))

	// Account endpoints
	mux.HandleFunc("/users/me", handlers.requireAuth(handlers.HandleMe))
	mux.HandleFunc("/users", handlers.requireRole(db.RoleAdmin, handlers.HandleUsersList))
	mux.HandleFunc("/users/", handlers.requireRole(db.RoleAdmin, handlers.HandleUsersDispatcher))

	// Stream endpoints
	mux.HandleFunc("/streams", handlers.HandleStreams)
	mux.HandleFunc("/streams/mine", handlers.requireAuth(handlers.HandleMyStreams))
	mux.HandleFunc("/streams/", handlers.HandleStreamsDispatcher)

	// RTMP edge webhooks
	mux.HandleFunc("/hooks/publish", handlers.HandleHookPublish)
	mux.HandleFunc("/hooks/publish_done", handlers.HandleHookPublishDone)
	// nginx-rtmp fires on_done for every disconnect; treat it like publish_done.
	mux.HandleFunc("/hooks/done", handlers.HandleHookPublishDone)
	mux.HandleFunc("/hooks/play", handlers.HandleHookPlay)
	mux.HandleFunc("/hooks/play_done", handlers.HandleHookPlayDone)

	// Rate limit the credential endpoints; everything else passes through.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth/") {
			rateLimitMiddleware(mux, rateLimiter).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		start := time.Now()
		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, r.WithContext(ctx))
		if telemetry.RequestDuration != nil {
			telemetry.RequestDuration.Observe(time.Since(start).Seconds())
		}

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, dbx *sql.DB, cfg *config.Config, issuer *auth.Issuer, blocklist auth.Blocklist, streams *stream.Service) error {
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewMux(ctx, dbx, cfg, issuer, blocklist, streams),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
