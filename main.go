// Command backend is the main entrypoint for the streamforge API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: revoked-token purging and the live-streams
//     gauge refresher.
//   - Exposes the HTTP API: health probes, auth, streams, RTMP webhooks,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/config"
	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/server"
	"github.com/streamforge/backend/stream"
	"github.com/streamforge/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	setupLogging()

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateAuthReady(); err != nil {
		slog.Error("auth configuration invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing(cfg.AppName, "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Dual-system migrations: versioned files (golang-migrate) first, with the
	// embedded SQL schema as fallback for deployments without a migrations dir.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Session plumbing: token issuer plus a revocation blocklist. Redis when
	// configured, Postgres otherwise.
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		slog.Error("failed to create token issuer", slog.Any("err", err))
		os.Exit(1)
	}
	var blocklist auth.Blocklist
	if cfg.RedisURL != "" {
		rbl, err := auth.NewRedisBlocklist(context.Background(), cfg.RedisURL)
		if err != nil {
			slog.Warn("redis blocklist unavailable, falling back to postgres", slog.Any("err", err))
			blocklist = &db.BlocklistAdapter{DB: database}
		} else {
			defer rbl.Close()
			blocklist = rbl
		}
	} else {
		blocklist = &db.BlocklistAdapter{DB: database}
	}

	streams := stream.NewService(database, cfg.RTMPBaseURL, cfg.HLSBaseURL)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go startRevocationPurgeJob(ctx, database)
	go startLiveGaugeJob(ctx, database)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, database, cfg, issuer, blocklist, streams); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// startRevocationPurgeJob deletes expired revoked-token rows hourly so the
// Postgres blocklist fallback stays small.
func startRevocationPurgeJob(ctx context.Context, database *sql.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpiredRevocations(ctx, database)
			if err != nil {
				slog.Warn("revocation purge failed", slog.Any("err", err), slog.String("component", "jobs"))
			} else if n > 0 {
				slog.Debug("purged expired revocations", slog.Int64("rows", n), slog.String("component", "jobs"))
			}
		}
	}
}

// startLiveGaugeJob reconciles the live-streams gauge against the database
// once a minute. Webhook increments drift when the process restarts mid-broadcast.
func startLiveGaugeJob(ctx context.Context, database *sql.DB) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var live int
			if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM streams WHERE is_live`).Scan(&live); err != nil {
				slog.Warn("live gauge refresh failed", slog.Any("err", err), slog.String("component", "jobs"))
				continue
			}
			telemetry.SetLiveStreams(live)
		}
	}
}
