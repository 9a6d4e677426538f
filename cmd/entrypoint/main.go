// Command entrypoint is the container init shim. It waits for Postgres to
// accept connections, runs migrations and the superuser seed when launching
// the application server, then replaces itself with the workload command.
//
// Usage:
//
//	entrypoint <command> [args...]
//
// The startup role comes from SERVICE_ROLE (application|auxiliary). When
// unset, the role is derived from the command: APP_COMMAND (default
// "backend") marks the application server; everything else is auxiliary and
// skips migrations and seeding.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/bootstrap"
	"github.com/streamforge/backend/config"
	"github.com/streamforge/backend/db"
)

func main() {
	_ = godotenv.Load(".env")

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	argv := os.Args[1:]
	if len(argv) == 0 {
		slog.Error("no command given", slog.String("usage", "entrypoint <command> [args...]"))
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	role := resolveRole(argv)
	depAddr := dependencyAddr(cfg.DBDsn)

	orch := &bootstrap.Orchestrator{
		Migrate: func(ctx context.Context) error { return runMigrations(ctx) },
		Seed:    func(ctx context.Context) error { return runSeed(ctx, cfg) },
		Exec:    bootstrap.ExecWorkload,
		MaxWait: maxWait(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting",
		slog.String("role", string(role)),
		slog.String("dependency", depAddr),
		slog.String("command", argv[0]))

	if err := orch.Run(ctx, role, depAddr, argv); err != nil {
		if errors.Is(err, bootstrap.ErrDependencyUnreachable) {
			slog.Error("dependency never became reachable", slog.Any("err", err))
		} else {
			slog.Error("startup failed", slog.Any("err", err))
		}
		os.Exit(1)
	}
}

// resolveRole prefers the explicit SERVICE_ROLE variable and falls back to
// command sniffing for older compose files.
func resolveRole(argv []string) bootstrap.Role {
	switch os.Getenv("SERVICE_ROLE") {
	case string(bootstrap.RoleApplication):
		return bootstrap.RoleApplication
	case string(bootstrap.RoleAuxiliary):
		return bootstrap.RoleAuxiliary
	case "":
	default:
		slog.Warn("unknown SERVICE_ROLE, deriving role from command", slog.String("value", os.Getenv("SERVICE_ROLE")))
	}
	appCommand := os.Getenv("APP_COMMAND")
	if appCommand == "" {
		appCommand = "backend"
	}
	return bootstrap.RoleForCommand(appCommand, argv)
}

// dependencyAddr extracts host:port from the database DSN. The wait probes
// raw TCP, not the Postgres protocol.
func dependencyAddr(dsn string) string {
	if addr := os.Getenv("DEPENDENCY_ADDR"); addr != "" {
		return addr
	}
	if u, err := url.Parse(dsn); err == nil && u.Host != "" {
		host := u.Host
		if u.Port() == "" {
			host += ":5432"
		}
		return host
	}
	return "postgres:5432"
}

// maxWait reads DEPENDENCY_MAX_WAIT as a Go duration. Zero waits forever.
func maxWait() time.Duration {
	v := os.Getenv("DEPENDENCY_MAX_WAIT")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid DEPENDENCY_MAX_WAIT, waiting forever", slog.String("value", v))
		return 0
	}
	return d
}

// runMigrations opens a short-lived connection and applies the schema, with
// the embedded SQL as fallback when no migrations directory ships in the image.
func runMigrations(ctx context.Context) error {
	database, err := db.Connect()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		return db.Migrate(ctx, database)
	}
	return nil
}

// runSeed ensures the superuser account exists. Missing seed credentials skip
// the step; a configured seed that fails aborts startup.
func runSeed(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateSeedReady(); err != nil {
		slog.Warn("superuser seed skipped", slog.Any("reason", err))
		return nil
	}
	hash, err := auth.HashPassword(cfg.SuperuserPassword)
	if err != nil {
		return err
	}
	database, err := db.Connect()
	if err != nil {
		return err
	}
	defer database.Close()
	return db.EnsureSuperuser(ctx, database, db.SuperuserSpec{
		Username:     cfg.SuperuserUsername,
		Email:        cfg.SuperuserEmail,
		PasswordHash: hash,
	})
}
