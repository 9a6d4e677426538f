// Command seed creates or confirms the superuser account. It is safe to run
// repeatedly; an existing superuser is left untouched.
//
// Environment Variables:
//
//	DB_DSN: Database connection string
//	SUPERUSER_USERNAME, SUPERUSER_EMAIL, SUPERUSER_PASSWORD: account to ensure
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/config"
	"github.com/streamforge/backend/db"
)

func main() {
	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSeedReady(); err != nil {
		slog.Error("seed configuration incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	hash, err := auth.HashPassword(cfg.SuperuserPassword)
	if err != nil {
		slog.Error("failed to hash superuser password", slog.Any("err", err))
		os.Exit(1)
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureSuperuser(ctx, database, db.SuperuserSpec{
		Username:     cfg.SuperuserUsername,
		Email:        cfg.SuperuserEmail,
		PasswordHash: hash,
	}); err != nil {
		slog.Error("superuser seed failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("superuser ensured", slog.String("username", cfg.SuperuserUsername))
}
