package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SuperuserSpec describes the administrator account ensured at startup.
// PasswordHash must already be hashed by the auth package.
type SuperuserSpec struct {
	Username     string
	Email        string
	PasswordHash string
}

// EnsureSuperuser creates the admin account if it does not exist. Safe to run
// on every container start: an existing account (by username or email) makes
// this a no-op, including against a database seeded by a previous deployment.
func EnsureSuperuser(ctx context.Context, dbx *sql.DB, spec SuperuserSpec) error {
	if spec.Username == "" || spec.Email == "" || spec.PasswordHash == "" {
		return fmt.Errorf("superuser spec incomplete: require username, email, password hash")
	}

	exists, err := UserExists(ctx, dbx, spec.Username, spec.Email)
	if err != nil {
		return fmt.Errorf("check superuser: %w", err)
	}
	if exists {
		slog.Info("superuser already present, seed skipped", slog.String("component", "db_seed"), slog.String("username", spec.Username))
		return nil
	}

	_, err = CreateUser(ctx, dbx, NewUser{
		Username:     spec.Username,
		Email:        spec.Email,
		FirstName:    "Admin",
		LastName:     "Admin",
		PasswordHash: spec.PasswordHash,
		Role:         RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
	})
	if err != nil {
		// Lost a race with a concurrent seed run; the account exists, which
		// is the state we wanted.
		if errors.Is(err, ErrConflict) {
			slog.Info("superuser created concurrently, seed skipped", slog.String("component", "db_seed"))
			return nil
		}
		return fmt.Errorf("create superuser: %w", err)
	}

	_, _ = dbx.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES ('seeded_at', NOW()::TEXT, NOW())
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`)
	slog.Info("superuser created", slog.String("component", "db_seed"), slog.String("username", spec.Username))
	return nil
}
