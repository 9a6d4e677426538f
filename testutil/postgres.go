// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/streamforge/backend/db"
)

// SetupTestDB creates a test database connection and runs migrations.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

var userSeq atomic.Int64

// CreateTestUser inserts a user with the given role. Usernames and emails are
// sequenced so repeated calls within a run never collide.
func CreateTestUser(t *testing.T, dbx *sql.DB, role string) *db.User {
	t.Helper()
	n := userSeq.Add(1)
	u, err := db.CreateUser(context.Background(), dbx, db.NewUser{
		Username:     fmt.Sprintf("testuser%d_%d", os.Getpid(), n),
		Email:        fmt.Sprintf("testuser%d_%d@example.com", os.Getpid(), n),
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		Role:         role,
		IsActive:     true,
		IsVerified:   true,
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}
