package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestEnsureSuperuserIdempotent(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	suffix := uuid.New().String()[:8]
	spec := SuperuserSpec{
		Username:     "admin_" + suffix,
		Email:        "admin_" + suffix + "@example.com",
		PasswordHash: "hashed",
	}
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(ctx, `DELETE FROM users WHERE username=$1`, spec.Username)
	})

	if err := EnsureSuperuser(ctx, dbx, spec); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	// Second run against the already-seeded database must succeed with no
	// duplicated effect.
	if err := EnsureSuperuser(ctx, dbx, spec); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var count int
	if err := dbx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username=$1`, spec.Username).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("superuser rows = %d, want 1", count)
	}

	u, err := GetUserByLogin(ctx, dbx, spec.Email)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Role != RoleAdmin || !u.IsActive || !u.IsVerified {
		t.Errorf("superuser not admin/active/verified: role=%s active=%v verified=%v", u.Role, u.IsActive, u.IsVerified)
	}
}

func TestEnsureSuperuserIncompleteSpec(t *testing.T) {
	if err := EnsureSuperuser(context.Background(), nil, SuperuserSpec{Username: "admin"}); err == nil {
		t.Error("expected error for incomplete spec")
	}
}
