package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dbx
}

func TestMigrateIdempotency(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	// Second run against a migrated schema must be a clean no-op.
	if err := Migrate(ctx, dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, table := range []string{"users", "streams", "revoked_tokens", "kv"} {
		var one int
		q := fmt.Sprintf(`SELECT 1 FROM information_schema.tables WHERE table_name='%s'`, table)
		if err := dbx.QueryRowContext(ctx, q).Scan(&one); err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}
}

func testUser(t *testing.T, dbx *sql.DB, role string) *User {
	t.Helper()
	suffix := uuid.New().String()[:8]
	u, err := CreateUser(context.Background(), dbx, NewUser{
		Username:     "user_" + suffix,
		Email:        "user_" + suffix + "@example.com",
		PasswordHash: "x",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = dbx.ExecContext(context.Background(), `DELETE FROM users WHERE uid=$1`, u.UID)
	})
	return u
}

func TestCreateUserConflict(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, dbx, RoleViewer)
	_, err := CreateUser(ctx, dbx, NewUser{Username: u.Username, Email: "other@example.com", PasswordHash: "x"})
	if err == nil {
		t.Fatal("expected conflict on duplicate username")
	}
}

func TestUserLookupAndFlags(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, dbx, RoleStreamer)

	byLogin, err := GetUserByLogin(ctx, dbx, u.Email)
	if err != nil {
		t.Fatalf("GetUserByLogin(email): %v", err)
	}
	if byLogin.UID != u.UID {
		t.Errorf("lookup by email returned wrong user")
	}

	if err := SetUserVerified(ctx, dbx, u.UID); err != nil {
		t.Fatalf("SetUserVerified: %v", err)
	}
	if err := SetUserActive(ctx, dbx, u.UID, true); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	got, err := GetUserByID(ctx, dbx, u.UID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.IsVerified || !got.IsActive {
		t.Errorf("flags not persisted: verified=%v active=%v", got.IsVerified, got.IsActive)
	}
	if got.ActivationToken != "" {
		t.Errorf("activation token not cleared on verify")
	}
}

func TestStreamLifecycle(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, dbx, RoleStreamer)

	s, err := CreateStream(ctx, dbx, NewStream{
		UserID:    u.UID,
		Title:     "test stream",
		StreamKey: "sk_test_" + uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}

	byKey, err := GetStreamByKey(ctx, dbx, s.StreamKey)
	if err != nil {
		t.Fatalf("GetStreamByKey: %v", err)
	}
	if byKey.SID != s.SID {
		t.Errorf("key lookup returned wrong stream")
	}

	if err := SetStreamLive(ctx, dbx, s.SID); err != nil {
		t.Fatalf("SetStreamLive: %v", err)
	}
	live, err := ListLiveStreams(ctx, dbx, 50, 0)
	if err != nil {
		t.Fatalf("ListLiveStreams: %v", err)
	}
	found := false
	for _, l := range live {
		if l.SID == s.SID {
			found = true
		}
	}
	if !found {
		t.Error("live stream not listed")
	}

	// Viewer accounting: two joins then a leave, peak stays at the max.
	if n, err := AdjustViewers(ctx, dbx, s.SID, 1); err != nil || n != 1 {
		t.Fatalf("AdjustViewers(+1) = %d, %v", n, err)
	}
	if n, err := AdjustViewers(ctx, dbx, s.SID, 1); err != nil || n != 2 {
		t.Fatalf("AdjustViewers(+1) = %d, %v", n, err)
	}
	if n, err := AdjustViewers(ctx, dbx, s.SID, -1); err != nil || n != 1 {
		t.Fatalf("AdjustViewers(-1) = %d, %v", n, err)
	}
	got, err := GetStreamByID(ctx, dbx, s.SID)
	if err != nil {
		t.Fatalf("GetStreamByID: %v", err)
	}
	if got.PeakViewers != 2 {
		t.Errorf("peak viewers = %d, want 2", got.PeakViewers)
	}

	if err := SetStreamOffline(ctx, dbx, s.SID); err != nil {
		t.Fatalf("SetStreamOffline: %v", err)
	}
	got, _ = GetStreamByID(ctx, dbx, s.SID)
	if got.IsLive || got.CurrentViewers != 0 {
		t.Errorf("stream not reset offline: live=%v viewers=%d", got.IsLive, got.CurrentViewers)
	}
	if got.EndedAt == nil {
		t.Error("ended_at not set")
	}
}

func TestAdjustViewersNeverNegative(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	u := testUser(t, dbx, RoleStreamer)
	s, err := CreateStream(ctx, dbx, NewStream{UserID: u.UID, Title: "t", StreamKey: "sk_" + uuid.New().String()})
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if n, err := AdjustViewers(ctx, dbx, s.SID, -5); err != nil || n != 0 {
		t.Errorf("AdjustViewers(-5) = %d, %v, want 0", n, err)
	}
}

func TestRevokedTokens(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	jti := uuid.New().String()

	revoked, err := IsTokenRevoked(ctx, dbx, jti)
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if revoked {
		t.Error("fresh jti reported revoked")
	}

	exp := sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
	if err := RevokeToken(ctx, dbx, jti, exp); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	// Revoking twice is a no-op, not an error.
	if err := RevokeToken(ctx, dbx, jti, exp); err != nil {
		t.Fatalf("second RevokeToken: %v", err)
	}
	revoked, err = IsTokenRevoked(ctx, dbx, jti)
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if !revoked {
		t.Error("revoked jti not reported")
	}
	if _, err := PurgeExpiredRevocations(ctx, dbx); err != nil {
		t.Fatalf("PurgeExpiredRevocations: %v", err)
	}
}
