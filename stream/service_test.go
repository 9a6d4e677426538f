package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/telemetry"
	"github.com/streamforge/backend/testutil"
)

func TestNewStreamKey(t *testing.T) {
	a, err := NewStreamKey()
	if err != nil {
		t.Fatalf("NewStreamKey() error: %v", err)
	}
	if !strings.HasPrefix(a, "sfk_") {
		t.Errorf("key %q missing sfk_ prefix", a)
	}
	b, _ := NewStreamKey()
	if a == b {
		t.Error("two generated keys are identical")
	}
	if len(a) < 20 {
		t.Errorf("key too short: %d chars", len(a))
	}
}

func TestCreateRejectsShortTitle(t *testing.T) {
	svc := NewService(nil, "rtmp://x/live", "http://x/hls")
	if _, err := svc.Create(context.Background(), uuid.Nil, CreateInput{Title: "ab"}); err == nil {
		t.Error("expected error for short title")
	}
}

func TestStreamLifecycleIntegration(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	telemetry.Init()
	ctx := context.Background()
	svc := NewService(dbx, "rtmp://edge:1935/live/", "http://edge:8088/hls/")

	u := testutil.CreateTestUser(t, dbx, db.RoleStreamer)
	st, err := svc.Create(ctx, u.UID, CreateInput{Title: "friday show", Category: "music"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(st.StreamKey, "sfk_") {
		t.Errorf("stream key %q missing prefix", st.StreamKey)
	}
	if st.RTMPURL != "rtmp://edge:1935/live" {
		t.Errorf("rtmp url = %q", st.RTMPURL)
	}
	if !strings.Contains(st.HLSURL, st.SID.String()) {
		t.Errorf("hls url %q does not embed sid (must not embed the key)", st.HLSURL)
	}
	if strings.Contains(st.HLSURL, st.StreamKey) {
		t.Errorf("hls url leaks the publish key: %q", st.HLSURL)
	}

	// Publish auth by key, then go live.
	got, err := svc.AuthenticatePublish(ctx, st.StreamKey)
	if err != nil {
		t.Fatalf("AuthenticatePublish: %v", err)
	}
	if got.SID != st.SID {
		t.Error("publish auth resolved the wrong stream")
	}
	if _, err := svc.AuthenticatePublish(ctx, "sfk_bogus"); err == nil {
		t.Error("expected error for unknown key")
	}

	if err := svc.Start(ctx, st.SID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Duplicate webhook delivery is a no-op.
	if err := svc.Start(ctx, st.SID); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if err := svc.ViewerJoined(ctx, st.SID); err != nil {
		t.Fatalf("ViewerJoined: %v", err)
	}
	if err := svc.ViewerJoined(ctx, st.SID); err != nil {
		t.Fatalf("ViewerJoined: %v", err)
	}
	if err := svc.ViewerLeft(ctx, st.SID); err != nil {
		t.Fatalf("ViewerLeft: %v", err)
	}

	cur, err := db.GetStreamByID(ctx, dbx, st.SID)
	if err != nil {
		t.Fatalf("GetStreamByID: %v", err)
	}
	if !cur.IsLive || cur.CurrentViewers != 1 || cur.TotalViews != 2 || cur.PeakViewers != 2 {
		t.Errorf("state = live:%v viewers:%d views:%d peak:%d, want live 1 2 2",
			cur.IsLive, cur.CurrentViewers, cur.TotalViews, cur.PeakViewers)
	}

	if err := svc.Stop(ctx, st.SID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(ctx, st.SID); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	cur, _ = db.GetStreamByID(ctx, dbx, st.SID)
	if cur.IsLive || cur.CurrentViewers != 0 {
		t.Errorf("stream not offline after Stop: live=%v viewers=%d", cur.IsLive, cur.CurrentViewers)
	}
}
