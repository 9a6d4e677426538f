// Package stream implements broadcast lifecycle: stream provisioning with
// publish keys and edge URLs, live state transitions driven by the RTMP
// webhooks, and viewer accounting.
package stream

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/streamforge/backend/crypto"
	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/telemetry"
)

// keyPrefix marks streamforge publish keys so they are recognizable in
// operator logs without revealing entropy.
const keyPrefix = "sfk_"

// NewStreamKey generates a publish key: sfk_ plus 32 bytes of url-safe entropy.
func NewStreamKey() (string, error) {
	secret, err := crypto.NewSecret(32)
	if err != nil {
		return "", err
	}
	return keyPrefix + secret, nil
}

// Service coordinates stream state between the database, the RTMP edge, and
// the metrics registry.
type Service struct {
	DB          *sql.DB
	RTMPBaseURL string
	HLSBaseURL  string
}

// NewService creates a stream service.
func NewService(dbx *sql.DB, rtmpBaseURL, hlsBaseURL string) *Service {
	return &Service{DB: dbx, RTMPBaseURL: rtmpBaseURL, HLSBaseURL: hlsBaseURL}
}

// CreateInput is the caller-provided stream metadata.
type CreateInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	ThumbnailURL string `json:"thumbnail_url"`
	IsPrivate    bool   `json:"is_private"`
}

// Create provisions a stream for a user: fresh publish key, RTMP ingest URL,
// and an HLS playback URL keyed by the stream id (never by the publish key).
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*db.Stream, error) {
	if len(strings.TrimSpace(in.Title)) < 3 {
		return nil, fmt.Errorf("title must be at least 3 characters")
	}
	key, err := NewStreamKey()
	if err != nil {
		return nil, fmt.Errorf("generate stream key: %w", err)
	}
	sid := uuid.New()
	created, err := db.CreateStream(ctx, s.DB, db.NewStream{
		SID:          sid,
		UserID:       userID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Category:     in.Category,
		ThumbnailURL: in.ThumbnailURL,
		StreamKey:    key,
		RTMPURL:      strings.TrimRight(s.RTMPBaseURL, "/"),
		HLSURL:       fmt.Sprintf("%s/%s/index.m3u8", strings.TrimRight(s.HLSBaseURL, "/"), sid),
		IsPrivate:    in.IsPrivate,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("stream created", slog.String("sid", created.SID.String()), slog.String("user", userID.String()), slog.String("component", "stream"))
	return created, nil
}

// AuthenticatePublish validates a publish key from the RTMP edge and returns
// the stream it unlocks.
func (s *Service) AuthenticatePublish(ctx context.Context, key string) (*db.Stream, error) {
	st, err := db.GetStreamByKey(ctx, s.DB, key)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Start marks a stream live and resets per-session counters. No-op when the
// stream is already live (duplicate webhook deliveries).
func (s *Service) Start(ctx context.Context, sid uuid.UUID) error {
	st, err := db.GetStreamByID(ctx, s.DB, sid)
	if err != nil {
		return err
	}
	if st.IsLive {
		return nil
	}
	if err := db.SetStreamLive(ctx, s.DB, sid); err != nil {
		return err
	}
	telemetry.StreamsStarted.Inc()
	if telemetry.LiveStreamsGauge != nil {
		telemetry.LiveStreamsGauge.Inc()
	}
	slog.Info("stream started", slog.String("sid", sid.String()), slog.String("component", "stream"))
	return nil
}

// Stop marks a stream ended. No-op when the stream is not live.
func (s *Service) Stop(ctx context.Context, sid uuid.UUID) error {
	st, err := db.GetStreamByID(ctx, s.DB, sid)
	if err != nil {
		return err
	}
	if !st.IsLive {
		return nil
	}
	// Fold the session's viewers out of the global gauge before reset.
	telemetry.AddViewers(-st.CurrentViewers)
	if err := db.SetStreamOffline(ctx, s.DB, sid); err != nil {
		return err
	}
	telemetry.StreamsEnded.Inc()
	if telemetry.LiveStreamsGauge != nil {
		telemetry.LiveStreamsGauge.Dec()
	}
	slog.Info("stream ended", slog.String("sid", sid.String()), slog.String("component", "stream"))
	return nil
}

// ViewerJoined counts a play event: live viewer +1, lifetime views +1.
func (s *Service) ViewerJoined(ctx context.Context, sid uuid.UUID) error {
	if _, err := db.AdjustViewers(ctx, s.DB, sid, 1); err != nil {
		return err
	}
	if err := db.IncrementTotalViews(ctx, s.DB, sid); err != nil {
		return err
	}
	telemetry.AddViewers(1)
	if telemetry.ViewsTotal != nil {
		telemetry.ViewsTotal.Inc()
	}
	return nil
}

// ViewerLeft counts a play_done event; the stored count never goes negative.
func (s *Service) ViewerLeft(ctx context.Context, sid uuid.UUID) error {
	if _, err := db.AdjustViewers(ctx, s.DB, sid, -1); err != nil {
		return err
	}
	telemetry.AddViewers(-1)
	return nil
}
