package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamforge/backend/crypto"
)

// Stream is a channel's broadcast configuration and live state.
// StreamKey is the publish credential; it never appears in public responses.
type Stream struct {
	SID            uuid.UUID  `json:"sid"`
	UserID         uuid.UUID  `json:"user_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"category,omitempty"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty"`
	StreamKey      string     `json:"-"`
	RTMPURL        string     `json:"rtmp_url,omitempty"`
	HLSURL         string     `json:"hls_url,omitempty"`
	IsLive         bool       `json:"is_live"`
	IsPrivate      bool       `json:"is_private"`
	CurrentViewers int        `json:"current_viewers"`
	TotalViews     int64      `json:"total_views"`
	PeakViewers    int        `json:"peak_viewers"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty"`
}

// NewStream carries the fields needed to insert a stream. StreamKey and the
// edge URLs are generated by the stream package. SID may be pre-assigned so
// playback URLs can embed it; zero means generate.
type NewStream struct {
	SID          uuid.UUID
	UserID       uuid.UUID
	Title        string
	Description  string
	Category     string
	ThumbnailURL string
	StreamKey    string
	RTMPURL      string
	HLSURL       string
	IsPrivate    bool
}

const streamColumns = `sid, user_id, title, COALESCE(description,''), COALESCE(category,''), COALESCE(thumbnail_url,''),
	stream_key, key_encryption_version, COALESCE(rtmp_url,''), COALESCE(hls_url,''), is_live, is_private,
	current_viewers, total_views, peak_viewers, started_at, ended_at, created_at, COALESCE(updated_at, created_at)`

func scanStream(row interface{ Scan(...any) error }) (*Stream, error) {
	var s Stream
	var encVersion int
	err := row.Scan(&s.SID, &s.UserID, &s.Title, &s.Description, &s.Category, &s.ThumbnailURL,
		&s.StreamKey, &encVersion, &s.RTMPURL, &s.HLSURL, &s.IsLive, &s.IsPrivate,
		&s.CurrentViewers, &s.TotalViews, &s.PeakViewers, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if encVersion == 1 {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return nil, fmt.Errorf("get encryptor for decryption: %w", encErr)
		}
		if enc == nil {
			return nil, fmt.Errorf("stream key is encrypted but ENCRYPTION_KEY not configured")
		}
		key, decErr := crypto.DecryptString(enc, s.StreamKey)
		if decErr != nil {
			return nil, fmt.Errorf("decrypt stream key: %w", decErr)
		}
		s.StreamKey = key
	}
	return &s, nil
}

// CreateStream inserts a stream row. The key is encrypted at rest when
// ENCRYPTION_KEY is set (key_encryption_version = 1); lookups go through the
// SHA-256 digest in stream_key_hash either way.
func CreateStream(ctx context.Context, dbx *sql.DB, in NewStream) (*Stream, error) {
	enc, err := getEncryptor()
	if err != nil {
		return nil, fmt.Errorf("get encryptor: %w", err)
	}
	keyToStore := in.StreamKey
	encVersion := 0
	if enc != nil {
		encVersion = 1
		keyToStore, err = crypto.EncryptString(enc, in.StreamKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt stream key: %w", err)
		}
	}
	sid := in.SID
	if sid == uuid.Nil {
		sid = uuid.New()
	}
	row := dbx.QueryRowContext(ctx, `
		INSERT INTO streams (sid, user_id, title, description, category, thumbnail_url,
			stream_key, stream_key_hash, key_encryption_version, rtmp_url, hls_url, is_private)
		VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12)
		RETURNING `+streamColumns,
		sid, in.UserID, in.Title, in.Description, in.Category, in.ThumbnailURL,
		keyToStore, hashKey(in.StreamKey), encVersion, in.RTMPURL, in.HLSURL, in.IsPrivate)
	s, err := scanStream(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("stream key collision: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return s, nil
}

// GetStreamByID fetches a stream by sid.
func GetStreamByID(ctx context.Context, dbx *sql.DB, sid uuid.UUID) (*Stream, error) {
	row := dbx.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE sid=$1`, sid)
	return scanStream(row)
}

// GetStreamByKey fetches a stream by its publish key. Used by the RTMP
// webhook handlers to authenticate publishers.
func GetStreamByKey(ctx context.Context, dbx *sql.DB, key string) (*Stream, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	row := dbx.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE stream_key_hash=$1`, hashKey(key))
	return scanStream(row)
}

// ListLiveStreams returns public live streams, most recently started first.
func ListLiveStreams(ctx context.Context, dbx *sql.DB, limit, offset int) ([]Stream, error) {
	rows, err := dbx.QueryContext(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE is_live = TRUE AND is_private = FALSE
		ORDER BY started_at DESC NULLS LAST
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectStreams(rows)
}

// ListStreamsByUser returns all streams owned by a user, newest first.
func ListStreamsByUser(ctx context.Context, dbx *sql.DB, userID uuid.UUID, limit, offset int) ([]Stream, error) {
	rows, err := dbx.QueryContext(ctx, `
		SELECT `+streamColumns+` FROM streams
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectStreams(rows)
}

func collectStreams(rows *sql.Rows) ([]Stream, error) {
	defer rows.Close()
	streams := make([]Stream, 0)
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *s)
	}
	return streams, rows.Err()
}

// StreamUpdate carries optional metadata changes; nil fields are unchanged.
type StreamUpdate struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Category     *string `json:"category"`
	ThumbnailURL *string `json:"thumbnail_url"`
	IsPrivate    *bool   `json:"is_private"`
}

// UpdateStream applies a partial metadata update scoped to the owning user.
func UpdateStream(ctx context.Context, dbx *sql.DB, sid, userID uuid.UUID, up StreamUpdate) (*Stream, error) {
	row := dbx.QueryRowContext(ctx, `
		UPDATE streams SET
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			category = COALESCE($5, category),
			thumbnail_url = COALESCE($6, thumbnail_url),
			is_private = COALESCE($7, is_private),
			updated_at = NOW()
		WHERE sid = $1 AND user_id = $2
		RETURNING `+streamColumns,
		sid, userID, up.Title, up.Description, up.Category, up.ThumbnailURL, up.IsPrivate)
	return scanStream(row)
}

// DeleteStream removes a stream scoped to the owning user.
func DeleteStream(ctx context.Context, dbx *sql.DB, sid, userID uuid.UUID) error {
	res, err := dbx.ExecContext(ctx, `DELETE FROM streams WHERE sid=$1 AND user_id=$2`, sid, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStreamLive marks a stream live and resets the per-session counters.
func SetStreamLive(ctx context.Context, dbx *sql.DB, sid uuid.UUID) error {
	res, err := dbx.ExecContext(ctx, `
		UPDATE streams SET is_live=TRUE, started_at=NOW(), ended_at=NULL, current_viewers=0, updated_at=NOW()
		WHERE sid=$1`, sid)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStreamOffline marks a stream ended.
func SetStreamOffline(ctx context.Context, dbx *sql.DB, sid uuid.UUID) error {
	res, err := dbx.ExecContext(ctx, `
		UPDATE streams SET is_live=FALSE, ended_at=NOW(), current_viewers=0, updated_at=NOW()
		WHERE sid=$1`, sid)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AdjustViewers changes the live viewer count by delta (never below zero) and
// folds the result into peak_viewers. Returns the new count.
func AdjustViewers(ctx context.Context, dbx *sql.DB, sid uuid.UUID, delta int) (int, error) {
	var current int
	err := dbx.QueryRowContext(ctx, `
		UPDATE streams SET
			current_viewers = GREATEST(current_viewers + $2, 0),
			peak_viewers = GREATEST(peak_viewers, GREATEST(current_viewers + $2, 0)),
			updated_at = NOW()
		WHERE sid = $1
		RETURNING current_viewers`, sid, delta).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return current, nil
}

// IncrementTotalViews bumps the lifetime view counter.
func IncrementTotalViews(ctx context.Context, dbx *sql.DB, sid uuid.UUID) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE streams SET total_views = total_views + 1, updated_at=NOW() WHERE sid=$1`, sid)
	if err != nil {
		return err
	}
	return requireRow(res)
}
