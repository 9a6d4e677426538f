package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// User roles, in ascending order of privilege for moderation purposes.
const (
	RoleViewer    = "viewer"
	RoleStreamer  = "streamer"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique constraint violations (duplicate username/email).
	ErrConflict = errors.New("already exists")
)

// ValidRole reports whether s is a known user role.
func ValidRole(s string) bool {
	switch s {
	case RoleViewer, RoleStreamer, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// User is a platform account row.
type User struct {
	UID             uuid.UUID `json:"uid"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	PasswordHash    string    `json:"-"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"is_active"`
	IsVerified      bool      `json:"is_verified"`
	ActivationToken string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// NewUser carries the fields needed to insert a user. PasswordHash must
// already be hashed by the auth package.
type NewUser struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	PasswordHash    string
	Role            string
	ActivationToken string
	IsActive        bool
	IsVerified      bool
}

const userColumns = `uid, username, email, COALESCE(first_name,''), COALESCE(last_name,''), password_hash, role,
	is_active, is_verified, COALESCE(activation_token,''), created_at, COALESCE(updated_at, created_at)`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.UID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsVerified, &u.ActivationToken, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a new account and returns the stored row.
// Returns ErrConflict when the username or email is taken.
func CreateUser(ctx context.Context, dbx *sql.DB, in NewUser) (*User, error) {
	if in.Role == "" {
		in.Role = RoleViewer
	}
	if !ValidRole(in.Role) {
		return nil, fmt.Errorf("invalid role %q", in.Role)
	}
	uid := uuid.New()
	row := dbx.QueryRowContext(ctx, `
		INSERT INTO users (uid, username, email, first_name, last_name, password_hash, role, is_active, is_verified, activation_token)
		VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9,NULLIF($10,''))
		RETURNING `+userColumns,
		uid, in.Username, in.Email, in.FirstName, in.LastName, in.PasswordHash, in.Role, in.IsActive, in.IsVerified, in.ActivationToken)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", in.Username, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID fetches a user by uid.
func GetUserByID(ctx context.Context, dbx *sql.DB, uid uuid.UUID) (*User, error) {
	row := dbx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid=$1`, uid)
	return scanUser(row)
}

// GetUserByLogin fetches a user by username or email, for authentication.
func GetUserByLogin(ctx context.Context, dbx *sql.DB, login string) (*User, error) {
	row := dbx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1 OR email=$1`, login)
	return scanUser(row)
}

// GetUserByActivationToken fetches the user holding an activation token.
func GetUserByActivationToken(ctx context.Context, dbx *sql.DB, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	row := dbx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE activation_token=$1`, token)
	return scanUser(row)
}

// UserExists reports whether a row with the given username or email exists.
func UserExists(ctx context.Context, dbx *sql.DB, username, email string) (bool, error) {
	var one int
	err := dbx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1 OR email=$2 LIMIT 1`, username, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetUserVerified marks an account verified (and clears its activation token).
func SetUserVerified(ctx context.Context, dbx *sql.DB, uid uuid.UUID) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE users SET is_verified=TRUE, activation_token=NULL, updated_at=NOW() WHERE uid=$1`, uid)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetUserActive toggles the active flag on an account.
func SetUserActive(ctx context.Context, dbx *sql.DB, uid uuid.UUID, active bool) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE users SET is_active=$2, updated_at=NOW() WHERE uid=$1`, uid, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetUserRole changes an account's role. Admin-only at the API layer.
func SetUserRole(ctx context.Context, dbx *sql.DB, uid uuid.UUID, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	res, err := dbx.ExecContext(ctx,
		`UPDATE users SET role=$2, updated_at=NOW() WHERE uid=$1`, uid, role)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListUsers returns accounts ordered by creation time, newest first.
func ListUsers(ctx context.Context, dbx *sql.DB, limit, offset int) ([]User, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
