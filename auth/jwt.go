package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers malformed, mis-signed, and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT payload: account identity plus the refresh discriminator.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Refresh  bool   `json:"refresh"`
	jwt.RegisteredClaims
}

// Identity is the subject a token is issued for.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an Issuer. secret must be non-empty; TTLs of zero fall
// back to 1h access / 48h refresh.
func NewIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 48 * time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// IssueAccess signs a short-lived access token for id.
func (i *Issuer) IssueAccess(id Identity) (string, error) {
	return i.sign(id, false, i.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for id.
func (i *Issuer) IssueRefresh(id Identity) (string, error) {
	return i.sign(id, true, i.refreshTTL)
}

func (i *Issuer) sign(id Identity, refresh bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
		Refresh:  refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   id.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, expiry (with small clock leeway), and issuer,
// and returns the claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithLeeway(10*time.Second), jwt.WithIssuer(i.issuer), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ParseAccess parses a token and rejects refresh tokens.
func (i *Issuer) ParseAccess(tokenString string) (*Claims, error) {
	claims, err := i.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Refresh {
		return nil, fmt.Errorf("%w: refresh token used as access token", ErrWrongTokenType)
	}
	return claims, nil
}

// ParseRefresh parses a token and rejects access tokens.
func (i *Issuer) ParseRefresh(tokenString string) (*Claims, error) {
	claims, err := i.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.Refresh {
		return nil, fmt.Errorf("%w: access token used as refresh token", ErrWrongTokenType)
	}
	return claims, nil
}
