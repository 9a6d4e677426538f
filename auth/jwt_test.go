package auth

import (
	"errors"
	"testing"
	"time"
)

func testIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-secret", "streamforge", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	return iss
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", "streamforge", 0, 0); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	iss := testIssuer(t)
	id := Identity{UserID: "u-1", Username: "alice", Role: "streamer"}
	token, err := iss.IssueAccess(id)
	if err != nil {
		t.Fatalf("IssueAccess() error: %v", err)
	}
	claims, err := iss.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess() error: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" || claims.Role != "streamer" {
		t.Errorf("claims = %+v, want identity round-tripped", claims)
	}
	if claims.Refresh {
		t.Error("access token marked refresh")
	}
	if claims.ID == "" {
		t.Error("missing jti")
	}
}

func TestRefreshTokenTypeChecks(t *testing.T) {
	iss := testIssuer(t)
	id := Identity{UserID: "u-1", Username: "alice", Role: "viewer"}

	refresh, err := iss.IssueRefresh(id)
	if err != nil {
		t.Fatalf("IssueRefresh() error: %v", err)
	}
	if _, err := iss.ParseRefresh(refresh); err != nil {
		t.Errorf("ParseRefresh(refresh) error: %v", err)
	}
	if _, err := iss.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("ParseAccess(refresh) error = %v, want ErrWrongTokenType", err)
	}

	access, _ := iss.IssueAccess(id)
	if _, err := iss.ParseRefresh(access); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("ParseRefresh(access) error = %v, want ErrWrongTokenType", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	iss := testIssuer(t)
	other, _ := NewIssuer("other-secret", "streamforge", time.Minute, time.Hour)
	token, _ := iss.IssueAccess(Identity{UserID: "u-1"})
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	iss := testIssuer(t)
	other, _ := NewIssuer("test-secret", "someone-else", time.Minute, time.Hour)
	token, _ := other.IssueAccess(Identity{UserID: "u-1"})
	if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse with wrong issuer error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	iss := testIssuer(t)
	// Sign with a negative TTL so the token is already past expiry (and past
	// the 10s parse leeway).
	token, err := iss.sign(Identity{UserID: "u-1"}, false, -time.Minute)
	if err != nil {
		t.Fatalf("sign() error: %v", err)
	}
	if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse(expired) error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	iss := testIssuer(t)
	if _, err := iss.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse(garbage) error = %v, want ErrInvalidToken", err)
	}
}
