package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{name: "empty key", key: "", wantError: true, errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", wantError: true, errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "key too long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: base64.StdEncoding.EncodeToString(make([]byte, 32))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantError {
				if err == nil {
					t.Fatalf("NewAESEncryptor() expected error but got nil")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESEncryptor() error = %v, want error containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAESEncryptor() error: %v", err)
			}
			if enc == nil {
				t.Error("NewAESEncryptor() returned nil encryptor")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error: %v", err)
	}
	plaintext := []byte("live_sk_4fKj2mPq8rTv")
	ct, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Contains(ct, plaintext) {
		t.Error("ciphertext contains plaintext")
	}
	got, err := enc.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestEncryptUniqueNonces(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	a, err := enc.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	b, err := enc.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ct, err := enc.Encrypt([]byte("stream key"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	ct[len(ct)-1] ^= 0x01
	if _, err := enc.Decrypt(ct); err == nil {
		t.Error("Decrypt() accepted tampered ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	ct, err := enc1.Encrypt([]byte("stream key"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := enc2.Decrypt(ct); err == nil {
		t.Error("Decrypt() succeeded with the wrong key")
	}
}

func TestDecryptTooShort(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if _, err := enc.Decrypt([]byte("short")); err == nil {
		t.Error("Decrypt() accepted truncated ciphertext")
	}
}

func TestEncryptDecryptString(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ct, err := EncryptString(enc, "secret value")
	if err != nil {
		t.Fatalf("EncryptString() error: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ct); err != nil {
		t.Errorf("EncryptString() output is not valid base64: %v", err)
	}
	pt, err := DecryptString(enc, ct)
	if err != nil {
		t.Fatalf("DecryptString() error: %v", err)
	}
	if pt != "secret value" {
		t.Errorf("DecryptString() = %q, want %q", pt, "secret value")
	}

	// Empty strings pass through untouched for plaintext-compat columns.
	if out, err := EncryptString(enc, ""); err != nil || out != "" {
		t.Errorf("EncryptString(empty) = %q, %v", out, err)
	}
	if out, err := DecryptString(enc, ""); err != nil || out != "" {
		t.Errorf("DecryptString(empty) = %q, %v", out, err)
	}
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret(32)
	if err != nil {
		t.Fatalf("NewSecret() error: %v", err)
	}
	b, err := NewSecret(32)
	if err != nil {
		t.Fatalf("NewSecret() error: %v", err)
	}
	if a == b {
		t.Error("NewSecret() returned identical secrets")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("NewSecret() not url-safe: %q", a)
	}
	// Zero size falls back to the 32-byte default.
	c, err := NewSecret(0)
	if err != nil {
		t.Fatalf("NewSecret(0) error: %v", err)
	}
	if len(c) == 0 {
		t.Error("NewSecret(0) returned empty secret")
	}
}
