package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateJWT("secret", userID, models.RoleTenant, time.Hour)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("expected user %s, got %s", userID, claims.UserID)
	}
	if claims.Role != models.RoleTenant {
		t.Errorf("expected role tenant, got %s", claims.Role)
	}
}

func TestParseJWT_WrongSecret(t *testing.T) {
	token, _ := GenerateJWT("secret", uuid.New(), models.RoleLandlord, time.Hour)
	if _, err := ParseJWT("other", token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestParseJWT_Expired(t *testing.T) {
	token, _ := GenerateJWT("secret", uuid.New(), models.RoleLandlord, -time.Hour)
	// Non-positive expiration falls back to 24h, so the token stays valid.
	if _, err := ParseJWT("secret", token); err != nil {
		t.Fatalf("expected fallback expiration, got: %v", err)
	}
}

func TestParseJWT_RejectsAnonymous(t *testing.T) {
	token, _ := GenerateJWT("secret", Anonymous, models.RoleTenant, time.Hour)
	_, err := ParseJWT("secret", token)
	if err == nil {
		t.Fatal("expected anonymous identity to be rejected")
	}
	if !strings.Contains(err.Error(), "anonymous") {
		t.Errorf("expected 'anonymous' in error, got: %s", err.Error())
	}
}

func TestRequireAuthenticated(t *testing.T) {
	if _, err := RequireAuthenticated(Anonymous); !errors.Is(err, models.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}

	id := uuid.New()
	got, err := RequireAuthenticated(id)
	if err != nil || got != id {
		t.Errorf("RequireAuthenticated(%s) = %s, %v", id, got, err)
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "battery staple") {
		t.Error("expected wrong password to fail")
	}
}
