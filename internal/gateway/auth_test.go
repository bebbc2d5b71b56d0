package gateway

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	secret := "test-secret"
	raw := sign(t, secret, jwt.MapClaims{"sub": "bidder-1", "username": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	id, username, err := authenticate(secret, raw)
	if err != nil {
		t.Fatal(err)
	}
	if id != "bidder-1" {
		t.Fatalf("expected bidder-1, got %s", id)
	}
	if username != "alice" {
		t.Fatalf("expected alice, got %s", username)
	}
}

func TestAuthenticateRejectsEmptyToken(t *testing.T) {
	if _, _, err := authenticate("secret", ""); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	raw := sign(t, "secret-a", jwt.MapClaims{"sub": "bidder-1", "exp": time.Now().Add(time.Hour).Unix()})
	if _, _, err := authenticate("secret-b", raw); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticateRejectsMissingSub(t *testing.T) {
	raw := sign(t, "secret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, _, err := authenticate("secret", raw); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
