package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRegisterThenAuthenticate(t *testing.T) {
	s := NewStore()
	p, err := s.Register("Alice", "correct-horse")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected a non-empty participant ID")
	}

	if _, err := s.Authenticate("alice", "correct-horse"); err != nil {
		t.Fatalf("expected case-insensitive username match, got %v", err)
	}
	if _, err := s.Authenticate("alice", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	s := NewStore()
	if _, err := s.Register("bob", "pw"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := s.Register("bob", "other"); err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestIssueTokenCarriesSubjectClaim(t *testing.T) {
	token, exp, err := IssueToken("secret", "participant-1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expected expiry in the future")
	}
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	claims, _ := parsed.Claims.(jwt.MapClaims)
	if sub, _ := claims["sub"].(string); sub != "participant-1" {
		t.Fatalf("expected sub participant-1, got %v", claims["sub"])
	}
}
