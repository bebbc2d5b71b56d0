// Package identity is the external credential collaborator spec.md §6 frames
// as out of core scope: it has no bearing on bid admission, extension, or
// finalization, but something has to mint the JWT bearer tokens gateway's
// handshake validates, so this stub plays that role the way the teacher's
// AuthHandler/UserRepo pair did for the cinema domain, minus persistence —
// participants here are an in-memory registry, not a durable users table.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUsernameTaken mirrors the teacher's ErrConflict sentinel for duplicate
// registration attempts.
var ErrUsernameTaken = errors.New("identity: username already registered")

// ErrInvalidCredentials covers both unknown username and wrong password; the
// two are never distinguished in the response, same as the teacher's login
// handler.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// BcryptCost matches the teacher's config.Config.BcryptCost default.
const BcryptCost = bcrypt.DefaultCost

// Participant is a registered bidder or seller. ID is what ends up in a
// minted token's "sub" claim and therefore in admission.Request.BidderID /
// model.Auction.SellerID.
type Participant struct {
	ID           string
	Username     string
	PasswordHash string
}

// Store is an in-memory participant registry, safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	byUsername map[string]*Participant
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{byUsername: make(map[string]*Participant)}
}

// Register hashes the password with bcrypt, the teacher's utils.HashPassword
// behavior, and stores a new Participant keyed by username.
func (s *Store) Register(username, password string) (*Participant, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return nil, errors.New("identity: username and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[username]; exists {
		return nil, ErrUsernameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, err
	}
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	p := &Participant{ID: id, Username: username, PasswordHash: string(hash)}
	s.byUsername[username] = p
	return p, nil
}

// Authenticate verifies the password against the stored bcrypt hash, the
// teacher's utils.VerifyPassword check.
func (s *Store) Authenticate(username, password string) (*Participant, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	s.mu.RLock()
	p, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// IssueToken signs an HS256 JWT carrying the participant ID as "sub" and the
// registered username as "username", the same claims gateway.authenticate
// reads off an incoming handshake token to attach {userId, username} on
// connect. Adapted from the teacher's utils.NewAccessToken, generalized from
// a uint64 userID to a string participant ID to match this domain's UUIDs.
func IssueToken(secret, participantID, username string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().UTC().Add(ttl)
	claims := jwt.MapClaims{
		"sub":      participantID,
		"username": username,
		"iat":      time.Now().UTC().Unix(),
		"exp":      exp.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
