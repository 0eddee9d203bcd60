// Package credstore persists the session credential and master secret
// under the railgun home directory. The connection layer reads from it on
// connect and asks it to clear state when the server rejects the
// credential for good.
package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when no usable session token is stored.
var ErrNoCredential = errors.New("no stored credential")

// Store persists the access token and the master secret as files with
// restrictive permissions. The authenticated user id lives alongside the
// token, in the same directory.
type Store struct {
	tokenPath string
	keyPath   string
	userPath  string
}

// New creates a credential store over the given file paths.
func New(tokenPath, keyPath string) *Store {
	return &Store{
		tokenPath: tokenPath,
		keyPath:   keyPath,
		userPath:  filepath.Join(filepath.Dir(tokenPath), "user.id"),
	}
}

// SaveToken writes the session token to disk.
func (s *Store) SaveToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty token")
	}
	if err := os.WriteFile(s.tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// Token returns the stored session token. Tokens that carry an exp claim
// already in the past are treated as absent so callers re-authenticate
// instead of presenting a credential the server will reject.
func (s *Store) Token() (string, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	if expired(token, time.Now()) {
		return "", ErrNoCredential
	}
	return token, nil
}

// SaveUser records the authenticated user's id.
func (s *Store) SaveUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("empty user id")
	}
	if err := os.WriteFile(s.userPath, []byte(userID), 0600); err != nil {
		return fmt.Errorf("failed to write user id: %w", err)
	}
	return nil
}

// User returns the stored user id.
func (s *Store) User() (string, error) {
	data, err := os.ReadFile(s.userPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to read user id: %w", err)
	}
	userID := strings.TrimSpace(string(data))
	if userID == "" {
		return "", ErrNoCredential
	}
	return userID, nil
}

// ClearToken removes the stored session token. Missing files are fine.
func (s *Store) ClearToken() error {
	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// expired inspects the token's exp claim without verifying the signature.
// Verification is the server's job; locally we only want to skip tokens
// that cannot possibly work anymore. Opaque (non-JWT) tokens pass.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

// MasterKey loads the 32-byte master secret, generating and persisting a
// fresh one on first use.
func (s *Store) MasterKey() ([]byte, error) {
	if key, err := loadKey(s.keyPath); err == nil {
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(s.keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key: %w", err)
	}
	return key, nil
}

func loadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length: %d (expected 32)", len(key))
	}
	return key, nil
}
