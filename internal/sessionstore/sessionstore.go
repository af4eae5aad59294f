// Package sessionstore persists the portal session token between process
// restarts, sealed so the raw cookie never sits on disk in the clear.
package sessionstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/gorilla/securecookie"
)

const tokenName = "portal-session"

// Store seals tokens with a key derived from the operator secret.
type Store struct {
	path string
	sc   *securecookie.SecureCookie
}

// New derives the hash and block keys from secret. The token file lives at
// path and is created with owner-only permissions.
func New(path string, secret []byte) *Store {
	hashKey := sha256.Sum256(append([]byte("visa-watch/hash/"), secret...))
	blockKey := sha256.Sum256(append([]byte("visa-watch/block/"), secret...))
	return &Store{
		path: path,
		sc:   securecookie.New(hashKey[:], blockKey[:]),
	}
}

func (s *Store) Save(token string) error {
	sealed, err := s.sc.Encode(tokenName, token)
	if err != nil {
		return fmt.Errorf("sessionstore: seal: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("sessionstore: write: %w", err)
	}
	return nil
}

// Load returns the cached token, or ok=false when none is stored or the
// sealed value does not verify (wrong secret, tampering, stale format).
func (s *Store) Load() (token string, ok bool) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	if err := s.sc.Decode(tokenName, string(b), &token); err != nil {
		return "", false
	}
	return token, true
}

// Purge removes the cached token. A sign-out ends the session epoch, so a
// missing file is success, not an error.
func (s *Store) Purge() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sessionstore: purge: %w", err)
	}
	return nil
}
