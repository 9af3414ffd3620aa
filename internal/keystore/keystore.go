// Package keystore manages the HMAC secret used to derive invite codes
// (spec §3 Invariants: "rotating the secret invalidates all prior codes").
// HashPass keeps the secret in memory by default, matching the original's
// secrets.token_bytes(32) regenerated on restart with no persistence; an
// operator can pin a secret across restarts by supplying it hex-encoded in
// HASHPASS_HMAC_SECRET (see NewFromHex).
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Store holds the current HMAC secret, its rotation version and the time it
// was installed; earlier secrets are not kept in memory. audit is
// nil unless EnablePostgresAudit was called, in which case every Rotate/Set
// also appends an encrypted record of the change.
type Store struct {
	mu        sync.RWMutex
	current   []byte
	rotatedAt time.Time
	version   int

	audit *rotationAudit
}

// New constructs a keystore starting from seed (already-decoded bytes). If
// seed is empty, a fresh cryptographically random 256-bit secret is minted,
// matching the original's process-restart behavior.
func New(seed []byte) (*Store, error) {
	s := &Store{rotatedAt: time.Now()}
	if len(seed) > 0 {
		s.current = append([]byte(nil), seed...)
		return s, nil
	}
	return s, s.Rotate()
}

// NewFromHex parses a hex-encoded secret (spec §6: HASHPASS_HMAC_SECRET,
// "hex, ≥128 bit"), validating the minimum length.
func NewFromHex(hexSecret string) (*Store, error) {
	if hexSecret == "" {
		return New(nil)
	}
	decoded, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid hex HMAC secret: %w", err)
	}
	if len(decoded) < 16 {
		return nil, fmt.Errorf("HMAC secret must be at least 128 bits, got %d bits", len(decoded)*8)
	}
	return New(decoded)
}

// Current returns a defensive copy of the active HMAC secret.
func (s *Store) Current() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.current))
	copy(out, s.current)
	return out
}

// Rotate replaces the current secret with a fresh cryptographically random
// 256-bit value (Control Plane "regenerate HMAC secret").
func (s *Store) Rotate() error {
	newKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, newKey); err != nil {
		return fmt.Errorf("failed to generate HMAC secret: %w", err)
	}
	return s.Set(newKey)
}

// Set installs secret as the current HMAC key directly (Control Plane "set
// HMAC secret"), validating its minimum length.
func (s *Store) Set(secret []byte) error {
	if len(secret) < 16 {
		return fmt.Errorf("HMAC secret must be at least 128 bits, got %d bits", len(secret)*8)
	}
	s.mu.Lock()
	previous := s.current
	s.current = append([]byte(nil), secret...)
	s.rotatedAt = time.Now()
	s.version++
	version := s.version
	audit := s.audit
	s.mu.Unlock()

	if audit != nil {
		if err := audit.record(context.Background(), version, secret, previous); err != nil {
			slog.Warn("failed to append HMAC rotation to postgres audit trail", "error", err)
		}
	}
	return nil
}

// RotationAge reports how long the current secret has been active.
func (s *Store) RotationAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.rotatedAt)
}

// EnablePostgresAudit connects an optional Postgres rotation-history trail.
// masterSecret seeds the at-rest encryption key for stored secrets. Safe to
// call at most once; a connection failure is returned to the caller rather
// than silently disabling the feature, since it is explicitly requested.
func (s *Store) EnablePostgresAudit(ctx context.Context, dsn, masterSecret string) error {
	audit, err := newRotationAudit(ctx, dsn, masterSecret)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.audit = audit
	s.mu.Unlock()
	return nil
}

// Close releases the optional Postgres audit connection, if any.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit != nil {
		s.audit.close()
	}
}
