// Package session implements the Identity & Session Store (spec §4.3): it
// issues, validates, reconnects, revokes, and garbage-collects bearer
// session tokens bound to a client IP, and holds the IP ban set.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"
)

// Token is spec's SessionToken entity. ConnID is a weak reference to the
// Connection Registry handle currently bound to this token, empty while
// disconnected.
type Token struct {
	Value          string
	IP             string
	CreatedAt      time.Time
	IsConnected    bool
	DisconnectedAt time.Time
	Revoked        bool
	ConnID         string
}

// Store holds all live session tokens and the IP ban set. Every mutation is
// protected by mu; per spec §5, token mutations are serialized by the single
// event loop in the original design, and a mutex gives the same guarantee in
// Go's multi-goroutine runtime.
type Store struct {
	mu     sync.Mutex
	tokens map[string]*Token
	bans   map[string]struct{}

	// expiry is how long a token survives after its connection disconnects
	// before the sweeper permanently removes it (spec: 300s).
	expiry time.Duration
}

// NewStore constructs an empty session store with the given post-disconnect
// expiry (spec default: 300 seconds).
func NewStore(expiry time.Duration) *Store {
	return &Store{
		tokens: make(map[string]*Token),
		bans:   make(map[string]struct{}),
		expiry: expiry,
	}
}

// Generate mints a new 256-bit URL-safe random token value.
func Generate() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Issue creates and registers a new token for ip/connID.
func (s *Store) Issue(ip, connID string) (*Token, error) {
	value, err := Generate()
	if err != nil {
		return nil, err
	}

	tok := &Token{
		Value:       value,
		IP:          ip,
		CreatedAt:   time.Now(),
		IsConnected: true,
		ConnID:      connID,
	}

	s.mu.Lock()
	s.tokens[value] = tok
	s.mu.Unlock()

	return tok, nil
}

// Validate reports whether token is usable from requestIP: it must exist,
// be unrevoked, IP-bound to requestIP, and (if disconnected) within the
// expiry window. The checks run in that order: existence, revocation, IP
// binding, expiry; any failure returns false.
func (s *Store) Validate(token, requestIP string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok {
		return false
	}
	if tok.Revoked {
		return false
	}
	if tok.IP != requestIP {
		return false
	}
	if !tok.IsConnected && time.Since(tok.DisconnectedAt) > s.expiry {
		return false
	}
	return true
}

// MarkDisconnected marks every token bound to connID as disconnected,
// preserving them (not deleting) so a subsequent Reconnect can succeed
// within the expiry window.
func (s *Store) MarkDisconnected(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, tok := range s.tokens {
		if tok.ConnID == connID && tok.IsConnected {
			tok.IsConnected = false
			tok.DisconnectedAt = now
			tok.ConnID = ""
		}
	}
}

// Reconnect re-binds token to newConnID if it validates against ip. It
// returns false without mutating anything if validation fails.
func (s *Store) Reconnect(token, ip, newConnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok || tok.Revoked || tok.IP != ip {
		return false
	}
	if !tok.IsConnected && time.Since(tok.DisconnectedAt) > s.expiry {
		return false
	}

	tok.IsConnected = true
	tok.DisconnectedAt = time.Time{}
	tok.ConnID = newConnID
	return true
}

// RevokeByIP idempotently revokes every token bound to ip. Used by the
// Control Plane's kick operation so the kicked IP's tokens stop validating
// immediately, before the sweeper next runs.
func (s *Store) RevokeByIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.IP == ip {
			tok.Revoked = true
		}
	}
}

// RevokeAll idempotently revokes every live token (Control Plane "clear all
// sessions").
func (s *Store) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		tok.Revoked = true
	}
}

// ConnIDForIP returns the ConnID of the live, connected token for ip, if
// any. The WebSocket handler finds a prior connection from the same IP
// through the Connection Registry, not through this method.
func (s *Store) ConnIDForIP(ip string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.IP == ip && tok.IsConnected && !tok.Revoked {
			return tok.ConnID, true
		}
	}
	return "", false
}

// Ban adds ip to the ban set and revokes all of its tokens atomically, so a
// ban can never be bypassed by an in-flight request racing the sweeper.
func (s *Store) Ban(ip string) {
	s.mu.Lock()
	s.bans[ip] = struct{}{}
	for _, tok := range s.tokens {
		if tok.IP == ip {
			tok.Revoked = true
		}
	}
	s.mu.Unlock()
}

// Unban removes ip from the ban set. Existing revoked tokens remain revoked.
func (s *Store) Unban(ip string) {
	s.mu.Lock()
	delete(s.bans, ip)
	s.mu.Unlock()
}

// IsBanned reports whether ip is currently banned.
func (s *Store) IsBanned(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, banned := s.bans[ip]
	return banned
}

// sweep permanently deletes tokens that are revoked or have exceeded the
// post-disconnect expiry.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for value, tok := range s.tokens {
		if tok.Revoked {
			delete(s.tokens, value)
			continue
		}
		if !tok.IsConnected && time.Since(tok.DisconnectedAt) > s.expiry {
			delete(s.tokens, value)
		}
	}
}

// RunSweeper runs the periodic GC sweeper every interval (spec: 60s) until
// ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
			slog.Debug("session sweeper ran")
		}
	}
}
