package httpapi

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"
)

const (
	adminMaxFailures    = 10
	adminLockoutSeconds = 300 * time.Second
)

// adminGuard implements the Control Plane's brute-force defense (spec
// §4.10 / §7): a per-IP failure counter with lockout after 10 failed
// admin auths, grounded on the original src/core/admin_auth.py.
type adminGuard struct {
	mu           sync.Mutex
	failures     map[string]int
	lockoutUntil map[string]time.Time
	adminToken   string
}

func newAdminGuard(adminToken string) *adminGuard {
	return &adminGuard{
		failures:     make(map[string]int),
		lockoutUntil: make(map[string]time.Time),
		adminToken:   adminToken,
	}
}

// outcome distinguishes why authentication failed so the handler can
// return the right status code (spec §7: AdminForbidden → 403; locked
// out → 429).
type adminAuthOutcome int

const (
	adminAuthOK adminAuthOutcome = iota
	adminAuthLockedOut
	adminAuthForbidden
)

func (g *adminGuard) authenticate(ip, authorizationHeader string) adminAuthOutcome {
	g.mu.Lock()
	if until, locked := g.lockoutUntil[ip]; locked {
		if time.Now().Before(until) {
			g.mu.Unlock()
			return adminAuthLockedOut
		}
		delete(g.lockoutUntil, ip)
		delete(g.failures, ip)
	}
	g.mu.Unlock()

	token, ok := bearerToken(authorizationHeader)
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(g.adminToken)) != 1 {
		g.recordFailure(ip)
		return adminAuthForbidden
	}

	g.mu.Lock()
	delete(g.failures, ip)
	delete(g.lockoutUntil, ip)
	g.mu.Unlock()
	return adminAuthOK
}

func (g *adminGuard) recordFailure(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[ip]++
	if g.failures[ip] >= adminMaxFailures {
		g.lockoutUntil[ip] = time.Now().Add(adminLockoutSeconds)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}
