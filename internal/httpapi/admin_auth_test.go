package httpapi

import "testing"

func TestAdminGuard_AcceptsCorrectToken(t *testing.T) {
	g := newAdminGuard("secret-token")
	if got := g.authenticate("1.2.3.4", "Bearer secret-token"); got != adminAuthOK {
		t.Fatalf("expected adminAuthOK, got %v", got)
	}
}

func TestAdminGuard_RejectsWrongToken(t *testing.T) {
	g := newAdminGuard("secret-token")
	if got := g.authenticate("1.2.3.4", "Bearer wrong"); got != adminAuthForbidden {
		t.Fatalf("expected adminAuthForbidden, got %v", got)
	}
}

func TestAdminGuard_RejectsMalformedHeader(t *testing.T) {
	g := newAdminGuard("secret-token")
	if got := g.authenticate("1.2.3.4", "secret-token"); got != adminAuthForbidden {
		t.Fatalf("expected adminAuthForbidden for a malformed header, got %v", got)
	}
}

func TestAdminGuard_LocksOutAfterMaxFailures(t *testing.T) {
	g := newAdminGuard("secret-token")
	for i := 0; i < adminMaxFailures; i++ {
		g.authenticate("9.9.9.9", "Bearer wrong")
	}
	if got := g.authenticate("9.9.9.9", "Bearer secret-token"); got != adminAuthLockedOut {
		t.Fatalf("expected lockout to reject even the correct token, got %v", got)
	}
}

func TestAdminGuard_SuccessClearsFailureCounter(t *testing.T) {
	g := newAdminGuard("secret-token")
	g.authenticate("5.5.5.5", "Bearer wrong")
	g.authenticate("5.5.5.5", "Bearer secret-token")

	g.mu.Lock()
	count := g.failures["5.5.5.5"]
	g.mu.Unlock()
	if count != 0 {
		t.Fatalf("expected failure counter to reset after success, got %d", count)
	}
}

func TestAdminGuard_LockoutIsPerIP(t *testing.T) {
	g := newAdminGuard("secret-token")
	for i := 0; i < adminMaxFailures; i++ {
		g.authenticate("9.9.9.9", "Bearer wrong")
	}
	if got := g.authenticate("1.1.1.1", "Bearer secret-token"); got != adminAuthOK {
		t.Fatalf("expected a different IP to be unaffected by another IP's lockout, got %v", got)
	}
}
