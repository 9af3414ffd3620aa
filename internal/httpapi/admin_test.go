package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer admin-secret")
	return req
}

func TestAdminRoutes_RejectWrongToken(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer not-the-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminSetDifficulty_UpdatesEngineAndResets(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	before := app.Engine.Current(2).Seed

	req := adminRequest(http.MethodPost, "/api/admin/difficulty", `{"difficulty":5}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	after := app.Engine.Current(2)
	if after.Difficulty != 5 {
		t.Fatalf("expected difficulty 5, got %d", after.Difficulty)
	}
	if after.Seed == before {
		t.Fatalf("expected a parameter change to force a new seed")
	}
}

func TestAdminSetDifficultyRange_RejectsInvertedRange(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := adminRequest(http.MethodPost, "/api/admin/difficulty-range", `{"min":10,"max":2}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an inverted range, got %d", rec.Code)
	}
}

func TestAdminBan_RejectsFutureConnectionsFromIP(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := adminRequest(http.MethodPost, "/api/admin/ban", `{"ip":"6.6.6.6"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !app.Sessions.IsBanned("6.6.6.6") {
		t.Fatalf("expected 6.6.6.6 to be banned")
	}
}

func TestAdminResetPuzzle_ChangesSeed(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	before := app.Engine.Current(2).Seed

	req := adminRequest(http.MethodPost, "/api/admin/reset", ``)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if app.Engine.Current(2).Seed == before {
		t.Fatalf("expected reset to change the seed")
	}
}

func TestAdminClearSessions_RevokesIssuedTokens(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	tok, _ := app.Sessions.Issue("7.7.7.7", "conn-7")

	req := adminRequest(http.MethodPost, "/api/admin/clear-sessions", ``)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if app.Sessions.Validate(tok.Value, "7.7.7.7") {
		t.Fatalf("expected clear-sessions to revoke the existing token")
	}
}
