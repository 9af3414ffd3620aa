package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleHealth_ReturnsOKWithSeedPrefix(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible test agent)")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
	if body.CurrentSeedPrefix == "" {
		t.Fatalf("expected a non-empty seed prefix")
	}
}

func TestHandleTurnstileConfig_ReturnsTestModeKeys(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/api/turnstile/config", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body turnstileConfigResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.TestMode {
		t.Fatalf("expected test mode to be reported true")
	}
}

func TestHandlePuzzle_RequiresBearerToken(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/api/puzzle", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestHandlePuzzle_AcceptsValidSessionToken(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	tok, err := app.Sessions.Issue("10.0.0.1", "conn-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/puzzle", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleVerify_RejectsOversizedVisitorID(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	tok, _ := app.Sessions.Issue("10.0.0.2", "conn-2")

	body := `{"visitorId":"` + strings.Repeat("a", 200) + `","nonce":1,"submittedSeed":"seed","traceData":"ip=10.0.0.2","hash":"deadbeef"}`
	req := httptest.NewRequest(http.MethodPost, "/api/verify", strings.NewReader(body))
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.2:1"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized visitorId, got %d", rec.Code)
	}
}

func TestHandleVerify_RejectsStaleSeed(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	tok, _ := app.Sessions.Issue("10.0.0.3", "conn-3")

	body := `{"visitorId":"visitor","nonce":1,"submittedSeed":"not-the-live-seed","traceData":"ip=10.0.0.3","hash":"deadbeef"}`
	req := httptest.NewRequest(http.MethodPost, "/api/verify", strings.NewReader(body))
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.3:1"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 PuzzleStale, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUserAgentFilter_BlocksBotOnPuzzleEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/api/puzzle", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a bot UA, got %d", rec.Code)
	}
}

func TestUserAgentFilter_ExemptsHealthEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := app.Router([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to stay reachable for bots, got %d", rec.Code)
	}
}
