package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveCaptchaConfig_TestModeUsesWellKnownKeys(t *testing.T) {
	cfg := ResolveCaptchaConfig("", "", true)
	if cfg.SiteKey != TestSiteKey || cfg.SecretKey != TestSecretKey {
		t.Fatalf("expected well-known test keypair, got %+v", cfg)
	}
}

func TestValidateStartupConfig_FailsWithoutKeysOutsideTestMode(t *testing.T) {
	cfg := ResolveCaptchaConfig("", "", false)
	if err := ValidateStartupConfig(cfg); err == nil {
		t.Fatalf("expected error when keys are missing outside test mode")
	}
}

func TestValidateStartupConfig_PassesInTestMode(t *testing.T) {
	cfg := ResolveCaptchaConfig("", "", true)
	if err := ValidateStartupConfig(cfg); err != nil {
		t.Fatalf("expected test mode to pass validation, got %v", err)
	}
}

func TestCaptchaVerifier_Verify_SuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	v := NewCaptchaVerifier(CaptchaConfig{SecretKey: "secret"})
	v.client = srv.Client()

	ok, reason := v.verifyAgainst(context.Background(), srv.URL, "token", "1.2.3.4")
	if !ok {
		t.Fatalf("expected success, got reason=%q", reason)
	}
}

func TestCaptchaVerifier_Verify_RejectsEmptyToken(t *testing.T) {
	v := NewCaptchaVerifier(CaptchaConfig{SecretKey: "secret"})
	ok, _ := v.Verify(context.Background(), "", "1.2.3.4")
	if ok {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestWebhookNotifier_NotifyIsNoopWithoutURL(t *testing.T) {
	n := NewWebhookNotifier("", "")
	n.Notify(context.Background(), "visitor1", "abc1234567")
}

func TestWebhookNotifier_NotifySucceedsOnFirstAttempt(t *testing.T) {
	called := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "tok")
	n.client = srv.Client()
	n.Notify(context.Background(), "visitor1", "abc1234567")

	if called != 1 {
		t.Fatalf("expected exactly one delivery attempt, got %d", called)
	}
}
