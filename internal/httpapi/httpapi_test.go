package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hashpass/internal/audit"
	"hashpass/internal/external"
	"hashpass/internal/keystore"
	"hashpass/internal/pow"
	"hashpass/internal/puzzle"
	"hashpass/internal/registry"
	"hashpass/internal/session"
)

type discardHub struct{}

func (discardHub) Broadcast(msg any) {}

type discardNotifier struct{}

func (discardNotifier) Notify(ctx context.Context, visitorID, inviteCode string) {}

type discardAuditor struct{}

func (discardAuditor) Append(rec audit.Record) {}

// newTestApp builds an App wired with real in-memory collaborators and a
// CAPTCHA verifier running in Turnstile test mode, so handler tests never
// reach the network.
func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	pool := pow.NewPool(2)
	t.Cleanup(pool.Shutdown)

	keys, err := keystore.New(nil)
	if err != nil {
		t.Fatalf("keystore.New: %v", err)
	}

	engine, err := puzzle.New(puzzle.Config{
		Difficulty:    1,
		MinDifficulty: 1,
		MaxDifficulty: 20,
		TargetTime:    30,
		TargetTimeout: 600,
		Argon2Params:  pow.Params{TimeCost: 1, MemoryCost: 8 * 1024, Parallelism: 1},
	}, reg, pool, keys, discardHub{}, discardNotifier{}, discardAuditor{})
	if err != nil {
		t.Fatalf("puzzle.New: %v", err)
	}

	sessions := session.NewStore(300 * time.Second)
	captchaCfg := external.ResolveCaptchaConfig("", "", true)
	captcha := external.NewCaptchaVerifier(captchaCfg)

	return NewApp(engine, sessions, reg, pool, captcha, captchaCfg, keys, nil, "admin-secret", 2)
}
