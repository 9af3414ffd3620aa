// Command hashpassd runs the HashPass invite-code dispenser: a single
// process hosting the Puzzle Engine, Connection Registry, Session Store,
// and their supporting background loops, behind a gin HTTP/WebSocket
// surface.
//
// Startup order: validate CAPTCHA config (fatal outside test mode), build
// the keystore, optional store, audit log, session store and registry, init
// the worker pool, build the engine, start the Timeout Watcher, the
// Hashrate Aggregator and the session sweeper, then serve. Teardown stops
// the HTTP server, cancels the three background loops together, shuts the
// worker pool down, then closes the audit log and the optional store.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hashpass/internal/audit"
	"hashpass/internal/broadcast"
	"hashpass/internal/config"
	"hashpass/internal/external"
	"hashpass/internal/httpapi"
	"hashpass/internal/keystore"
	"hashpass/internal/logging"
	"hashpass/internal/metrics"
	"hashpass/internal/pow"
	"hashpass/internal/puzzle"
	"hashpass/internal/registry"
	"hashpass/internal/session"
	"hashpass/internal/store"
)

// combinedAuditor fans a solved-puzzle record out to the always-on local
// audit log and, if configured, the optional Postgres archive.
type combinedAuditor struct {
	log   *audit.Log
	store *store.Store
}

func (a *combinedAuditor) Append(rec audit.Record) {
	a.log.Append(rec)
	if a.store != nil && a.store.HasPostgres() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.store.ArchiveRecord(ctx, rec); err != nil {
				slog.Warn("failed to archive audit record to postgres", "error", err)
			}
		}()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hashpassd", "port", cfg.Port, "metrics_port", cfg.MetricsPort)

	captchaCfg := external.ResolveCaptchaConfig(cfg.TurnstileSiteKey, cfg.TurnstileSecretKey, cfg.TurnstileTestMode)
	if err := external.ValidateStartupConfig(captchaCfg); err != nil {
		log.Fatalf("captcha configuration: %v", err)
	}

	keys, err := keystore.NewFromHex(cfg.HMACSecretHex)
	if err != nil {
		log.Fatalf("hmac keystore: %v", err)
	}
	if cfg.PostgresDSN != "" {
		if err := keys.EnablePostgresAudit(context.Background(), cfg.PostgresDSN, cfg.AdminToken); err != nil {
			log.Fatalf("hmac rotation audit: %v", err)
		}
		defer keys.Close()
	}

	dataStore, err := store.Connect(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("optional store connect: %v", err)
	}

	auditLog := audit.Open(cfg.AuditLogPath)
	auditor := &combinedAuditor{log: auditLog, store: dataStore}

	sessions := session.NewStore(cfg.SessionExpiry)
	if dataStore != nil {
		bannedIPs, err := dataStore.CachedBans(context.Background())
		if err != nil {
			logger.Warn("failed to load cached bans from redis", "error", err)
		}
		for _, ip := range bannedIPs {
			sessions.Ban(ip)
		}
	}

	reg := registry.New()
	pool := pow.NewPool(cfg.WorkerCount)
	hub := broadcast.New(reg)
	captcha := external.NewCaptchaVerifier(captchaCfg)
	webhook := external.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookToken)

	engine, err := puzzle.New(puzzle.Config{
		Difficulty:    cfg.Difficulty,
		MinDifficulty: cfg.MinDifficulty,
		MaxDifficulty: cfg.MaxDifficulty,
		TargetTime:    cfg.TargetTime.Seconds(),
		TargetTimeout: cfg.TargetTimeout.Seconds(),
		Argon2Params: pow.Params{
			TimeCost:    cfg.Argon2TimeCost,
			MemoryCost:  cfg.Argon2MemoryCost,
			Parallelism: cfg.Argon2Parallelism,
		},
		MaxNonceSpeed: cfg.MaxNonceSpeed,
	}, reg, pool, keys, hub, webhook, auditor)
	if err != nil {
		log.Fatalf("puzzle engine: %v", err)
	}
	engine.WarmStartDifficulty(audit.RecentSolveTimes(cfg.AuditLogPath, 5))

	ctx, cancel := context.WithCancel(context.Background())
	go engine.RunTimeoutWatcher(ctx)

	hashrateAgg := puzzle.NewAggregator(reg, hub)
	go hashrateAgg.Run(ctx)

	go sessions.RunSweeper(ctx, 60*time.Second)

	app := httpapi.NewApp(engine, sessions, reg, pool, captcha, captchaCfg, keys, dataStore, cfg.AdminToken, cfg.WorkerCount)
	router := app.Router(cfg.CORSOrigins)

	metrics.StartMetricsServer(cfg.MetricsPort)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down hashpassd")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	cancel() // stops the timeout watcher, hashrate aggregator, session sweeper
	pool.Shutdown()
	auditLog.Close()
	if dataStore != nil {
		if err := dataStore.Close(); err != nil {
			logger.Warn("store close error", "error", err)
		}
	}
}
