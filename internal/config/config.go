// Package config loads HashPass's process configuration from environment
// variables, following the teacher's getEnv* helper pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of a HashPass server instance.
type Config struct {
	Port        int
	MetricsPort int
	LogLevel    string

	Difficulty    int
	MinDifficulty int
	MaxDifficulty int
	TargetTime    time.Duration
	TargetTimeout time.Duration

	Argon2TimeCost    uint32
	Argon2MemoryCost  uint32
	Argon2Parallelism uint8

	WorkerCount   int
	MaxNonceSpeed float64

	HMACSecretHex string
	AdminToken    string

	TurnstileSiteKey   string
	TurnstileSecretKey string
	TurnstileTestMode  bool

	WebhookURL   string
	WebhookToken string

	AuditLogPath string

	PostgresDSN string
	RedisAddr   string

	CORSOrigins []string

	SessionExpiry time.Duration
}

// Load reads Config from the process environment, applying the same
// defaults as the original HashPass service.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", getEnvInt("HASHPASS_PORT", 8080)),
		MetricsPort: getEnvInt("HASHPASS_METRICS_PORT", 9090),
		LogLevel:    getEnvString("HASHPASS_LOG_LEVEL", "INFO"),

		Difficulty:    getEnvInt("HASHPASS_DIFFICULTY", 3),
		MinDifficulty: getEnvInt("HASHPASS_MIN_DIFFICULTY", 1),
		MaxDifficulty: getEnvInt("HASHPASS_MAX_DIFFICULTY", 24),
		TargetTime:    getEnvDuration("HASHPASS_TARGET_TIME", 60*time.Second),
		TargetTimeout: getEnvDuration("HASHPASS_TARGET_TIMEOUT", 180*time.Second),

		Argon2TimeCost:    uint32(getEnvInt("HASHPASS_ARGON2_TIME_COST", 3)),
		Argon2MemoryCost:  uint32(getEnvInt("HASHPASS_ARGON2_MEMORY_COST", 65536)),
		Argon2Parallelism: uint8(getEnvInt("HASHPASS_ARGON2_PARALLELISM", 1)),

		WorkerCount:   getEnvInt("HASHPASS_WORKER_COUNT", 0),
		MaxNonceSpeed: getEnvFloat("HASHPASS_MAX_NONCE_SPEED", 0),

		HMACSecretHex: getEnvString("HASHPASS_HMAC_SECRET", ""),
		AdminToken:    getEnvString("ADMIN_TOKEN", ""),

		TurnstileSiteKey:   getEnvString("TURNSTILE_SITE_KEY", ""),
		TurnstileSecretKey: getEnvString("TURNSTILE_SECRET_KEY", ""),
		TurnstileTestMode:  getEnvBool("TURNSTILE_TEST_MODE", false),

		WebhookURL:   getEnvString("WEBHOOK_URL", ""),
		WebhookToken: getEnvString("WEBHOOK_TOKEN", ""),

		AuditLogPath: getEnvString("HASHPASS_AUDIT_LOG_PATH", "verify.json"),

		PostgresDSN: getEnvString("HASHPASS_POSTGRES_DSN", ""),
		RedisAddr:   getEnvString("HASHPASS_REDIS_ADDR", ""),

		CORSOrigins:   getEnvStringSlice("HASHPASS_CORS_ORIGINS", []string{"http://localhost:5173"}),
		SessionExpiry: getEnvDuration("HASHPASS_SESSION_EXPIRY", 300*time.Second),
	}

	if !cfg.TurnstileTestMode {
		if cfg.TurnstileSiteKey == "" || cfg.TurnstileSecretKey == "" {
			return nil, fmt.Errorf("TURNSTILE_SITE_KEY and TURNSTILE_SECRET_KEY must be set " +
				"unless TURNSTILE_TEST_MODE=true")
		}
	}

	if cfg.MinDifficulty < 1 {
		return nil, fmt.Errorf("HASHPASS_MIN_DIFFICULTY must be >= 1")
	}
	if cfg.MaxDifficulty < cfg.MinDifficulty {
		return nil, fmt.Errorf("HASHPASS_MAX_DIFFICULTY must be >= HASHPASS_MIN_DIFFICULTY")
	}
	if cfg.Difficulty < cfg.MinDifficulty || cfg.Difficulty > cfg.MaxDifficulty {
		cfg.Difficulty = cfg.MinDifficulty
	}

	return cfg, nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
