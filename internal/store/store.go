// Package store provides an optional persistence layer layered on top of
// the in-memory defaults everywhere else in HashPass: a Postgres archive
// for solved-puzzle audit records, and a Redis mirror of the IP ban set so
// a restart (or, eventually, a second instance) does not forget bans.
// Both are optional — when no DSN/address is configured, HashPass runs
// entirely on internal/audit's file and internal/session's in-memory ban
// set, matching spec §1's single-instance, no-external-dependency design.
//
// Grounded on the teacher's pkg/database/database.go, which combines a
// jmoiron/sqlx Postgres handle with a redis/go-redis/v9 client behind one
// Database type; adapted here from challenge/solution/connection records
// to HashPass's audit-record and ban-set domain.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"hashpass/internal/audit"
)

// Store bundles the optional Postgres archive and Redis cache.
type Store struct {
	postgres *sqlx.DB
	redis    *redis.Client
}

// Connect opens the Postgres and/or Redis connections. Either dsn or
// redisAddr may be empty to skip that backend entirely; a Store with both
// empty is valid and simply does nothing on every call.
func Connect(dsn, redisAddr string) (*Store, error) {
	s := &Store{}

	if dsn != "" {
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		if err := ensureSchema(db); err != nil {
			return nil, fmt.Errorf("failed to ensure postgres schema: %w", err)
		}
		s.postgres = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = rdb
	}

	return s, nil
}

func ensureSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			id SERIAL PRIMARY KEY,
			visitor_id TEXT NOT NULL,
			seed TEXT NOT NULL,
			nonce BIGINT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			difficulty INT NOT NULL,
			solve_time DOUBLE PRECISION NOT NULL,
			invite_code TEXT NOT NULL,
			real_ip TEXT NOT NULL DEFAULT '',
			trace_data TEXT NOT NULL DEFAULT '',
			new_difficulty INT NOT NULL DEFAULT 0,
			adjustment_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// Close shuts down both backends, ignoring a nil backend.
func (s *Store) Close() error {
	if s.postgres != nil {
		if err := s.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return fmt.Errorf("failed to close redis: %w", err)
		}
	}
	return nil
}

// HasPostgres reports whether the archive backend is configured.
func (s *Store) HasPostgres() bool { return s.postgres != nil }

// HasRedis reports whether the ban-set mirror is configured.
func (s *Store) HasRedis() bool { return s.redis != nil }

// ArchiveRecord inserts rec into the Postgres audit-record archive, a
// durable companion to internal/audit's rotate-at-1000 JSON file. A no-op
// when Postgres is not configured.
func (s *Store) ArchiveRecord(ctx context.Context, rec audit.Record) error {
	if s.postgres == nil {
		return nil
	}
	_, err := s.postgres.ExecContext(ctx, `
		INSERT INTO audit_records (visitor_id, seed, nonce, hash, difficulty, solve_time, invite_code, real_ip, trace_data, new_difficulty, adjustment_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.VisitorID, rec.Seed, rec.Nonce, rec.Hash, rec.Difficulty, rec.SolveTime, rec.InviteCode,
		rec.RealIP, rec.TraceData, rec.NewDifficulty, rec.AdjustmentReason)
	if err != nil {
		return fmt.Errorf("failed to archive audit record: %w", err)
	}
	return nil
}

const banKeyPrefix = "hashpass:ban:"

// CacheBan mirrors a ban into Redis with no expiry (bans are permanent
// until explicitly lifted). A no-op when Redis is not configured.
func (s *Store) CacheBan(ctx context.Context, ip string) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Set(ctx, banKeyPrefix+ip, "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to cache ban for %s: %w", ip, err)
	}
	return nil
}

// UncacheBan removes a ban from the Redis mirror. A no-op when Redis is
// not configured.
func (s *Store) UncacheBan(ctx context.Context, ip string) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, banKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("failed to uncache ban for %s: %w", ip, err)
	}
	return nil
}

// CachedBans returns every IP currently mirrored as banned in Redis, used
// to repopulate internal/session's in-memory ban set on startup. Returns
// an empty slice (not an error) when Redis is not configured.
func (s *Store) CachedBans(ctx context.Context) ([]string, error) {
	if s.redis == nil {
		return nil, nil
	}
	keys, err := s.redis.Keys(ctx, banKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached bans: %w", err)
	}
	ips := make([]string, 0, len(keys))
	for _, k := range keys {
		ips = append(ips, k[len(banKeyPrefix):])
	}
	return ips, nil
}
