package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/pbkdf2"
)

// rotationAudit is an optional, Postgres-backed append log of HMAC secret
// rotations: version, AES-GCM-encrypted key, previous encrypted key,
// rotated_at. It is never the source of truth for the live secret — that
// stays in Store.current — so a failure to write here never blocks a
// rotation; it only means this particular rotation is missing from the
// audit trail.
//
// Grounded on the teacher's pkg/pow/db_key_manager.go (pgxpool + AES-GCM
// encryption of the key material via a PBKDF2-derived encryption key),
// adapted from sqlc-generated queries to plain SQL since the audit trail
// has no read path worth code-generating for.
type rotationAudit struct {
	pool   *pgxpool.Pool
	encKey []byte
}

// newRotationAudit connects to Postgres and ensures the rotation-history
// table exists. masterSecret seeds the PBKDF2-derived AES-256 key that
// encrypts stored secrets at rest (the admin token, the only other
// operator-held secret in the process, serves this role).
func newRotationAudit(ctx context.Context, dsn, masterSecret string) (*rotationAudit, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect rotation-audit postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping rotation-audit postgres: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS hmac_key_rotations (
			version INT PRIMARY KEY,
			encrypted_key TEXT NOT NULL,
			previous_encrypted_key TEXT,
			rotated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure rotation-audit schema: %w", err)
	}

	salt := []byte("hashpass-hmac-key-encryption")
	encKey := pbkdf2.Key([]byte(masterSecret), salt, 10000, 32, sha256.New)

	return &rotationAudit{pool: pool, encKey: encKey}, nil
}

func (a *rotationAudit) close() {
	a.pool.Close()
}

// record appends one rotation event. version is monotonically increasing,
// assigned by the caller under Store's lock so concurrent rotations never
// collide.
func (a *rotationAudit) record(ctx context.Context, version int, current, previous []byte) error {
	encCurrent, err := a.encrypt(current)
	if err != nil {
		return fmt.Errorf("encrypt current key: %w", err)
	}
	var encPrevious *string
	if len(previous) > 0 {
		p, err := a.encrypt(previous)
		if err != nil {
			return fmt.Errorf("encrypt previous key: %w", err)
		}
		encPrevious = &p
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = a.pool.Exec(ctx,
		`INSERT INTO hmac_key_rotations (version, encrypted_key, previous_encrypted_key, rotated_at)
		 VALUES ($1, $2, $3, now())`,
		version, encCurrent, encPrevious)
	return err
}

func (a *rotationAudit) encrypt(data []byte) (string, error) {
	block, err := aes.NewCipher(a.encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
