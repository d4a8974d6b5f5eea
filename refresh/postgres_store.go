package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/dbx"
)

// PostgresStore is a [Ledger] over the refresh_tokens table. It works with any
// [dbx.DBTX], so it can run inside a caller's transaction.
type PostgresStore struct {
	db     dbx.DBTX
	config StoreConfig
}

// NewPostgresStore binds a store to db.
func NewPostgresStore(db dbx.DBTX, cfg StoreConfig) *PostgresStore {
	return &PostgresStore{db: db, config: cfg.normalized()}
}

// Create inserts a new token for subjectID expiring TTL from now.
func (s *PostgresStore) Create(ctx context.Context, subjectID int64) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, HashToken(token), subjectID, s.config.Now().Add(s.config.TTL).UTC())
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return "", ErrCollision
	}
	return token, nil
}

// Consume deletes the row for token and returns what it held. The single
// DELETE ... RETURNING statement is what makes concurrent consumes single-winner.
func (s *PostgresStore) Consume(ctx context.Context, token string) (Record, error) {
	if token == "" {
		return Record{}, ErrNotFound
	}
	query := `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING user_id, expires_at
	`
	var rec Record
	if err := s.db.QueryRowContext(ctx, query, HashToken(token)).Scan(&rec.SubjectID, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Delete removes token. Missing rows are not an error.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	query := `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
	`
	if _, err := s.db.ExecContext(ctx, query, HashToken(token)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SweepExpired deletes every row that expired before now.
func (s *PostgresStore) SweepExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, s.config.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Ping runs a trivial query and reports its latency.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return time.Since(start), fmt.Errorf("db error: %w", err)
	}
	return time.Since(start), nil
}
