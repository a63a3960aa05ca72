package repository

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/library-system/auth-service/internal/domain"
)

// PostgresRefreshStore persists refresh records in refresh_tokens, keyed by
// username. Swap locks the row with SELECT ... FOR UPDATE inside a transaction.
type PostgresRefreshStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRefreshStore returns a Postgres-backed implementation.
func NewPostgresRefreshStore(pool *pgxpool.Pool) *PostgresRefreshStore {
	return &PostgresRefreshStore{pool: pool, now: time.Now}
}

func (s *PostgresRefreshStore) Get(ctx context.Context, username string) (*domain.RefreshRecord, error) {
	const query = `
        SELECT username, token_fingerprint, updated_at
        FROM refresh_tokens
        WHERE username=$1 AND expires_at > $2`

	var record domain.RefreshRecord
	err := s.pool.QueryRow(ctx, query, username, s.now()).Scan(
		&record.Username,
		&record.Value,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefreshRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh record: %w", err)
	}
	return &record, nil
}

func (s *PostgresRefreshStore) Put(ctx context.Context, username, value string, ttl time.Duration) error {
	const query = `
        INSERT INTO refresh_tokens (username, token_fingerprint, expires_at, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (username) DO UPDATE
        SET token_fingerprint=EXCLUDED.token_fingerprint,
            expires_at=EXCLUDED.expires_at,
            updated_at=EXCLUDED.updated_at`

	now := s.now()
	if _, err := s.pool.Exec(ctx, query, username, value, now.Add(ttl), now); err != nil {
		return fmt.Errorf("put refresh record: %w", err)
	}
	return nil
}

func (s *PostgresRefreshStore) Delete(ctx context.Context, username string) error {
	const query = `DELETE FROM refresh_tokens WHERE username=$1`

	if _, err := s.pool.Exec(ctx, query, username); err != nil {
		return fmt.Errorf("delete refresh record: %w", err)
	}
	return nil
}

func (s *PostgresRefreshStore) Swap(ctx context.Context, username, presented, next string, ttl time.Duration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin refresh swap: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		stored    string
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, `
        SELECT token_fingerprint, expires_at
        FROM refresh_tokens
        WHERE username=$1
        FOR UPDATE`, username).Scan(&stored, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRefreshRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("lock refresh record: %w", err)
	}

	now := s.now()
	if !now.Before(expiresAt) {
		if err := deleteRecordTx(ctx, tx, username); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit refresh swap: %w", err)
		}
		return ErrRefreshRecordNotFound
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		if err := deleteRecordTx(ctx, tx, username); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit refresh swap: %w", err)
		}
		return ErrRefreshRecordMismatch
	}

	if _, err := tx.Exec(ctx, `
        UPDATE refresh_tokens
        SET token_fingerprint=$2, expires_at=$3, updated_at=$4
        WHERE username=$1`, username, next, now.Add(ttl), now); err != nil {
		return fmt.Errorf("rotate refresh record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit refresh swap: %w", err)
	}
	return nil
}

func (s *PostgresRefreshStore) DeleteIfMatch(ctx context.Context, username, value string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE username=$1 AND token_fingerprint=$2`

	cmd, err := s.pool.Exec(ctx, query, username, value)
	if err != nil {
		return false, fmt.Errorf("delete refresh record: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func deleteRecordTx(ctx context.Context, tx pgx.Tx, username string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE username=$1`, username); err != nil {
		return fmt.Errorf("revoke refresh record: %w", err)
	}
	return nil
}
