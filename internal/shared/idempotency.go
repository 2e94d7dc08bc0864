package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict means the key was already claimed.
var ErrIdempotencyConflict = errors.New("shared: idempotency key already used")

// IdempotencyStore claims one-shot keys in PostgreSQL so retried
// mutations run their side effects at most once.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs IdempotencyStore.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key. A unique violation maps to
// ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO idempotency_keys (key, created_at) VALUES ($1, now())", key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete releases key, letting the operation run again.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM idempotency_keys WHERE key = $1", key)
	return err
}

// Cleanup removes keys older than maxAge and returns how many were
// purged.
func (s *IdempotencyStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM idempotency_keys WHERE created_at < $1", time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
