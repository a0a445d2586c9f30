package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/f1replay/telemetry-service/internal/database"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS provider_cache (
		cache_key  TEXT PRIMARY KEY,
		body       BYTEA NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresStore keeps cache entries in the provider_cache table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates the cache table if needed
func NewPostgresStore(ctx context.Context, db *database.DB) (*PostgresStore, error) {
	if _, err := db.Pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get implements Store.Get
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT body FROM provider_cache WHERE cache_key = $1`, key,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return body, true, nil
}

// Put implements Store.Put
func (s *PostgresStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO provider_cache (cache_key, body, fetched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cache_key) DO UPDATE
		SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at
	`, key, body)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete implements Store.Delete
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM provider_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Clear implements Store.Clear
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM provider_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// HealthCheck implements Store.HealthCheck
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
