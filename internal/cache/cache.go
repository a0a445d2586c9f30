// Package cache stores raw upstream responses for the session data provider.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/f1replay/telemetry-service/internal/database"
)

// Backend names accepted in Config.Backend
const (
	BackendNone     = "none"
	BackendDisk     = "disk"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by New for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is a key/value store for upstream response bodies
type Store interface {
	// Get returns the cached body for key; ok is false on a miss
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)

	// Put stores body under key, replacing any previous value
	Put(ctx context.Context, key string, body []byte) error

	// Delete removes the entry for key; a missing entry is not an error
	Delete(ctx context.Context, key string) error

	// Clear removes every entry
	Clear(ctx context.Context) error

	// HealthCheck reports whether the store is usable
	HealthCheck(ctx context.Context) error
}

// Config selects and configures a cache backend
type Config struct {
	Backend string // "disk", "postgres" or "none"
	Dir     string // directory for the disk backend
}

// New creates the store described by cfg. db is only used by the postgres
// backend and may be nil otherwise.
func New(ctx context.Context, cfg Config, db *database.DB) (Store, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return NoopStore{}, nil
	case BackendDisk:
		return NewDiskStore(cfg.Dir)
	case BackendPostgres:
		if db == nil {
			return nil, errors.New("postgres cache backend requires a database connection")
		}
		return NewPostgresStore(ctx, db)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// NoopStore never caches anything
type NoopStore struct{}

// Get implements Store.Get
func (NoopStore) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

// Put implements Store.Put
func (NoopStore) Put(_ context.Context, _ string, _ []byte) error {
	return nil
}

// Delete implements Store.Delete
func (NoopStore) Delete(_ context.Context, _ string) error {
	return nil
}

// Clear implements Store.Clear
func (NoopStore) Clear(_ context.Context) error {
	return nil
}

// HealthCheck implements Store.HealthCheck
func (NoopStore) HealthCheck(_ context.Context) error {
	return nil
}
