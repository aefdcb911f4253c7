package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.New("key not found")

// Store is a minimal key-value store used for local persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Backend   string // "file", "redis", "sqlite", "memory"
	Path      string // directory for file, database file for sqlite
	RedisAddr string
	RedisDB   int
	Password  string
}

// New opens the configured backend
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.Password, cfg.RedisDB)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
