// Package store provides the key-value byte stores the roster and
// attendance data are persisted to.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Entry is a single key/value pair in a write batch.
type Entry struct {
	Key   string
	Value []byte
}

// KV is a durable key-value byte store. Write applies all entries
// atomically: either every entry is stored or none is.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, entries ...Entry) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Options carries the connection settings for every backend; Open only
// reads the fields of the backend it builds.
type Options struct {
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the named backend.
func Open(ctx context.Context, backend string, opts Options) (KV, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := NewSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		p, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendRedis:
		r := NewRedis(opts.RedisAddr, opts.RedisPrefix)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return r, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
