// Package db defines the storage interface the document repository runs on.
// Drivers expose a small JSON key-value surface; everything query-shaped
// happens above them.
package db

import (
	"context"
	"time"
)

// SetMode controls the write condition of a JSONSet.
type SetMode int

const (
	// SetAlways writes unconditionally.
	SetAlways SetMode = iota
	// SetNX writes only if the key does not exist; ErrKeyExists otherwise.
	// This is the uniqueness constraint primitive for managed identities.
	SetNX
	// SetXX writes only if the key exists; ErrKeyNotFound otherwise.
	SetXX
)

// Store is the driver facade the repository consumes.
type Store interface {
	Pinger
	JSONStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JSONStore provides JSON document operations keyed by string.
type JSONStore interface {
	JSONSet(ctx context.Context, key string, data []byte, mode SetMode) error
	JSONGet(ctx context.Context, key string) ([]byte, error)
	// JSONGetMulti reads several keys in one round trip; entries for
	// missing keys are nil.
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Scan returns all keys matching a trailing-wildcard pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}
