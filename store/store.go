// Package store defines the key-value persistence used to record what was
// extracted into a cache directory.
//
// Keys are plain strings; callers namespace them with a prefix so that
// several caches can share one store.
package store

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned by implementations after Close.
var ErrStoreClosed = errors.New("store: closed")

// Store holds typed integer values.
//
// Implementations must be safe for concurrent use. Commit must be atomic:
// after a crash or error either every value of the commit is visible or
// none is.
type Store interface {
	// GetInt64 returns the value stored for key. The boolean is false when
	// no value is stored; absence is distinct from every stored value.
	GetInt64(ctx context.Context, key string) (int64, bool, error)

	// Commit stores every value in values in a single atomic write.
	Commit(ctx context.Context, values map[string]int64) error
}
