// Package lock provides an exclusive, blocking, cross-process lock scoped to
// a directory.
//
// The lock is an advisory OS lock on a dedicated file inside the directory.
// Acquire blocks until the lock is granted; there is no timeout. Locks taken
// through separate calls to Acquire conflict with each other even inside one
// process, so two holders of the same directory always serialize.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the lock file created inside the locked directory.
const FileName = "dexcache.lock"

var (
	// ErrReleased is returned when releasing a lock that was already released.
	ErrReleased = errors.New("lock: already released")

	// ErrUnsupported is returned on platforms without file locking.
	ErrUnsupported = errors.New("lock: file locking not supported on this platform")
)

// lockFn takes the OS lock on an open file. Tests replace it.
var lockFn = lockFile

// Lock is a held exclusive lock. The zero value is not usable.
type Lock struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	released bool
}

// Acquire opens (creating if absent) the lock file in dir and blocks until an
// exclusive lock on it is held. On failure every handle opened along the way
// is closed before the error is returned.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // path is fixed inside the cache dir
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFn(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Valid reports whether the lock is still held.
func (l *Lock) Valid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.released
}

// Release unlocks and closes the lock file. The lock file itself is left in
// place; deleting it would let a waiter lock an unlinked inode while a new
// caller locks a fresh file.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrReleased
	}
	l.released = true

	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	return errors.Join(unlockErr, closeErr)
}
