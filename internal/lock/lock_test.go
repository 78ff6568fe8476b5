package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), l.Path())
	assert.True(t, l.Valid())

	_, err = os.Stat(l.Path())
	require.NoError(t, err, "lock file should exist")

	require.NoError(t, l.Release())
	assert.False(t, l.Valid())
	require.ErrorIs(t, l.Release(), ErrReleased)

	// The file stays behind for the next holder.
	_, err = os.Stat(l.Path())
	require.NoError(t, err)
}

func TestAcquireMissingDir(t *testing.T) {
	t.Parallel()

	_, err := Acquire(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAcquireClosesFileOnLockFailure(t *testing.T) {
	lockErr := errors.New("lock refused")
	var locked *os.File
	orig := lockFn
	lockFn = func(f *os.File) error {
		locked = f
		return lockErr
	}
	t.Cleanup(func() { lockFn = orig })

	dir := t.TempDir()
	l, err := Acquire(dir)
	require.ErrorIs(t, err, lockErr)
	assert.Nil(t, l)
	assert.Contains(t, err.Error(), filepath.Join(dir, FileName))

	require.NotNil(t, locked)
	require.ErrorIs(t, locked.Close(), os.ErrClosed, "lock file handle should already be closed")
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := Acquire(dir)
	require.NoError(t, err)

	acquired := make(chan *Lock, 1)
	errs := make(chan error, 1)
	go func() {
		second, err := Acquire(dir)
		if err != nil {
			errs <- err
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the first lock was held")
	case err := <-errs:
		t.Fatalf("second Acquire failed: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, first.Release())

	select {
	case second := <-acquired:
		assert.True(t, second.Valid())
		require.NoError(t, second.Release())
	case err := <-errs:
		t.Fatalf("second Acquire failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("second Acquire did not return after release")
	}
}
