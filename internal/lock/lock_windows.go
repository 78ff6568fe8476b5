//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// Locks the first byte; LockFileEx blocks without LOCKFILE_FAIL_IMMEDIATELY.
func lockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol)
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
