//go:build windows

package registry

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// fileLock is an advisory cross-process lock on path + ".lock" (LockFileEx).
type fileLock struct {
	path string
}

// lockHandle represents an acquired lock that must be released.
type lockHandle struct {
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path + ".lock"}
}

// Lock blocks until the exclusive lock is acquired.
func (l *fileLock) Lock() (*lockHandle, error) {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ol := &windows.Overlapped{}
	err = windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &lockHandle{file: f}, nil
}

// Unlock releases the lock. A second call is a no-op.
func (h *lockHandle) Unlock() error {
	if h == nil || h.file == nil {
		return nil
	}

	ol := &windows.Overlapped{}
	err := windows.UnlockFileEx(windows.Handle(h.file.Fd()), 0, 1, 0, ol)
	closeErr := h.file.Close()
	h.file = nil
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file: %w", closeErr)
	}
	return nil
}
