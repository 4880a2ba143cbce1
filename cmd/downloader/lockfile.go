package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockFilePermissions matches the standard config file permissions (owner
// rw, group/other r).
const lockFilePermissions = 0o644

// lockDirPermissions matches the standard directory permissions (owner
// rwx, group/other rx).
const lockDirPermissions = 0o755

// acquireLock takes an exclusive, non-blocking flock on path, enforcing
// that a run must not be re-entered while another one is still in
// progress (spec.md §5). Returns a release function that unlocks and
// removes the file.
func acquireLock(path string) (release func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("lock file path is empty — cannot determine data directory")
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, lockDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another run is already in progress (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}
