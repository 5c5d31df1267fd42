package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writePIDFile atomically writes pid as ASCII decimal followed by a
// newline, per spec.md §6 ("weaverd.pid: ASCII decimal pid followed by
// \n"). The temp file is created in the same directory as path so the
// rename is atomic.
func writePIDFile(path string, pid int) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".weaverd.pid.*.tmp")
	if err != nil {
		return fmt.Errorf("daemon: create temp pid file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("daemon: chmod pid file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("daemon: fsync pid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("daemon: close pid file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("daemon: rename pid file into place: %w", err)
	}
	return nil
}

// readPIDFile parses the decimal pid stored at path. The returned
// error preserves os.IsNotExist when the file is absent.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled runtime_dir
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemon: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// removePIDFile deletes the pid file, ignoring NotFound.
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: remove pid file %s: %w", path, err)
	}
	return nil
}
