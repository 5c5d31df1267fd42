// Package paths derives the runtime filesystem layout the daemon and
// client agree on: where the singleton lock, pid, and health files
// live. It is a pure function of config.Config — no I/O beyond the
// directory creation spec.md §4.1 step 1 asks the caller to perform
// separately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/weaverlang/weaver/internal/config"
)

const (
	lockFilename   = "weaverd.lock"
	pidFilename    = "weaverd.pid"
	healthFilename = "weaverd.health"
)

// RuntimePaths holds the four absolute paths derived from a
// config.SocketEndpoint, per spec.md §4.2. Immutable once derived.
type RuntimePaths struct {
	RuntimeDir string
	LockPath   string
	PidPath    string
	HealthPath string
}

// Derive computes RuntimePaths from cfg. For a Unix socket endpoint the
// runtime directory is the socket's parent directory. For a TCP
// endpoint it is the platform per-user runtime directory
// ($XDG_RUNTIME_DIR/weaver on Linux), falling back to a directory under
// the system temp dir keyed by effective uid when XDG_RUNTIME_DIR is
// unset.
func Derive(cfg *config.Config) (*RuntimePaths, error) {
	if cfg == nil {
		return nil, fmt.Errorf("paths: nil config")
	}

	var dir string
	switch cfg.Endpoint.Kind {
	case config.EndpointUnix:
		if cfg.Endpoint.Path == "" {
			return nil, fmt.Errorf("paths: unix endpoint has empty path")
		}
		dir = filepath.Dir(cfg.Endpoint.Path)
	case config.EndpointTCP:
		dir = userRuntimeDir()
	default:
		return nil, fmt.Errorf("paths: unknown endpoint kind %d", cfg.Endpoint.Kind)
	}

	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("paths: resolve runtime dir %q: %w", dir, err)
		}
		dir = abs
	}

	return &RuntimePaths{
		RuntimeDir: dir,
		LockPath:   filepath.Join(dir, lockFilename),
		PidPath:    filepath.Join(dir, pidFilename),
		HealthPath: filepath.Join(dir, healthFilename),
	}, nil
}

// EnsureRuntimeDir creates the runtime directory with mode 0700 if it
// does not already exist, per spec.md §4.1 step 1.
func (p *RuntimePaths) EnsureRuntimeDir() error {
	if err := os.MkdirAll(p.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("paths: create runtime dir %s: %w", p.RuntimeDir, err)
	}
	return nil
}

// userRuntimeDir returns the platform per-user runtime directory for
// Weaver's TCP-endpoint case, falling back to the system temp
// directory keyed by effective uid when XDG_RUNTIME_DIR is unset.
func userRuntimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "weaver")
	}
	return filepath.Join(os.TempDir(), "weaver", fmt.Sprintf("uid-%d", os.Geteuid()))
}
