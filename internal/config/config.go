// Package config resolves the values the daemon and client need to boot:
// the socket endpoint, launch mode, and workspace root. Parsing CLI flags
// and config files into this shape is an external concern (spec §1); this
// package only defines the resolved value and a thin environment-variable
// loader used by cmd/weaverd and by tests.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EndpointKind distinguishes the two supported socket transports.
type EndpointKind int

const (
	// EndpointUnix identifies a Unix domain socket endpoint.
	EndpointUnix EndpointKind = iota
	// EndpointTCP identifies a TCP host:port endpoint.
	EndpointTCP
)

// SocketEndpoint is the sum type described in spec.md §3: either a Unix
// domain socket path or a TCP host/port pair. Equality is by value.
type SocketEndpoint struct {
	Kind EndpointKind
	Host string
	Port int
	Path string
}

// Unix constructs a Unix domain socket endpoint.
func Unix(path string) SocketEndpoint {
	return SocketEndpoint{Kind: EndpointUnix, Path: path}
}

// TCP constructs a TCP endpoint.
func TCP(host string, port int) SocketEndpoint {
	return SocketEndpoint{Kind: EndpointTCP, Host: host, Port: port}
}

// String renders the endpoint as "tcp://host:port" or "unix:///path".
func (e SocketEndpoint) String() string {
	switch e.Kind {
	case EndpointTCP:
		return fmt.Sprintf("tcp://%s:%d", e.Host, e.Port)
	case EndpointUnix:
		return "unix://" + e.Path
	default:
		return "unknown://"
	}
}

// Validate checks that the endpoint is well-formed: the Unix variant
// must name a non-empty absolute path, and the TCP variant a non-empty
// host and a port in 1..65535. It does not touch the filesystem, so
// whether the socket's parent directory exists or can be created is not
// checked here.
func (e SocketEndpoint) Validate() error {
	switch e.Kind {
	case EndpointUnix:
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("unix socket path must not be empty")
		}
		if !strings.HasPrefix(e.Path, "/") {
			return fmt.Errorf("unix socket path must be absolute: %s", e.Path)
		}
		return nil
	case EndpointTCP:
		if strings.TrimSpace(e.Host) == "" {
			return fmt.Errorf("tcp host must not be empty")
		}
		if e.Port <= 0 || e.Port > 65535 {
			return fmt.Errorf("tcp port out of range: %d", e.Port)
		}
		return nil
	default:
		return fmt.Errorf("unknown endpoint kind %d", e.Kind)
	}
}

// LaunchMode selects whether the supervisor detaches from the terminal.
type LaunchMode int

const (
	// Background detaches from the controlling terminal.
	Background LaunchMode = iota
	// Foreground stays attached; used for tests and debugging.
	Foreground
)

// Config is the resolved value the core consumes. Building it from CLI
// flags and a config file is out of scope per spec.md §1.
type Config struct {
	Endpoint      SocketEndpoint
	Mode          LaunchMode
	WorkspaceRoot string

	// MaxHandlers is a requested handler-pool size, validated as
	// non-negative. The Socket Listener does not read it: its ceiling
	// is the fixed listener.MaxHandlers (128).
	MaxHandlers int

	// DiagnosticsCachePath is where the sqlite-backed diagnostics cache
	// (SPEC_FULL.md §D1) persists baseline diagnostic signatures. Empty
	// disables the cache.
	DiagnosticsCachePath string

	// EventStreamAddr, when non-empty, is the "host:port" the
	// supplementary WebSocket event stream (SPEC_FULL.md §D2) listens
	// on. Empty disables it.
	EventStreamAddr string
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Endpoint.Validate(); err != nil {
		return fmt.Errorf("invalid socket endpoint: %w", err)
	}
	if strings.TrimSpace(c.WorkspaceRoot) == "" {
		return fmt.Errorf("workspace root must not be empty")
	}
	if c.MaxHandlers < 0 {
		return fmt.Errorf("max handlers must not be negative, got %d", c.MaxHandlers)
	}
	return nil
}

// LoadFromEnvironment builds a Config from environment variables with
// sensible defaults, mirroring the env-var-with-defaults idiom used
// throughout this corpus (e.g. security config loaders). It is the seam
// cmd/weaverd and tests use in place of a full flag-parsing layer, which
// is out of scope per spec.md §1.
//
// Recognised variables:
//   - WEAVER_SOCKET: "unix:///path/to/sock" or "tcp://host:port"
//   - WEAVER_FOREGROUND: any value selects Foreground launch mode
//   - WEAVER_WORKSPACE: workspace root (defaults to the current directory)
//   - WEAVER_MAX_HANDLERS: sets Config.MaxHandlers (the listener's
//     fixed 128 handler cap is unaffected)
//   - WEAVER_DIAGNOSTICS_CACHE: path to the sqlite diagnostics cache
//   - WEAVER_EVENT_STREAM_ADDR: "host:port" for the event stream
func LoadFromEnvironment() (*Config, error) {
	cfg := &Config{
		Mode: Background,
	}

	endpoint, err := parseEndpoint(os.Getenv("WEAVER_SOCKET"))
	if err != nil {
		return nil, err
	}
	cfg.Endpoint = endpoint

	if os.Getenv("WEAVER_FOREGROUND") != "" {
		cfg.Mode = Foreground
	}

	workspace := os.Getenv("WEAVER_WORKSPACE")
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workspace = wd
	}
	cfg.WorkspaceRoot = workspace

	if v := os.Getenv("WEAVER_MAX_HANDLERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WEAVER_MAX_HANDLERS: %w", err)
		}
		cfg.MaxHandlers = n
	}

	cfg.DiagnosticsCachePath = os.Getenv("WEAVER_DIAGNOSTICS_CACHE")
	cfg.EventStreamAddr = os.Getenv("WEAVER_EVENT_STREAM_ADDR")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseEndpoint parses a "tcp://host:port" or "unix:///path" string. An
// empty string defaults to a Unix socket under the OS temp directory,
// matching the Runtime Paths fallback described in spec.md §4.2.
func parseEndpoint(raw string) (SocketEndpoint, error) {
	if raw == "" {
		return Unix(fmt.Sprintf("%s/weaver/weaverd.sock", os.TempDir())), nil
	}

	switch {
	case strings.HasPrefix(raw, "unix://"):
		return Unix(strings.TrimPrefix(raw, "unix://")), nil
	case strings.HasPrefix(raw, "tcp://"):
		rest := strings.TrimPrefix(raw, "tcp://")
		idx := strings.LastIndex(rest, ":")
		if idx < 0 {
			return SocketEndpoint{}, fmt.Errorf("tcp endpoint missing port: %s", raw)
		}
		port, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return SocketEndpoint{}, fmt.Errorf("invalid tcp port in %s: %w", raw, err)
		}
		return TCP(rest[:idx], port), nil
	default:
		return SocketEndpoint{}, fmt.Errorf("unrecognised socket endpoint %q (expected unix:// or tcp://)", raw)
	}
}
