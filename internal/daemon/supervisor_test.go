package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/health"
)

func TestSupervisorRunReachesReadyThenShutsDownCleanly(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "weaverd.sock")
	cfg := &config.Config{Endpoint: config.Unix(sock), Mode: config.Foreground, WorkspaceRoot: dir}

	sup := New(cfg, nil, func(conn net.Conn) { _ = conn.Close() })

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(context.Background()) }()

	waitForFile(t, filepath.Join(dir, "weaverd.health"))
	snap := waitForStatus(t, filepath.Join(dir, "weaverd.health"), health.Ready)
	if snap.PID == 0 {
		t.Errorf("expected non-zero pid in ready snapshot")
	}

	sup.Shutdown()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	for _, name := range []string{"weaverd.lock", "weaverd.pid", "weaverd.health"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			t.Errorf("expected %s to be removed after shutdown", name)
		}
	}
}

func TestSupervisorBootstrapFailureAbortsBeforeListening(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "weaverd.sock")
	cfg := &config.Config{Endpoint: config.Unix(sock), Mode: config.Foreground, WorkspaceRoot: dir}

	bootErr := &boomError{}
	sup := New(cfg, func(ctx context.Context) error { return bootErr }, func(conn net.Conn) { _ = conn.Close() })

	err := sup.Run(context.Background())
	if err == nil {
		t.Fatal("expected bootstrap failure to abort Run")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "weaverd.lock")); statErr == nil {
		t.Error("expected lock file to be cleaned up after bootstrap failure")
	}
	if _, statErr := os.Stat(sock); statErr == nil {
		t.Error("expected no socket to be bound after bootstrap failure")
	}
}

type boomError struct{}

func (*boomError) Error() string { return "bootstrap boom" }

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file %s did not appear before deadline", path)
}

func waitForStatus(t *testing.T, path string, want health.Status) health.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := health.Read(path)
		if err == nil && snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("health file at %s never reached status %s", path, want)
	return health.Snapshot{}
}

func TestSupervisorInvokesOnHealthTransitionHook(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "weaverd.sock")
	cfg := &config.Config{Endpoint: config.Unix(sock), Mode: config.Foreground, WorkspaceRoot: dir}

	sup := New(cfg, nil, func(conn net.Conn) { _ = conn.Close() })

	var mu sync.Mutex
	var seen []health.Status
	sup.OnHealthTransition = func(status health.Status) {
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(context.Background()) }()

	waitForStatus(t, filepath.Join(dir, "weaverd.health"), health.Ready)
	sup.Shutdown()

	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []health.Status{health.Starting, health.Ready, health.Stopping}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i, status := range want {
		if seen[i] != status {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i], status)
		}
	}
}
