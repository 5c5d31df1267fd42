package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/weaverlang/weaver/internal/health"
	"github.com/weaverlang/weaver/internal/paths"
)

func testPaths(t *testing.T) *paths.RuntimePaths {
	t.Helper()
	dir := t.TempDir()
	return &paths.RuntimePaths{
		RuntimeDir: dir,
		LockPath:   filepath.Join(dir, "weaverd.lock"),
		PidPath:    filepath.Join(dir, "weaverd.pid"),
		HealthPath: filepath.Join(dir, "weaverd.health"),
	}
}

func TestAcquireFreshLock(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	if _, err := os.Stat(rp.LockPath); err != nil {
		t.Errorf("expected lock file to exist: %v", err)
	}
}

func TestAcquireSecondCallFailsStartupInProgress(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	_, err = Acquire(rp)
	if _, ok := err.(*StartupInProgressError); !ok {
		t.Fatalf("expected *StartupInProgressError, got %v (%T)", err, err)
	}
}

func TestAcquireAlreadyRunning(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	if err := g.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	_, err = Acquire(rp)
	are, ok := err.(*AlreadyRunningError)
	if !ok {
		t.Fatalf("expected *AlreadyRunningError, got %v (%T)", err, err)
	}
	if are.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", are.PID, os.Getpid())
	}
}

func TestAcquireRecoversStaleLock(t *testing.T) {
	rp := testPaths(t)
	if err := os.MkdirAll(rp.RuntimeDir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(rp.LockPath, nil, 0o600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}
	if err := writePIDFile(rp.PidPath, 999999999); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("expected stale lock recovery to succeed, got %v", err)
	}
	defer g.Release()
}

func TestWriteHealthBeforeWritePIDFails(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	if err := g.WriteHealth(health.Ready); err == nil {
		t.Error("expected error writing health before pid")
	}
}

func TestReleaseRemovesAllArtifacts(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := g.WriteHealth(health.Ready); err != nil {
		t.Fatalf("WriteHealth: %v", err)
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	for _, p := range []string{rp.LockPath, rp.PidPath, rp.HealthPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed, stat err = %v", p, err)
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	rp := testPaths(t)
	g, err := Acquire(rp)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestStartupInProgressNeverDeletesLock(t *testing.T) {
	rp := testPaths(t)
	if err := os.MkdirAll(rp.RuntimeDir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(rp.LockPath, nil, 0o600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}
	// pid_path intentionally absent: another launch is racing us.

	if _, err := Acquire(rp); err == nil {
		t.Fatal("expected StartupInProgressError")
	}
	if _, err := os.Stat(rp.LockPath); err != nil {
		t.Errorf("lock file must survive a StartupInProgress failure: %v", err)
	}
}
