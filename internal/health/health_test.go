package health

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaverd.health")
	want := Snapshot{Status: Ready, PID: 4242, Timestamp: 1700000000}

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaverd.health")
	if err := Write(path, Snapshot{Status: Starting, PID: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "weaverd.health" {
		t.Fatalf("expected only weaverd.health in dir, got %v", entries)
	}
}

func TestReadMissingFileIsNotExist(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.health"))
	if !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist error, got %v", err)
	}
}

func TestRemoveIgnoresNotFound(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(filepath.Join(dir, "missing.health")); err != nil {
		t.Errorf("expected nil error for missing file, got %v", err)
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaverd.health")
	if err := Write(path, Snapshot{Status: Stopping, PID: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed, stat err = %v", err)
	}
}
