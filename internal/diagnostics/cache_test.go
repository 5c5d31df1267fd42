package diagnostics

import (
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagnostics.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := openTestCache(t)

	_, ok, err := c.Lookup("/src/main.rs", HashContent("fn main() {}"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Error("expected miss on empty cache")
	}
}

func TestStoreThenLookupHitsWithMatchingHash(t *testing.T) {
	c := openTestCache(t)

	content := "fn main() {}"
	hash := HashContent(content)
	sigs := []Signature{{Line: 2, Character: 4, Severity: 1, Message: "unused variable", Code: "E001"}}

	if err := c.Store("/src/main.rs", hash, sigs); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok, err := c.Lookup("/src/main.rs", hash)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after Store")
	}
	if len(got) != 1 || got[0].Message != "unused variable" {
		t.Errorf("got %+v, want one signature with message %q", got, "unused variable")
	}
}

func TestLookupMissesWhenContentHashChanged(t *testing.T) {
	c := openTestCache(t)

	if err := c.Store("/src/main.rs", HashContent("version one"), []Signature{{Message: "stale"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, ok, err := c.Lookup("/src/main.rs", HashContent("version two"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Error("expected miss when content hash no longer matches stored entry")
	}
}

func TestStoreOverwritesPriorEntryForSamePath(t *testing.T) {
	c := openTestCache(t)

	hash1 := HashContent("v1")
	if err := c.Store("/src/lib.rs", hash1, []Signature{{Message: "first"}}); err != nil {
		t.Fatalf("Store v1: %v", err)
	}

	hash2 := HashContent("v2")
	if err := c.Store("/src/lib.rs", hash2, []Signature{{Message: "second"}}); err != nil {
		t.Fatalf("Store v2: %v", err)
	}

	if _, ok, _ := c.Lookup("/src/lib.rs", hash1); ok {
		t.Error("expected the v1 hash to no longer be valid after overwrite")
	}
	got, ok, err := c.Lookup("/src/lib.rs", hash2)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || got[0].Message != "second" {
		t.Errorf("got %+v, ok=%v, want second entry", got, ok)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := openTestCache(t)

	hash := HashContent("content")
	if err := c.Store("/src/main.rs", hash, []Signature{{Message: "x"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Invalidate("/src/main.rs"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	_, ok, err := c.Lookup("/src/main.rs", hash)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Error("expected miss after Invalidate")
	}
}

func TestHashContentIsDeterministic(t *testing.T) {
	a := HashContent("same content")
	b := HashContent("same content")
	if a != b {
		t.Errorf("HashContent not deterministic: %q != %q", a, b)
	}
	if a == HashContent("different content") {
		t.Error("expected different content to hash differently")
	}
}
