package corrid

import "testing"

func TestNewProducesDistinctSortableIDs(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatal("expected distinct IDs on successive calls")
	}
	if len(a) != 26 || len(b) != 26 {
		t.Errorf("expected 26-character ULIDs, got %q (%d) and %q (%d)", a, len(a), b, len(b))
	}
	if a >= b {
		t.Errorf("expected monotonically increasing IDs, got %q then %q", a, b)
	}
}
