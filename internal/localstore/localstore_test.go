package localstore

import (
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory()

	if got := m.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}

	m.Set("codes", `["A","B"]`)
	if got := m.Get("codes"); got != `["A","B"]` {
		t.Errorf("Get = %q", got)
	}

	m.Remove("codes")
	if got := m.Get("codes"); got != "" {
		t.Errorf("Get after remove = %q", got)
	}
}

func TestDirStore(t *testing.T) {
	d := NewDir(t.TempDir())

	if got := d.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}

	d.Set("personalListCodes", `["A"]`)
	if got := d.Get("personalListCodes"); got != `["A"]` {
		t.Errorf("Get = %q", got)
	}

	d.Set("personalListCodes", `["A","B"]`)
	if got := d.Get("personalListCodes"); got != `["A","B"]` {
		t.Errorf("Get after overwrite = %q", got)
	}

	d.Remove("personalListCodes")
	if got := d.Get("personalListCodes"); got != "" {
		t.Errorf("Get after remove = %q", got)
	}
	// Double remove is a no-op, not a crash.
	d.Remove("personalListCodes")
}

func TestDirStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	NewDir(dir).Set("codes", "value")
	if got := NewDir(dir).Get("codes"); got != "value" {
		t.Errorf("reopened Get = %q", got)
	}
}

func TestDirStoreFlattensKeySeparators(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)

	d.Set("../escape", "x")
	if got := d.Get("../escape"); got != "x" {
		t.Errorf("Get = %q", got)
	}
	// The value must live inside the store directory, not beside it.
	if got := d.Get(filepath.Join("..", "escape")); got != "x" {
		t.Errorf("flattened key did not round-trip: %q", got)
	}
}

func TestDirStoreUnavailableHost(t *testing.T) {
	// Point at an uncreatable path: everything degrades to no-ops.
	d := NewDir(filepath.Join("/dev/null", "nope"))

	d.Set("codes", "value")
	if got := d.Get("codes"); got != "" {
		t.Errorf("Get on unavailable store = %q", got)
	}
	d.Remove("codes")
}
