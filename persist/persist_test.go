package persist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	f := NewFile(path)
	v, err := f.Load()
	if err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}
	if v != 0 {
		t.Errorf("Load() on missing file = %d, want 0", v)
	}
	if err := f.Store(1); err != nil {
		t.Fatalf("Store(1): %v", err)
	}

	// A fresh File simulates a restart.
	v, err = NewFile(path).Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if v != 1 {
		t.Errorf("Load() after restart = %d, want 1", v)
	}
}

func TestFileSkipsUnchangedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	f := NewFile(path)
	if err := f.Store(2); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := f.Store(2); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("unchanged Store rewrote the file (stat err %v)", err)
	}
	if err := f.Store(0); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1 || b[0] != 0 {
		t.Errorf("file contents = %v, want [0]", b)
	}
}

func TestFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	v, err := NewFile(path).Load()
	if err != nil || v != 0 {
		t.Errorf("Load() on empty file = %d, %v; want 0, nil", v, err)
	}
}
