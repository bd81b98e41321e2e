package persist

import (
	"path/filepath"
	"testing"
)

type testObject struct {
	Value int
}

func TestSaveLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	meta := Metadata{Header: "Test Object", Version: "1.0.0"}

	obj := testObject{Value: 42}
	if err := SaveFile(meta, obj, path); err != nil {
		t.Fatal(err)
	}

	var loaded testObject
	if err := LoadFile(meta, &loaded, path); err != nil {
		t.Fatal(err)
	}
	if loaded.Value != 42 {
		t.Fatalf("expected 42, got %d", loaded.Value)
	}
}

func TestLoadFileHeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	if err := SaveFile(Metadata{Header: "A", Version: "1.0.0"}, testObject{}, path); err != nil {
		t.Fatal(err)
	}
	var loaded testObject
	if err := LoadFile(Metadata{Header: "B", Version: "1.0.0"}, &loaded, path); err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	if !DirExists(dir) {
		t.Fatal("expected directory to exist")
	}
	if DirExists(filepath.Join(dir, "missing")) {
		t.Fatal("expected missing directory to not exist")
	}
}
