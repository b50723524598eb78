package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()

	if Exists(filepath.Join(dir, "missing")) {
		t.Error("Exists returned true for a missing path")
	}

	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !Exists(path) {
		t.Error("Exists returned false for an existing file")
	}
	if !Exists(dir) {
		t.Error("Exists returned false for an existing directory")
	}
}

func TestIsFile(t *testing.T) {
	dir := t.TempDir()

	if IsFile(dir) {
		t.Error("IsFile returned true for a directory")
	}

	path := filepath.Join(dir, "f")
	if IsFile(path) {
		t.Error("IsFile returned true for a missing path")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !IsFile(path) {
		t.Error("IsFile returned false for a regular file")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("content mismatch: got %q, want %q", got, "first")
	}

	// Overwrite and check replacement is complete.
	if err := WriteFileAtomic(path, []byte("second version"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second version" {
		t.Errorf("content mismatch after overwrite: got %q", got)
	}

	// No temp files should remain.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in dir, found %d", len(entries))
	}
}
