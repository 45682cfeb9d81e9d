// Package testutil provides helpers for building fake library trees in
// tests, so tests never touch system library directories.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteLibrary creates a file at dir/name with the given content, making
// parent directories as needed, and returns its path.
func WriteLibrary(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create library directory %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write library %s: %v", path, err)
	}
	return path
}

// WriteChain creates a versioned library with its symlink chain in dir.
// The last name is the terminal regular file; each earlier name becomes a
// relative symlink to the name after it, the way install trees version
// dylibs (libfoo.dylib -> libfoo.1.dylib -> libfoo.1.2.3.dylib).
// It returns the path of the first (outermost) name.
func WriteChain(t *testing.T, dir string, names ...string) string {
	t.Helper()

	if len(names) == 0 {
		t.Fatal("WriteChain needs at least one name")
	}

	terminal := names[len(names)-1]
	WriteLibrary(t, dir, terminal, terminal)

	for i := len(names) - 2; i >= 0; i-- {
		link := filepath.Join(dir, names[i])
		if err := os.Symlink(names[i+1], link); err != nil {
			t.Fatalf("failed to link %s -> %s: %v", link, names[i+1], err)
		}
	}

	return filepath.Join(dir, names[0])
}
