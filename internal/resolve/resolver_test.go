package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
)

func testPolicy() *Policy {
	return NewPolicy(config.Default().Prefixes)
}

// touch creates an empty file, making any parent directories.
func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveAbsolute(t *testing.T) {
	tool := macho.NewFakeTool()
	r := NewResolver(tool, testPolicy())

	got, err := r.Resolve("/usr/local/lib/libfoo.dylib", "/app/bin/app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Path != "/usr/local/lib/libfoo.dylib" {
		t.Errorf("Path = %q", got.Path)
	}
	if got.Class != ClassBad {
		t.Errorf("Class = %v, want ClassBad", got.Class)
	}
}

func TestResolveExecutablePathPassesThrough(t *testing.T) {
	tool := macho.NewFakeTool()
	r := NewResolver(tool, testPolicy())

	token := "@executable_path/libfoo.dylib"
	got, err := r.Resolve(token, "/app/bin/app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Path != token {
		t.Errorf("Path = %q, want token unchanged", got.Path)
	}
	if got.Class != ClassPortable {
		t.Errorf("Class = %v, want ClassPortable", got.Class)
	}
}

func TestResolveLoaderPath(t *testing.T) {
	tool := macho.NewFakeTool()
	r := NewResolver(tool, testPolicy())

	got, err := r.Resolve("@loader_path/../lib/libdep.dylib", "/build/out/bin/libowner.dylib")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "/build/out/lib/libdep.dylib"
	if got.Path != want {
		t.Errorf("Path = %q, want %q", got.Path, want)
	}
	if got.Class != ClassLocal {
		t.Errorf("Class = %v, want ClassLocal", got.Class)
	}
}

func TestResolveRpathProbesEntriesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	touch(t, filepath.Join(second, "libdep.dylib"))

	tool := macho.NewFakeTool()
	tool.Add("app", macho.FakeBinary{
		Kind:   macho.KindExecutable,
		Rpaths: []string{first, second},
	})
	r := NewResolver(tool, testPolicy())

	got, err := r.Resolve("@rpath/libdep.dylib", filepath.Join(dir, "app"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(second, "libdep.dylib")
	if got.Path != want {
		t.Errorf("Path = %q, want %q", got.Path, want)
	}
	if got.Class != ClassLocal {
		t.Errorf("Class = %v, want ClassLocal", got.Class)
	}
}

func TestResolveRpathFallsBackToFirstEntry(t *testing.T) {
	tool := macho.NewFakeTool()
	tool.Add("app", macho.FakeBinary{
		Kind:   macho.KindExecutable,
		Rpaths: []string{"/nowhere/one", "/nowhere/two"},
	})
	r := NewResolver(tool, testPolicy())

	got, err := r.Resolve("@rpath/libdep.dylib", "/tmp/app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "/nowhere/one/libdep.dylib"
	if got.Path != want {
		t.Errorf("Path = %q, want first-entry guess %q", got.Path, want)
	}
}

func TestResolveRpathExpandsLoaderRelativeEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Frameworks", "libdep.dylib"))

	tool := macho.NewFakeTool()
	tool.Add("app", macho.FakeBinary{
		Kind:   macho.KindExecutable,
		Rpaths: []string{"@loader_path/Frameworks"},
	})
	r := NewResolver(tool, testPolicy())

	got, err := r.Resolve("@rpath/libdep.dylib", filepath.Join(dir, "app"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(dir, "Frameworks", "libdep.dylib")
	if got.Path != want {
		t.Errorf("Path = %q, want %q", got.Path, want)
	}
}

func TestResolveRpathNoEntries(t *testing.T) {
	tool := macho.NewFakeTool()
	tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable})
	r := NewResolver(tool, testPolicy())

	_, err := r.Resolve("@rpath/libdep.dylib", "/tmp/app")
	var unresolved *UnresolvedRpathError
	if !errors.As(err, &unresolved) {
		t.Fatalf("err = %v, want *UnresolvedRpathError", err)
	}
	if unresolved.Token != "@rpath/libdep.dylib" {
		t.Errorf("Token = %q", unresolved.Token)
	}
	if unresolved.Binary != "/tmp/app" {
		t.Errorf("Binary = %q", unresolved.Binary)
	}
}

func TestResolveRpathIntrospectionFailure(t *testing.T) {
	tool := macho.NewFakeTool()
	r := NewResolver(tool, testPolicy())

	_, err := r.Resolve("@rpath/libdep.dylib", "/tmp/unknown")
	if !errors.Is(err, macho.ErrNotMachO) {
		t.Fatalf("err = %v, want wrapped ErrNotMachO", err)
	}
}
