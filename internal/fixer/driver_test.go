package fixer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/journal"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
	"github.com/ZebulonRouseFrantzich/machport/internal/testutil"
)

// fixEnv builds a bundle directory, a package-prefix directory full of
// source libraries, and a fake tool whose records are shared between a
// source library and its bundled copy.
type fixEnv struct {
	dir    string
	bundle string
	root   string
	tool   *macho.FakeTool
	cfg    *config.Config
}

func newFixEnv(t *testing.T) *fixEnv {
	t.Helper()
	dir := t.TempDir()
	env := &fixEnv{
		dir:    dir,
		bundle: filepath.Join(dir, "bundle"),
		root:   filepath.Join(dir, "bundle", "app"),
		tool:   macho.NewFakeTool(),
		cfg:    config.Default(),
	}
	env.cfg.Prefixes = config.Prefixes{
		Bad:    []string{filepath.Join(dir, "pkg")},
		System: []string{filepath.Join(dir, "sys")},
	}
	if err := os.MkdirAll(env.bundle, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.root, []byte("app"), 0o755); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *fixEnv) lib(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(e.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *fixEnv) driver() *Driver {
	return NewDriver(e.tool, e.tool, e.cfg)
}

func TestFixConvergesOnTransitiveClosure(t *testing.T) {
	env := newFixEnv(t)
	libA := env.lib(t, "pkg/lib/libA.dylib")
	libB := env.lib(t, "pkg/lib/libB.dylib")
	sys := filepath.Join(env.dir, "sys", "libSystem.dylib")

	env.tool.Add("app", macho.FakeBinary{
		Kind: macho.KindExecutable,
		Deps: []string{libA, sys},
	})
	env.tool.Add("libA.dylib", macho.FakeBinary{
		Kind:     macho.KindDylib,
		Identity: libA,
		Deps:     []string{libB, sys},
	})
	env.tool.Add("libB.dylib", macho.FakeBinary{
		Kind:     macho.KindDylib,
		Identity: libB,
	})

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}

	if !report.Converged {
		t.Error("Converged = false")
	}
	if len(report.Copied) != 2 {
		t.Errorf("Copied = %v, want libA and libB", report.Copied)
	}
	for _, name := range []string{"libA.dylib", "libB.dylib"} {
		if _, err := os.Stat(filepath.Join(env.bundle, name)); err != nil {
			t.Errorf("%s not in bundle: %v", name, err)
		}
	}

	// The root's reference was rewritten to a bundle-anchored token.
	appDeps := env.tool.Binaries["app"].Deps
	if appDeps[0] != "@executable_path/libA.dylib" {
		t.Errorf("app deps = %v", appDeps)
	}
	// The system reference was left alone.
	if appDeps[1] != sys {
		t.Errorf("system reference was touched: %v", appDeps)
	}

	// The bundled copy's own reference was rewritten on a later pass.
	libADeps := env.tool.Binaries["libA.dylib"].Deps
	if libADeps[0] != "@executable_path/libB.dylib" {
		t.Errorf("libA deps = %v", libADeps)
	}

	// Bundled dylibs carry bundle-anchored identities.
	if got := env.tool.Binaries["libA.dylib"].Identity; got != "@executable_path/libA.dylib" {
		t.Errorf("libA identity = %q", got)
	}
	if got := env.tool.Binaries["libB.dylib"].Identity; got != "@executable_path/libB.dylib" {
		t.Errorf("libB identity = %q", got)
	}

	if len(report.Residual) != 0 {
		t.Errorf("Residual = %v, want none", report.Residual)
	}
	if len(report.System) != 1 || report.System[0] != sys {
		t.Errorf("System = %v", report.System)
	}
	if report.Passes < 2 {
		t.Errorf("Passes = %d, want at least 2 for a transitive closure", report.Passes)
	}
}

func TestFixSecondRunIsNoop(t *testing.T) {
	env := newFixEnv(t)
	libA := env.lib(t, "pkg/lib/libA.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{libA}})
	env.tool.Add("libA.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: libA})

	if _, err := env.driver().Fix(context.Background(), env.root); err != nil {
		t.Fatalf("first Fix: %v", err)
	}

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("second Fix: %v", err)
	}
	if !report.Converged || report.Passes != 1 {
		t.Errorf("second run: Converged=%v Passes=%d, want settled in one pass", report.Converged, report.Passes)
	}
	if report.Mutations != 0 || len(report.Copied) != 0 {
		t.Errorf("second run did work: mutations=%d copied=%v", report.Mutations, report.Copied)
	}
}

func TestFixRemapsSymlinkReferences(t *testing.T) {
	env := newFixEnv(t)
	libDir := filepath.Join(env.dir, "pkg", "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	outer := testutil.WriteChain(t, libDir, "libfoo.dylib", "libfoo.1.dylib", "libfoo.1.2.3.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{outer}})
	for _, base := range []string{"libfoo.dylib", "libfoo.1.dylib", "libfoo.1.2.3.dylib"} {
		env.tool.Add(base, macho.FakeBinary{Kind: macho.KindDylib, Identity: filepath.Join(libDir, base)})
	}

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if !report.Converged {
		t.Error("Converged = false")
	}

	// The reference named the outermost link but is rewritten to the
	// terminal file, and the chain itself is recreated in the bundle.
	if got := env.tool.Binaries["app"].Deps[0]; got != "@executable_path/libfoo.1.2.3.dylib" {
		t.Errorf("app deps = %v", env.tool.Binaries["app"].Deps)
	}
	link, err := os.Readlink(filepath.Join(env.bundle, "libfoo.dylib"))
	if err != nil {
		t.Fatal(err)
	}
	if link != "libfoo.1.dylib" {
		t.Errorf("bundle libfoo.dylib -> %q", link)
	}
	if _, err := os.Stat(filepath.Join(env.bundle, "libfoo.1.2.3.dylib")); err != nil {
		t.Errorf("terminal file not bundled: %v", err)
	}
	if len(report.Copied) != 1 || report.Copied[0] != "libfoo.1.2.3.dylib" {
		t.Errorf("Copied = %v, want the terminal only", report.Copied)
	}
}

func TestFixUnresolvedRpathLenient(t *testing.T) {
	env := newFixEnv(t)
	libA := env.lib(t, "pkg/lib/libA.dylib")

	env.tool.Add("app", macho.FakeBinary{
		Kind: macho.KindExecutable,
		Deps: []string{"@rpath/libmystery.dylib", libA},
	})
	env.tool.Add("libA.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: libA})

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}

	// The default policy warns about the unresolvable reference, leaves it
	// alone, and still fixes everything else.
	if !report.Converged {
		t.Error("Converged = false")
	}
	if len(report.Unresolved) != 1 || report.Unresolved[0] != "@rpath/libmystery.dylib" {
		t.Errorf("Unresolved = %v", report.Unresolved)
	}
	if got := env.tool.Binaries["app"].Deps[0]; got != "@rpath/libmystery.dylib" {
		t.Errorf("unresolved reference was touched: %v", env.tool.Binaries["app"].Deps)
	}
	if got := env.tool.Binaries["app"].Deps[1]; got != "@executable_path/libA.dylib" {
		t.Errorf("libA reference not rewritten: %v", env.tool.Binaries["app"].Deps)
	}
}

func TestFixMissingRootIsFatal(t *testing.T) {
	env := newFixEnv(t)

	_, err := env.driver().Fix(context.Background(), filepath.Join(env.bundle, "gone"))
	if !errors.Is(err, ErrRootMissing) {
		t.Fatalf("err = %v, want ErrRootMissing", err)
	}
}

func TestFixMissingLibraryIsReported(t *testing.T) {
	env := newFixEnv(t)
	gone := filepath.Join(env.dir, "pkg", "lib", "libgone.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{gone}})

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if !report.Converged {
		t.Error("Converged = false")
	}
	if len(report.Missing) != 1 || report.Missing[0] != gone {
		t.Errorf("Missing = %v", report.Missing)
	}
	// The dangling reference stays visible rather than being rewritten.
	if got := env.tool.Binaries["app"].Deps[0]; got != gone {
		t.Errorf("app deps = %v, want reference untouched", got)
	}
}

func TestFixDryRunTouchesNothing(t *testing.T) {
	env := newFixEnv(t)
	libA := env.lib(t, "pkg/lib/libA.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{libA}})
	env.tool.Add("libA.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: libA})

	report, err := env.driver().WithDryRun(true).Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}

	if !report.DryRun {
		t.Error("DryRun = false")
	}
	if len(report.Copied) != 1 || report.Copied[0] != "libA.dylib" {
		t.Errorf("Copied = %v, want planned copy of libA", report.Copied)
	}
	if report.Mutations == 0 {
		t.Error("Mutations = 0, want planned rewrites counted")
	}

	if _, err := os.Stat(filepath.Join(env.bundle, "libA.dylib")); !os.IsNotExist(err) {
		t.Error("dry run copied a file")
	}
	if len(env.tool.Changes) != 0 || len(env.tool.IdentitySets) != 0 {
		t.Errorf("dry run patched: changes=%v identities=%v", env.tool.Changes, env.tool.IdentitySets)
	}
	if got := env.tool.Binaries["app"].Deps[0]; got != libA {
		t.Errorf("app deps = %v, want untouched", got)
	}
}

func TestFixPatchFailureIsIsolated(t *testing.T) {
	env := newFixEnv(t)
	libA := env.lib(t, "pkg/lib/libA.dylib")
	libB := env.lib(t, "pkg/lib/libB.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{libA, libB}})
	env.tool.Add("libA.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: "@executable_path/libA.dylib"})
	env.tool.Add("libB.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: "@executable_path/libB.dylib"})
	env.tool.FailChange[libA] = errors.New("tool exploded")

	report, err := env.driver().Fix(context.Background(), env.root)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}

	// libB's rewrite still happened.
	if got := env.tool.Binaries["app"].Deps[1]; got != "@executable_path/libB.dylib" {
		t.Errorf("app deps = %v, want libB rewritten", env.tool.Binaries["app"].Deps)
	}
	// The failure shows up as a warning and as a residual reference.
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "tool exploded") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want the patch failure surfaced", report.Warnings)
	}
	if len(report.Residual) == 0 {
		t.Error("Residual empty, want the unrewritten reference reported")
	}
}

func TestFixUnresolvedRpathStrict(t *testing.T) {
	env := newFixEnv(t)
	env.cfg.Options.StrictRpath = true

	env.tool.Add("app", macho.FakeBinary{
		Kind: macho.KindExecutable,
		Deps: []string{"@rpath/libdep.dylib"},
	})

	_, err := env.driver().Fix(context.Background(), env.root)
	if err == nil {
		t.Fatal("Fix succeeded, want strict rpath failure")
	}
}

func TestFixHonorsLock(t *testing.T) {
	env := newFixEnv(t)
	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable})

	lock, err := journal.AcquireLock(env.bundle)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if _, err := env.driver().Fix(context.Background(), env.root); !errors.Is(err, journal.ErrLockExists) {
		t.Fatalf("err = %v, want ErrLockExists", err)
	}
}

func TestFixWritesJournal(t *testing.T) {
	env := newFixEnv(t)
	journalDir := filepath.Join(env.dir, "journal")
	libA := env.lib(t, "pkg/lib/libA.dylib")

	env.tool.Add("app", macho.FakeBinary{Kind: macho.KindExecutable, Deps: []string{libA}})
	env.tool.Add("libA.dylib", macho.FakeBinary{Kind: macho.KindDylib, Identity: libA})

	if _, err := env.driver().WithJournalDir(journalDir).Fix(context.Background(), env.root); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	entries, err := os.ReadDir(journalDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("journal entries = %v, err = %v", entries, err)
	}
	run, err := journal.Load(filepath.Join(journalDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if run.Outcome != journal.OutcomeConverged {
		t.Errorf("Outcome = %q", run.Outcome)
	}
	if len(run.Passes) == 0 {
		t.Error("no passes recorded")
	}
}
