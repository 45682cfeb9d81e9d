package macho

import (
	"context"
	"errors"
)

// Kind classifies a file by its Mach-O header type.
type Kind int

const (
	// KindOther covers regular files that are not loadable Mach-O binaries
	// (object files, scripts, data files).
	KindOther Kind = iota

	// KindExecutable is a main executable (MH_EXECUTE).
	KindExecutable

	// KindDylib is a shared library (MH_DYLIB).
	KindDylib
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindDylib:
		return "dylib"
	default:
		return "other"
	}
}

// ErrNotMachO reports that a file is not a Mach-O binary.
var ErrNotMachO = errors.New("not a Mach-O binary")

// Introspector reads dependency information from Mach-O load commands.
//
// All methods operate on a file path rather than a handle: binaries are
// re-read each convergence pass, so holding handles open buys nothing and
// risks stale views after patching.
type Introspector interface {
	// Kind reports whether path is a Mach-O executable, a dylib, or
	// something else. A file that cannot be parsed as Mach-O is KindOther
	// with ErrNotMachO.
	Kind(path string) (Kind, error)

	// Dependencies returns the raw dependency-reference tokens recorded in
	// path's load commands (LC_LOAD_DYLIB, LC_LOAD_WEAK_DYLIB,
	// LC_REEXPORT_DYLIB), in load-command order. Self-references are
	// filtered out.
	Dependencies(path string) ([]string, error)

	// Rpaths returns the rpath search entries (LC_RPATH) recorded in path's
	// load commands, in load-command order.
	Rpaths(path string) ([]string, error)

	// SelfIdentity returns the install name a dylib records for itself
	// (LC_ID_DYLIB), or "" when the binary carries none.
	SelfIdentity(path string) (string, error)
}

// Patcher mutates recorded references in a Mach-O binary.
type Patcher interface {
	// ChangeReference rewrites the dependency reference oldToken to
	// newToken in the binary at path.
	ChangeReference(ctx context.Context, path, oldToken, newToken string) error

	// SetSelfIdentity rewrites the self-identity (install name) of the
	// dylib at path.
	SetSelfIdentity(ctx context.Context, path, identity string) error
}
