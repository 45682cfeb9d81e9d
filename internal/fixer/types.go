// Package fixer drives the walk, copy, and rewrite passes that make an
// application bundle self-contained, repeating until the bundle settles.
package fixer

import (
	"errors"

	"github.com/ZebulonRouseFrantzich/machport/internal/resolve"
)

// ErrRootMissing indicates the root binary to fix does not exist. It is the
// one failure the command exits nonzero for.
var ErrRootMissing = errors.New("root binary does not exist")

// ResidualRef is a reference that still points outside the bundle after the
// final pass.
type ResidualRef struct {
	Binary string
	Token  string
	Path   string
	Class  resolve.Classification
}

// Report summarizes one run.
type Report struct {
	Passes    int
	Converged bool
	DryRun    bool

	// Copied are the terminal basenames materialized into the bundle over
	// all passes, sorted. In a dry run these are the copies that would
	// have been made.
	Copied []string

	// Mutations counts reference and identity rewrites over all passes.
	Mutations int

	// System are system-library paths the bundle keeps depending on.
	System []string

	// Missing are referenced source paths that do not exist.
	Missing []string

	// Unresolved are @rpath tokens whose owners record no rpath entries.
	Unresolved []string

	// Residual are references the final verification walk found still
	// pointing outside the bundle.
	Residual []ResidualRef

	Warnings []string
}
