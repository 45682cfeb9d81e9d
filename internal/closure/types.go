// Package closure walks the dependency graph of a Mach-O binary, collecting
// every library the bundle must carry and every reference that must be
// rewritten.
package closure

import "sort"

// Reference is one dependency reference recorded in an owning binary that
// needs rewriting.
type Reference struct {
	Token string // raw token as recorded in the load command
	Path  string // resolved source path of the referenced library
}

// Result is the outcome of one walk.
type Result struct {
	// Libraries are the resolved paths of every bundlable library found,
	// sorted and deduplicated by canonical path.
	Libraries []string

	// Refs maps each visited binary to the references in it that need
	// rewriting, in load-command order.
	Refs map[string][]Reference

	// System are the system-library paths encountered, sorted. They are
	// recorded for reporting and never traversed.
	System []string

	// Missing are resolved paths that do not exist on disk, sorted. Their
	// references are left untouched so the gap stays visible.
	Missing []string

	// Unresolved are @rpath tokens that could not be resolved because the
	// owning binary records no rpath entries, sorted.
	Unresolved []string

	// Warnings are human-readable notes accumulated during the walk.
	Warnings []string
}

func newResult() *Result {
	return &Result{Refs: make(map[string][]Reference)}
}

// finish sorts the set-valued fields for stable output.
func (r *Result) finish() {
	sort.Strings(r.Libraries)
	sort.Strings(r.System)
	sort.Strings(r.Missing)
	sort.Strings(r.Unresolved)
}
