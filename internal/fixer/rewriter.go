package fixer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/machport/internal/bundle"
	"github.com/ZebulonRouseFrantzich/machport/internal/closure"
	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
)

const portablePrefix = "@executable_path/"

// Rewriter applies load-command rewrites to binaries in the target
// directory, elevating write permission only for the duration of each
// mutation.
type Rewriter struct {
	patcher macho.Patcher
	intro   macho.Introspector
	logger  config.Logger
	dryRun  bool
}

// NewRewriter creates a rewriter over the given introspector and patcher.
func NewRewriter(intro macho.Introspector, patcher macho.Patcher) *Rewriter {
	return &Rewriter{intro: intro, patcher: patcher, logger: config.DefaultLogger()}
}

// WithLogger sets the logger and returns the rewriter.
func (r *Rewriter) WithLogger(logger config.Logger) *Rewriter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithDryRun makes the rewriter count mutations without applying them.
func (r *Rewriter) WithDryRun(dryRun bool) *Rewriter {
	r.dryRun = dryRun
	return r
}

// RewriteReferences rewrites each reference in binary to the bundle name
// the manifest maps it to, falling back to the reference's own basename
// when no remapping was recorded. All mutations for the binary run inside
// one write-permission scope. It returns the number of mutations applied
// and any per-reference warnings; a failed rewrite is reported and skipped
// so the rest of the binary still gets fixed.
func (r *Rewriter) RewriteReferences(ctx context.Context, binary string, refs []closure.Reference, manifest *bundle.Manifest) (int, []string) {
	type change struct {
		old, new string
	}
	var pending []change

	for _, ref := range refs {
		base := filepath.Base(ref.Path)
		terminal, ok := manifest.Resolve(base)
		if !ok {
			terminal = base
		}
		newToken := portablePrefix + terminal
		if ref.Token == newToken {
			continue
		}
		pending = append(pending, change{old: ref.Token, new: newToken})
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if r.dryRun {
		for _, c := range pending {
			r.logger.Info("would rewrite reference", "binary", binary, "old", c.old, "new", c.new)
		}
		return len(pending), nil
	}

	mutations := 0
	var warnings []string
	err := r.withOwnerWrite(binary, func() error {
		for _, c := range pending {
			if patchErr := r.patcher.ChangeReference(ctx, binary, c.old, c.new); patchErr != nil {
				warnings = append(warnings, fmt.Sprintf("rewrite %s in %s: %v", c.old, binary, patchErr))
				r.logger.Error("reference rewrite failed", "binary", binary, "token", c.old, "error", patchErr)
				continue
			}
			r.logger.Debug("rewrote reference", "binary", binary, "old", c.old, "new", c.new)
			mutations++
		}
		return nil
	})
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("prepare %s for rewrite: %v", binary, err))
	}

	return mutations, warnings
}

// EnsureIdentity anchors a bundled dylib's install name to the bundle when
// it is not anchored already.
func (r *Rewriter) EnsureIdentity(ctx context.Context, dylib string) (int, []string) {
	current, err := r.intro.SelfIdentity(dylib)
	if err != nil {
		return 0, []string{fmt.Sprintf("read identity of %s: %v", dylib, err)}
	}
	if strings.HasPrefix(current, portablePrefix) {
		return 0, nil
	}

	want := portablePrefix + filepath.Base(dylib)
	if r.dryRun {
		r.logger.Info("would set identity", "binary", dylib, "identity", want)
		return 1, nil
	}

	err = r.withOwnerWrite(dylib, func() error {
		return r.patcher.SetSelfIdentity(ctx, dylib, want)
	})
	if err != nil {
		warning := fmt.Sprintf("set identity of %s: %v", dylib, err)
		r.logger.Error("identity rewrite failed", "binary", dylib, "error", err)
		return 0, []string{warning}
	}

	r.logger.Debug("set identity", "binary", dylib, "identity", want)
	return 1, nil
}

// withOwnerWrite runs fn with the owner-write bit set on path, restoring
// the original mode whether or not fn succeeds.
func (r *Rewriter) withOwnerWrite(path string, fn func() error) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	mode := info.Mode().Perm()
	if mode&0o200 == 0 {
		if err := os.Chmod(path, mode|0o200); err != nil {
			return fmt.Errorf("make %s writable: %w", path, err)
		}
		defer func() {
			if restoreErr := os.Chmod(path, mode); restoreErr != nil {
				r.logger.Warn("could not restore mode", "path", path, "error", restoreErr)
			}
		}()
	}

	return fn()
}
