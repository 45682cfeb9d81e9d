package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
)

// Token prefixes recognized in recorded dependency references.
const (
	tokenRpath          = "@rpath/"
	tokenLoaderPath     = "@loader_path/"
	tokenExecutablePath = "@executable_path/"
)

// UnresolvedRpathError reports an @rpath token on a binary that records no
// rpath entries, so no candidate path can be formed.
type UnresolvedRpathError struct {
	Binary string
	Token  string
}

func (e *UnresolvedRpathError) Error() string {
	return fmt.Sprintf("%s references %s but records no rpath entries", e.Binary, e.Token)
}

// Resolved is the outcome of resolving one dependency-reference token.
type Resolved struct {
	Token string         // raw token as recorded in the binary
	Path  string         // resolved absolute path (the token itself when portable)
	Class Classification // policy classification of Path
}

// Resolver resolves dependency-reference tokens for an owning binary.
type Resolver struct {
	intro  macho.Introspector
	policy *Policy
	logger config.Logger
}

// NewResolver creates a resolver over the given introspector and policy.
func NewResolver(intro macho.Introspector, policy *Policy) *Resolver {
	return &Resolver{intro: intro, policy: policy, logger: config.DefaultLogger()}
}

// WithLogger sets the logger and returns the resolver.
func (r *Resolver) WithLogger(logger config.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve turns a raw token recorded in owner into a concrete path and
// classification.
//
//   - @executable_path/... passes through unresolved and portable; it is
//     already anchored to the bundle.
//   - @rpath/... probes the owner's rpath entries in order for an existing
//     candidate, falling back to the first entry when none exists. The
//     fallback is a guess, not loader-accurate search order.
//   - @loader_path/... resolves relative to the owner's directory.
//   - Absolute paths are used as-is.
func (r *Resolver) Resolve(token, owner string) (Resolved, error) {
	switch {
	case strings.HasPrefix(token, tokenExecutablePath):
		return Resolved{Token: token, Path: token, Class: ClassPortable}, nil

	case strings.HasPrefix(token, tokenRpath):
		return r.resolveRpath(token, owner)

	case strings.HasPrefix(token, tokenLoaderPath):
		path := filepath.Join(filepath.Dir(owner), strings.TrimPrefix(token, tokenLoaderPath))
		return Resolved{Token: token, Path: path, Class: r.policy.Classify(path, token)}, nil

	default:
		return Resolved{Token: token, Path: token, Class: r.policy.Classify(token, token)}, nil
	}
}

func (r *Resolver) resolveRpath(token, owner string) (Resolved, error) {
	rpaths, err := r.intro.Rpaths(owner)
	if err != nil {
		return Resolved{}, fmt.Errorf("read rpath entries of %s: %w", owner, err)
	}
	if len(rpaths) == 0 {
		return Resolved{}, &UnresolvedRpathError{Binary: owner, Token: token}
	}

	rest := strings.TrimPrefix(token, tokenRpath)
	ownerDir := filepath.Dir(owner)

	candidates := make([]string, 0, len(rpaths))
	for _, entry := range rpaths {
		// Entries themselves may be token-relative; anchor them to the
		// owner the way the loader would.
		if strings.HasPrefix(entry, tokenLoaderPath) {
			entry = filepath.Join(ownerDir, strings.TrimPrefix(entry, tokenLoaderPath))
		}
		candidates = append(candidates, filepath.Join(entry, rest))
	}

	for _, candidate := range candidates {
		if _, statErr := os.Stat(candidate); statErr == nil {
			return Resolved{Token: token, Path: candidate, Class: r.policy.Classify(candidate, token)}, nil
		}
	}

	// No candidate exists on disk; guess the first entry. Approximate: the
	// runtime loader's search order is not reproduced here.
	guess := candidates[0]
	r.logger.Warn("no rpath candidate exists, guessing first entry",
		"binary", owner, "token", token, "guess", guess)
	return Resolved{Token: token, Path: guess, Class: r.policy.Classify(guess, token)}, nil
}
