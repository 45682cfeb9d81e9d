// Package resolve turns raw Mach-O dependency-reference tokens into
// concrete filesystem paths and classifies them against the prefix policy.
package resolve

import (
	"strings"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
)

// Classification describes what machport should do with a reference.
type Classification int

const (
	// ClassSystem lies under an OS-reserved library prefix. Recorded but
	// never copied or traversed.
	ClassSystem Classification = iota

	// ClassBad lies under a package-manager install prefix. Copied into
	// the bundle and rewritten.
	ClassBad

	// ClassPortable is already anchored to the bundle
	// (@executable_path/...). Left alone.
	ClassPortable

	// ClassLocal is neither system nor portable nor under a known bad
	// prefix (e.g. a library in a build tree). Treated as bundlable.
	ClassLocal
)

// String returns a human-readable classification name.
func (c Classification) String() string {
	switch c {
	case ClassSystem:
		return "system"
	case ClassBad:
		return "bad"
	case ClassPortable:
		return "portable"
	case ClassLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Bundlable reports whether a reference of this class must be copied into
// the bundle and rewritten.
func (c Classification) Bundlable() bool {
	return c == ClassBad || c == ClassLocal
}

// Policy classifies resolved paths against configured prefix lists. It
// replaces the reference tooling's hard-coded regexes with an injectable
// object testable with synthetic prefixes.
type Policy struct {
	bad    []string
	system []string
}

// NewPolicy creates a classification policy from configured prefixes.
func NewPolicy(prefixes config.Prefixes) *Policy {
	return &Policy{
		bad:    append([]string(nil), prefixes.Bad...),
		system: append([]string(nil), prefixes.System...),
	}
}

// Classify classifies a resolved path. The original token is consulted only
// to recognize references that were already portable.
//
// Bad wins over system: /usr/local sits under /usr, and a library there is
// package-manager territory, not OS territory.
func (p *Policy) Classify(path, token string) Classification {
	if underAny(path, p.bad) {
		return ClassBad
	}
	if underAny(path, p.system) {
		return ClassSystem
	}
	if strings.HasPrefix(token, "@executable_path/") {
		return ClassPortable
	}
	return ClassLocal
}

// underAny reports whether path equals a prefix or sits below it. Matching
// is on path segments, so /usr/localstuff is not under /usr/local.
func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
