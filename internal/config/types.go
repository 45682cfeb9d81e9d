package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config is the parsed machport policy configuration.
type Config struct {
	Prefixes Prefixes
	Options  Options
}

// Prefixes holds the path-prefix classification policy.
//
// A dependency whose resolved path falls under a Bad prefix is always
// bundlable, even when the same path also falls under a System prefix
// (/usr/local is under /usr). A path under a System prefix and no Bad
// prefix belongs to the operating system and is never copied.
type Prefixes struct {
	Bad    []string
	System []string
}

// Options holds run options.
type Options struct {
	MaxPasses   int  // convergence pass budget
	MaxDepth    int  // dependency walk depth cap
	MaxLinks    int  // symlink chain length cap
	StrictRpath bool // abort when @rpath is used with no rpath entries
}

// Default returns the built-in policy: Homebrew/MacPorts roots are bad,
// /usr and /System are system, and the caps match the reference tooling.
func Default() *Config {
	return &Config{
		Prefixes: Prefixes{
			Bad:    []string{"/usr/local", "/opt"},
			System: []string{"/usr", "/System"},
		},
		Options: Options{
			MaxPasses:   10,
			MaxDepth:    20,
			MaxLinks:    10,
			StrictRpath: false,
		},
	}
}

// ValidationError describes a config field that failed validation.
type ValidationError struct {
	Field   string // field that failed validation
	Message string // error description
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Message)
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validatePrefixList("prefixes.bad", c.Prefixes.Bad); err != nil {
		return err
	}
	if err := validatePrefixList("prefixes.system", c.Prefixes.System); err != nil {
		return err
	}

	if err := validateCap("options.max_passes", c.Options.MaxPasses, maxPassBudget); err != nil {
		return err
	}
	if err := validateCap("options.max_depth", c.Options.MaxDepth, maxDepthBudget); err != nil {
		return err
	}
	if err := validateCap("options.max_links", c.Options.MaxLinks, maxLinkBudget); err != nil {
		return err
	}

	return nil
}

func validatePrefixList(field string, prefixes []string) error {
	if len(prefixes) > maxPrefixCount {
		return &ValidationError{Field: field, Message: fmt.Sprintf("too many prefixes (%d, max %d)", len(prefixes), maxPrefixCount)}
	}
	for _, p := range prefixes {
		if p == "" {
			return &ValidationError{Field: field, Message: "empty prefix"}
		}
		if len(p) > maxPrefixLen {
			return &ValidationError{Field: field, Message: "prefix too long"}
		}
		if !filepath.IsAbs(p) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("prefix %q is not absolute", p)}
		}
		for _, part := range strings.Split(p, "/") {
			if part == ".." {
				return &ValidationError{Field: field, Message: fmt.Sprintf("prefix %q contains a parent reference", p)}
			}
		}
	}
	return nil
}

func validateCap(field string, value, max int) error {
	if value <= 0 {
		return &ValidationError{Field: field, Message: "must be positive"}
	}
	if value > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%d exceeds maximum %d", value, max)}
	}
	return nil
}
