package closure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
	"github.com/ZebulonRouseFrantzich/machport/internal/resolve"
)

// Walker traverses the dependency graph rooted at a binary.
type Walker struct {
	intro    macho.Introspector
	resolver *resolve.Resolver
	maxDepth int
	strict   bool
	logger   config.Logger
}

// NewWalker creates a walker bounded by the configured options.
func NewWalker(intro macho.Introspector, resolver *resolve.Resolver, opts config.Options) *Walker {
	return &Walker{
		intro:    intro,
		resolver: resolver,
		maxDepth: opts.MaxDepth,
		strict:   opts.StrictRpath,
		logger:   config.DefaultLogger(),
	}
}

// WithLogger sets the logger and returns the walker.
func (w *Walker) WithLogger(logger config.Logger) *Walker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

type workItem struct {
	path  string
	depth int
}

// Walk collects the bundlable dependency closure of root. The root binary
// itself is visited but never added to Libraries.
//
// The visited set is keyed by symlink-resolved path, so a library reached
// through two different symlink names is walked once.
func (w *Walker) Walk(root string) (*Result, error) {
	result := newResult()

	visited := make(map[string]bool)
	systemSeen := make(map[string]bool)
	missingSeen := make(map[string]bool)
	unresolvedSeen := make(map[string]bool)
	librarySeen := make(map[string]bool)

	queue := []workItem{{path: root, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		canonical := canonicalPath(item.path)
		if visited[canonical] {
			continue
		}
		visited[canonical] = true

		if item.depth > w.maxDepth {
			warning := fmt.Sprintf("dependency depth limit %d exceeded at %s, not descending", w.maxDepth, item.path)
			result.Warnings = append(result.Warnings, warning)
			w.logger.Warn("dependency depth limit exceeded", "binary", item.path, "limit", w.maxDepth)
			continue
		}

		deps, err := w.intro.Dependencies(item.path)
		if err != nil {
			if item.depth == 0 {
				return nil, fmt.Errorf("read dependencies of %s: %w", item.path, err)
			}
			warning := fmt.Sprintf("cannot read dependencies of %s: %v", item.path, err)
			result.Warnings = append(result.Warnings, warning)
			w.logger.Warn("skipping unreadable binary", "binary", item.path, "error", err)
			continue
		}

		for _, token := range deps {
			resolved, err := w.resolver.Resolve(token, item.path)
			if err != nil {
				var unresolvedErr *resolve.UnresolvedRpathError
				if errors.As(err, &unresolvedErr) {
					if w.strict {
						return nil, err
					}
					if !unresolvedSeen[token] {
						unresolvedSeen[token] = true
						result.Unresolved = append(result.Unresolved, token)
					}
					w.logger.Warn("unresolved rpath reference", "binary", item.path, "token", token)
					continue
				}
				return nil, err
			}

			switch resolved.Class {
			case resolve.ClassSystem:
				if !systemSeen[resolved.Path] {
					systemSeen[resolved.Path] = true
					result.System = append(result.System, resolved.Path)
				}

			case resolve.ClassPortable:
				// Already anchored to the bundle.

			default:
				if _, statErr := os.Stat(resolved.Path); statErr != nil {
					if !missingSeen[resolved.Path] {
						missingSeen[resolved.Path] = true
						result.Missing = append(result.Missing, resolved.Path)
					}
					w.logger.Warn("referenced library does not exist", "binary", item.path, "path", resolved.Path)
					continue
				}

				result.Refs[item.path] = append(result.Refs[item.path], Reference{
					Token: resolved.Token,
					Path:  resolved.Path,
				})

				libCanonical := canonicalPath(resolved.Path)
				if !librarySeen[libCanonical] {
					librarySeen[libCanonical] = true
					result.Libraries = append(result.Libraries, resolved.Path)
				}
				queue = append(queue, workItem{path: resolved.Path, depth: item.depth + 1})
			}
		}
	}

	result.finish()
	return result, nil
}

// canonicalPath resolves symlinks for identity checks, falling back to the
// path itself when resolution fails.
func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}
