package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
)

// Sentinel errors for copy failures. Callers isolate these per library
// rather than aborting a pass.
var (
	// ErrMissingSource indicates the library to copy does not exist.
	ErrMissingSource = errors.New("source library does not exist")

	// ErrCopyPermission indicates the copy failed for lack of permission.
	ErrCopyPermission = errors.New("permission denied copying library")

	// ErrLinkChain indicates a symlink chain longer than the configured
	// bound, which almost always means a cycle.
	ErrLinkChain = errors.New("symlink chain too long")
)

// Copier materializes libraries into the target directory.
type Copier struct {
	maxLinks int
	logger   config.Logger
}

// NewCopier creates a copier bounded by the configured options.
func NewCopier(opts config.Options) *Copier {
	return &Copier{maxLinks: opts.MaxLinks, logger: config.DefaultLogger()}
}

// WithLogger sets the logger and returns the copier.
func (c *Copier) WithLogger(logger config.Logger) *Copier {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Materialize copies libPath into targetDir, recreating its symlink chain
// with bare-basename links, and records every chain basename in the
// manifest. It returns the terminal basename inside the bundle and whether
// a new file was copied.
//
// Materialize is idempotent: files and links already present in targetDir
// are left alone, so repeated passes settle instead of churning.
func (c *Copier) Materialize(libPath, targetDir string, manifest *Manifest) (string, bool, error) {
	chain, terminal, err := c.followChain(libPath)
	if err != nil {
		return "", false, err
	}
	terminalBase := filepath.Base(terminal)

	created, err := c.copyTerminal(terminal, filepath.Join(targetDir, terminalBase))
	if err != nil {
		return "", false, err
	}

	// Links point at bare basenames so the chain stays valid wherever the
	// bundle directory ends up.
	for i, base := range chain {
		next := terminalBase
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		if err := c.ensureLink(filepath.Join(targetDir, base), next); err != nil {
			return "", false, err
		}
	}

	manifest.Set(terminalBase, terminalBase)
	for _, base := range chain {
		manifest.Set(base, terminalBase)
	}

	return terminalBase, created, nil
}

// Plan is the dry-run counterpart of Materialize: it records the same
// manifest entries and reports whether a copy would happen, without touching
// the target directory.
func (c *Copier) Plan(libPath, targetDir string, manifest *Manifest) (string, bool, error) {
	chain, terminal, err := c.followChain(libPath)
	if err != nil {
		return "", false, err
	}
	terminalBase := filepath.Base(terminal)

	wouldCopy := false
	if _, err := os.Lstat(filepath.Join(targetDir, terminalBase)); err != nil {
		wouldCopy = true
	}

	manifest.Set(terminalBase, terminalBase)
	for _, base := range chain {
		manifest.Set(base, terminalBase)
	}

	return terminalBase, wouldCopy, nil
}

// followChain walks libPath's symlink chain and returns the basenames of
// each link in order plus the terminal regular file's path.
func (c *Copier) followChain(libPath string) ([]string, string, error) {
	var chain []string
	cur := libPath

	for hops := 0; ; hops++ {
		if hops > c.maxLinks {
			return nil, "", fmt.Errorf("%w: %s after %d links", ErrLinkChain, libPath, c.maxLinks)
		}

		fi, err := os.Lstat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, "", fmt.Errorf("%w: %s", ErrMissingSource, cur)
			}
			return nil, "", fmt.Errorf("stat %s: %w", cur, err)
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			return chain, cur, nil
		}

		chain = append(chain, filepath.Base(cur))
		target, err := os.Readlink(cur)
		if err != nil {
			return nil, "", fmt.Errorf("readlink %s: %w", cur, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		cur = target
	}
}

// copyTerminal copies src to dst preserving mode bits, skipping when dst
// already exists.
func (c *Copier) copyTerminal(src, dst string) (bool, error) {
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		if os.IsPermission(err) {
			return false, fmt.Errorf("%w: %s", ErrCopyPermission, src)
		}
		return false, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		if os.IsPermission(err) {
			return false, fmt.Errorf("%w: %s", ErrCopyPermission, dst)
		}
		return false, fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return false, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", dst, err)
	}

	c.logger.Debug("copied library", "from", src, "to", dst)
	return true, nil
}

// ensureLink creates a symlink to target at linkPath unless something is
// already there.
func (c *Copier) ensureLink(linkPath, target string) error {
	if _, err := os.Lstat(linkPath); err == nil {
		return nil
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("link %s -> %s: %w", linkPath, target, err)
	}
	c.logger.Debug("created link", "link", linkPath, "target", target)
	return nil
}
