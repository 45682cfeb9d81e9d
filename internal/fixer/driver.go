package fixer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ZebulonRouseFrantzich/machport/internal/bundle"
	"github.com/ZebulonRouseFrantzich/machport/internal/closure"
	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/journal"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
	"github.com/ZebulonRouseFrantzich/machport/internal/resolve"
)

// Driver owns one fix run: it scans the target directory, walks each
// binary's dependencies, copies what the bundle is missing, rewrites
// references, and repeats until a pass changes nothing.
//
// Passes repeat because copies carry their source's load commands: a
// library copied in pass N is itself walked and rewritten in pass N+1.
type Driver struct {
	intro      macho.Introspector
	patcher    macho.Patcher
	cfg        *config.Config
	logger     config.Logger
	dryRun     bool
	journalDir string
}

// NewDriver creates a driver over the given tooling and configuration.
func NewDriver(intro macho.Introspector, patcher macho.Patcher, cfg *config.Config) *Driver {
	return &Driver{
		intro:   intro,
		patcher: patcher,
		cfg:     cfg,
		logger:  config.DefaultLogger(),
	}
}

// WithLogger sets the logger and returns the driver.
func (d *Driver) WithLogger(logger config.Logger) *Driver {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithDryRun makes the run report planned work without touching the bundle.
func (d *Driver) WithDryRun(dryRun bool) *Driver {
	d.dryRun = dryRun
	return d
}

// WithJournalDir enables run journaling into dir.
func (d *Driver) WithJournalDir(dir string) *Driver {
	d.journalDir = dir
	return d
}

type scannedBinary struct {
	Path string
	Kind macho.Kind
}

// Fix makes the bundle containing root self-contained. A missing root is
// the only error; everything else is isolated and surfaced in the report.
func (d *Driver) Fix(ctx context.Context, root string) (*Report, error) {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}
	targetDir := filepath.Dir(root)

	if !d.dryRun {
		lock, err := journal.AcquireLock(targetDir)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	var run *journal.Run
	if d.journalDir != "" {
		run = journal.NewRun(root, targetDir, d.dryRun)
	}

	policy := resolve.NewPolicy(d.cfg.Prefixes)
	resolver := resolve.NewResolver(d.intro, policy).WithLogger(d.logger)
	walker := closure.NewWalker(d.intro, resolver, d.cfg.Options).WithLogger(d.logger)
	copier := bundle.NewCopier(d.cfg.Options).WithLogger(d.logger)
	rewriter := NewRewriter(d.intro, d.patcher).WithLogger(d.logger).WithDryRun(d.dryRun)
	manifest := bundle.NewManifest()

	report := &Report{DryRun: d.dryRun}
	copiedSeen := make(map[string]bool)
	systemSeen := make(map[string]bool)
	missingSeen := make(map[string]bool)
	unresolvedSeen := make(map[string]bool)

	converged := false
	for pass := 1; pass <= d.cfg.Options.MaxPasses; pass++ {
		report.Passes = pass
		d.logger.Debug("starting pass", "pass", pass)

		binaries, err := d.scanBinaries(targetDir, root)
		if err != nil {
			d.finishJournal(run, report, journal.OutcomeFailed, err)
			return nil, err
		}

		copies := 0
		mutations := 0
		var passWarnings []string

		for _, bin := range binaries {
			if bin.Kind == macho.KindDylib {
				n, warns := rewriter.EnsureIdentity(ctx, bin.Path)
				mutations += n
				passWarnings = append(passWarnings, warns...)
			}

			result, err := walker.Walk(bin.Path)
			if err != nil {
				if bin.Path == root {
					d.finishJournal(run, report, journal.OutcomeFailed, err)
					return nil, err
				}
				passWarnings = append(passWarnings, fmt.Sprintf("walk %s: %v", bin.Path, err))
				continue
			}

			mergeNew(result.System, systemSeen, &report.System)
			mergeNew(result.Missing, missingSeen, &report.Missing)
			mergeNew(result.Unresolved, unresolvedSeen, &report.Unresolved)
			passWarnings = append(passWarnings, result.Warnings...)

			for _, lib := range result.Libraries {
				var terminal string
				var created bool
				var copyErr error
				if d.dryRun {
					terminal, created, copyErr = copier.Plan(lib, targetDir, manifest)
				} else {
					terminal, created, copyErr = copier.Materialize(lib, targetDir, manifest)
				}
				if copyErr != nil {
					passWarnings = append(passWarnings, fmt.Sprintf("bundle %s: %v", lib, copyErr))
					continue
				}
				if created {
					copies++
					if !copiedSeen[terminal] {
						copiedSeen[terminal] = true
						report.Copied = append(report.Copied, terminal)
					}
				}
			}

			n, warns := rewriter.RewriteReferences(ctx, bin.Path, result.Refs[bin.Path], manifest)
			mutations += n
			passWarnings = append(passWarnings, warns...)
		}

		report.Mutations += mutations
		report.Warnings = append(report.Warnings, passWarnings...)
		if run != nil {
			run.RecordPass(copies, mutations, passWarnings)
		}
		d.logger.Info("pass finished", "pass", pass, "copies", copies, "mutations", mutations)

		if copies == 0 && mutations == 0 {
			converged = true
			break
		}
		if d.dryRun {
			// Planned work cannot settle a dry run; one pass is the plan.
			break
		}
	}

	report.Converged = converged
	sort.Strings(report.Copied)
	sort.Strings(report.System)
	sort.Strings(report.Missing)
	sort.Strings(report.Unresolved)

	if !d.dryRun {
		binaries, err := d.scanBinaries(targetDir, root)
		if err == nil {
			report.Residual = d.verify(targetDir, resolver, binaries)
		} else {
			report.Warnings = append(report.Warnings, fmt.Sprintf("verification scan: %v", err))
		}
	}

	outcome := journal.OutcomeConverged
	if !converged && !d.dryRun {
		outcome = journal.OutcomeMaxPasses
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("bundle did not settle within %d passes", d.cfg.Options.MaxPasses))
		d.logger.Warn("pass budget exhausted", "passes", d.cfg.Options.MaxPasses)
	}
	d.finishJournal(run, report, outcome, nil)

	return report, nil
}

// scanBinaries lists the Mach-O files in the target directory, sorted by
// path. The root binary is always included.
func (d *Driver) scanBinaries(targetDir, root string) ([]scannedBinary, error) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil, fmt.Errorf("read target directory %s: %w", targetDir, err)
	}

	var bins []scannedBinary
	seenRoot := false
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(targetDir, entry.Name())
		kind, err := d.intro.Kind(path)
		if err != nil || kind == macho.KindOther {
			continue
		}
		if path == root {
			seenRoot = true
		}
		bins = append(bins, scannedBinary{Path: path, Kind: kind})
	}
	if !seenRoot {
		bins = append(bins, scannedBinary{Path: root, Kind: macho.KindExecutable})
	}

	sort.Slice(bins, func(i, j int) bool { return bins[i].Path < bins[j].Path })
	return bins, nil
}

// verify re-reads every bundle binary and reports references that still
// point outside the bundle, plus portable references whose target is not
// actually present.
func (d *Driver) verify(targetDir string, resolver *resolve.Resolver, binaries []scannedBinary) []ResidualRef {
	var residual []ResidualRef

	for _, bin := range binaries {
		deps, err := d.intro.Dependencies(bin.Path)
		if err != nil {
			continue
		}
		for _, token := range deps {
			resolved, err := resolver.Resolve(token, bin.Path)
			if err != nil {
				residual = append(residual, ResidualRef{Binary: bin.Path, Token: token})
				continue
			}
			switch {
			case resolved.Class.Bundlable():
				residual = append(residual, ResidualRef{
					Binary: bin.Path,
					Token:  token,
					Path:   resolved.Path,
					Class:  resolved.Class,
				})
			case resolved.Class == resolve.ClassPortable:
				base := filepath.Base(resolved.Path)
				if _, err := os.Lstat(filepath.Join(targetDir, base)); err != nil {
					residual = append(residual, ResidualRef{
						Binary: bin.Path,
						Token:  token,
						Path:   filepath.Join(targetDir, base),
						Class:  resolve.ClassPortable,
					})
				}
			}
		}
	}

	return residual
}

func (d *Driver) finishJournal(run *journal.Run, report *Report, outcome journal.Outcome, err error) {
	if run == nil {
		return
	}
	run.Missing = append([]string(nil), report.Missing...)
	run.Unresolved = append([]string(nil), report.Unresolved...)
	run.Finish(outcome, err)
	if saveErr := run.Save(d.journalDir); saveErr != nil {
		d.logger.Error("journal save failed", "dir", d.journalDir, "error", saveErr)
	}
}

// mergeNew appends the entries of src not yet in seen to dst.
func mergeNew(src []string, seen map[string]bool, dst *[]string) {
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			*dst = append(*dst, s)
		}
	}
}
