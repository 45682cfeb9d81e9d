package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
	"github.com/ZebulonRouseFrantzich/machport/internal/fixer"
	"github.com/ZebulonRouseFrantzich/machport/internal/macho"
	"github.com/ZebulonRouseFrantzich/machport/internal/platform"
)

// defaultPolicyFile is looked for next to the working directory when no
// --config flag is given.
const defaultPolicyFile = "machport.lua"

// runFix handles the default machport invocation.
// Returns an exit code: a missing root binary is the one hard failure (1),
// bad usage is 2, everything else is reported and exits 0.
func runFix(args []string) (int, error) {
	showHelp := false
	dryRun := false
	verbose := false
	strictRpath := false
	configPath := ""
	journalDir := ""
	maxPasses := 0
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			showHelp = true
		case "--dry-run", "-n":
			dryRun = true
		case "--verbose", "-v":
			verbose = true
		case "--strict-rpath":
			strictRpath = true
		case "--config":
			i++
			if i >= len(args) {
				return 2, fmt.Errorf("--config requires a file path")
			}
			configPath = args[i]
		case "--journal":
			i++
			if i >= len(args) {
				return 2, fmt.Errorf("--journal requires a directory path")
			}
			journalDir = args[i]
		case "--max-passes":
			i++
			if i >= len(args) {
				return 2, fmt.Errorf("--max-passes requires a number")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				return 2, fmt.Errorf("--max-passes: invalid value %q", args[i])
			}
			maxPasses = n
		default:
			if strings.HasPrefix(args[i], "-") {
				return 2, fmt.Errorf("unknown flag: %s", args[i])
			}
			positional = append(positional, args[i])
		}
	}

	if showHelp {
		printFixHelp()
		return 0, nil
	}
	if len(positional) != 1 {
		printFixHelp()
		return 2, fmt.Errorf("exactly one executable path is required")
	}
	root := positional[0]

	logger := config.DefaultLogger()
	if verbose {
		logger = newStderrLogger()
	}

	// Create context with timeout (10 minutes; large bundles mean many
	// patch-tool invocations)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if info, detectErr := platform.NewDetector().Detect(ctx); detectErr == nil {
		logger.Info("host platform", "os", info.OS, "arch", info.Arch, "macos_version", info.Version)
		if !info.IsMacOS() {
			fmt.Fprintln(os.Stderr, "Warning: not running on macOS; install_name_tool may be unavailable")
		}
	}

	if configPath == "" {
		if _, err := os.Stat(defaultPolicyFile); err == nil {
			configPath = defaultPolicyFile
		}
	}

	parser := config.NewParser(platform.NewDetector()).WithLogger(logger)
	cfg, err := parser.Load(ctx, configPath)
	if err != nil {
		return 0, fmt.Errorf("load policy: %w", err)
	}

	// Flags win over the policy file.
	if maxPasses > 0 {
		cfg.Options.MaxPasses = maxPasses
	}
	if strictRpath {
		cfg.Options.StrictRpath = true
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid policy: %w", err)
	}

	driver := fixer.NewDriver(macho.NewIntrospector(), macho.NewPatcher(), cfg).
		WithLogger(logger).
		WithDryRun(dryRun).
		WithJournalDir(journalDir)

	report, err := driver.Fix(ctx, root)
	if err != nil {
		if errors.Is(err, fixer.ErrRootMissing) {
			return 1, err
		}
		return 0, err
	}

	fmt.Print(fixer.FormatReport(report))
	return 0, nil
}

func printFixHelp() {
	fmt.Println("Usage: machport [options] <executable>")
	fmt.Println()
	fmt.Println("Copies every non-system library the executable depends on into its")
	fmt.Println("directory and rewrites the references to @executable_path tokens,")
	fmt.Println("repeating until the bundle needs nothing outside itself.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --dry-run, -n        Report planned work without touching the bundle")
	fmt.Println("  --verbose, -v        Log progress to stderr")
	fmt.Println("  --config <file>      Lua policy file (default: ./machport.lua if present)")
	fmt.Println("  --max-passes <n>     Pass budget before giving up (default: 10)")
	fmt.Println("  --strict-rpath       Fail on @rpath references with no rpath entries")
	fmt.Println("  --journal <dir>      Record the run as JSON in <dir>")
	fmt.Println("  --help, -h           Show this help")
	fmt.Println("  --version            Show version information")
}
