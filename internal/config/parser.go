package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ZebulonRouseFrantzich/machport/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// defaultParseTimeout bounds Lua execution when the caller's context has no
// deadline of its own.
const defaultParseTimeout = 5 * time.Second

// ParseError represents a policy parsing error with a friendly message.
type ParseError struct {
	Message string // user-friendly message
	Detail  string // technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Parser represents a Lua policy parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   Logger
}

// NewParser creates a new policy parser with the given platform detector.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: DefaultLogger()}
}

// WithLogger sets the logger used during parsing and returns the parser.
func (p *Parser) WithLogger(logger Logger) *Parser {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Load reads and parses the policy file at path. An empty path or a missing
// file yields the built-in defaults; any other failure is an error.
func (p *Parser) Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			p.logger.Debug("policy file absent, using defaults", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("stat policy file: %w", err)
	}
	return p.ParseFile(ctx, path)
}

// ParseFile parses a Lua policy file from disk.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat policy file: %w", err)
	}
	if fi.Size() > maxConfigSize {
		return nil, &ParseError{
			Message: "policy file too large",
			Detail:  fmt.Sprintf("%d bytes exceeds maximum %d", fi.Size(), maxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua policy from a string.
// This is useful for testing and in-memory policy generation.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > maxConfigSize {
		return nil, &ParseError{
			Message: "policy too large",
			Detail:  fmt.Sprintf("%d bytes exceeds maximum %d", len(luaCode), maxConfigSize),
		}
	}

	// Apply the default timeout when the caller did not set a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	// Detect platform and inject platform table
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	// Execute Lua code
	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	// Extract the policy from the Lua state
	cfg, err := extractConfig(L)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p.logger.Debug("policy parsed",
		"bad_prefixes", len(cfg.Prefixes.Bad),
		"system_prefixes", len(cfg.Prefixes.System),
		"max_passes", cfg.Options.MaxPasses)

	return cfg, nil
}

// extractConfig extracts the policy from a Lua state.
// It expects a global "machport" table; absent fields keep their defaults,
// while a present prefix list replaces the default list entirely.
func extractConfig(L *lua.LState) (*Config, error) {
	machportTable := L.GetGlobal(luaGlobalMachport)
	if machportTable.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'machport' table",
			Detail:  fmt.Sprintf("expected table, got %s", machportTable.Type()),
		}
	}

	cfg := Default()
	table := machportTable.(*lua.LTable)

	// Extract prefixes
	if prefixesVal := table.RawGetString(luaFieldPrefixes); prefixesVal.Type() == lua.LTTable {
		prefixes := prefixesVal.(*lua.LTable)

		if badVal := prefixes.RawGetString(luaFieldBad); badVal.Type() == lua.LTTable {
			bad, err := extractStringList(badVal.(*lua.LTable), "prefixes.bad")
			if err != nil {
				return nil, err
			}
			cfg.Prefixes.Bad = bad
		}

		if sysVal := prefixes.RawGetString(luaFieldSystem); sysVal.Type() == lua.LTTable {
			system, err := extractStringList(sysVal.(*lua.LTable), "prefixes.system")
			if err != nil {
				return nil, err
			}
			cfg.Prefixes.System = system
		}
	}

	// Extract options
	if optionsVal := table.RawGetString(luaFieldOptions); optionsVal.Type() == lua.LTTable {
		if err := extractOptions(optionsVal.(*lua.LTable), &cfg.Options); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// extractStringList extracts an array-style Lua table of strings.
// Nil entries (from platform.when returning nil) are skipped, which lets
// policy files use conditionals inline.
func extractStringList(table *lua.LTable, field string) ([]string, error) {
	var out []string
	var extractErr error

	table.ForEach(func(key, value lua.LValue) {
		if extractErr != nil {
			return
		}
		if value.Type() == lua.LTNil {
			return
		}
		if value.Type() != lua.LTString {
			extractErr = &ParseError{
				Message: fmt.Sprintf("invalid entry in %s", field),
				Detail:  fmt.Sprintf("expected string, got %s", value.Type()),
			}
			return
		}
		out = append(out, string(value.(lua.LString)))
	})

	return out, extractErr
}

func extractOptions(table *lua.LTable, opts *Options) error {
	if v := table.RawGetString(luaFieldMaxPasses); v.Type() != lua.LTNil {
		n, err := extractInt(v, "options.max_passes")
		if err != nil {
			return err
		}
		opts.MaxPasses = n
	}
	if v := table.RawGetString(luaFieldMaxDepth); v.Type() != lua.LTNil {
		n, err := extractInt(v, "options.max_depth")
		if err != nil {
			return err
		}
		opts.MaxDepth = n
	}
	if v := table.RawGetString(luaFieldMaxLinks); v.Type() != lua.LTNil {
		n, err := extractInt(v, "options.max_links")
		if err != nil {
			return err
		}
		opts.MaxLinks = n
	}
	if v := table.RawGetString(luaFieldStrictRpath); v.Type() != lua.LTNil {
		if v.Type() != lua.LTBool {
			return &ParseError{
				Message: "invalid options.strict_rpath",
				Detail:  fmt.Sprintf("expected boolean, got %s", v.Type()),
			}
		}
		opts.StrictRpath = lua.LVAsBool(v)
	}
	return nil
}

func extractInt(v lua.LValue, field string) (int, error) {
	if v.Type() != lua.LTNumber {
		return 0, &ParseError{
			Message: fmt.Sprintf("invalid %s", field),
			Detail:  fmt.Sprintf("expected number, got %s", v.Type()),
		}
	}
	return int(lua.LVAsNumber(v)), nil
}
