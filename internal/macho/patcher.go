package macho

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrPatchTool reports that the external patch tool failed.
// Callers treat this as isolated to a single reference, not fatal.
var ErrPatchTool = errors.New("install name patch failed")

// ToolPatcher implements Patcher by invoking install_name_tool, the platform
// tool that rewrites Mach-O load commands in place.
type ToolPatcher struct {
	bin string // path or name of the install_name_tool binary
}

// NewPatcher creates a patcher that invokes install_name_tool from PATH.
func NewPatcher() *ToolPatcher {
	return &ToolPatcher{bin: "install_name_tool"}
}

// NewPatcherWithTool creates a patcher that invokes the given binary.
// Tests point this at a stub.
func NewPatcherWithTool(bin string) *ToolPatcher {
	return &ToolPatcher{bin: bin}
}

// ChangeReference runs `install_name_tool -change old new path`.
func (p *ToolPatcher) ChangeReference(ctx context.Context, path, oldToken, newToken string) error {
	return p.run(ctx, "-change", oldToken, newToken, path)
}

// SetSelfIdentity runs `install_name_tool -id identity path`.
func (p *ToolPatcher) SetSelfIdentity(ctx context.Context, path, identity string) error {
	return p.run(ctx, "-id", identity, path)
}

func (p *ToolPatcher) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, p.bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%w: %s %s: %s", ErrPatchTool, p.bin, strings.Join(args, " "), detail)
	}
	return nil
}
