// Package platform provides host platform detection and Lua integration
// for machport's policy configuration.
//
// It detects OS, architecture, and (on macOS) the product version, then
// injects this information as a read-only table into Lua policy files. The
// package uses gopsutil for product version detection and falls back
// gracefully when detection fails.
package platform

import "context"

// Info contains platform detection information.
type Info struct {
	OS      string // "darwin", "linux", "windows"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // original GOARCH (e.g., "x86_64", "aarch64")
	Version string // macOS product version (darwin only, e.g., "14.5")
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsAppleSilicon returns true for arm64 macOS hosts.
func (i *Info) IsAppleSilicon() bool {
	return i.IsMacOS() && i.IsARM64()
}

// Detector is the interface for platform detection.
// Tests inject a static implementation to exercise platform conditionals
// without depending on the host.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector is a Detector that returns a fixed Info. It exists for
// tests and for callers that already know the platform.
type StaticDetector struct {
	Info Info
}

// Detect returns the static platform info.
func (d *StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := d.Info
	return &info, nil
}
