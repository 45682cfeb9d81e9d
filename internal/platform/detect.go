package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture, and
// gopsutil for the macOS product version.
//
// On macOS, if gopsutil fails to detect the product version, the Version
// field is left empty and detection continues (graceful fallback). The
// version is informational only; classification never depends on it.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	// Product version detection (macOS only)
	if runtime.GOOS == "darwin" {
		_, _, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			// Context cancellation is a hard failure
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			// Otherwise continue with OS/arch only
			return info, nil
		}
		info.Version = normalizeVersion(version)
	}

	return info, nil
}
