package platform

import (
	"fmt"
	"strings"
)

// normalizeArch converts GOARCH values to normalized architecture names.
// Only amd64 and arm64 are supported; those are the only architectures
// modern Mach-O bundles target.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64)", arch)
	}
}

// normalizeVersion trims and lowercases a product version string.
func normalizeVersion(version string) string {
	return strings.ToLower(strings.TrimSpace(version))
}
