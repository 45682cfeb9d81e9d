package platform

import (
	"testing"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		name    string
		arch    string
		want    string
		wantErr bool
	}{
		{name: "amd64 passthrough", arch: "amd64", want: "amd64"},
		{name: "x86_64 alias", arch: "x86_64", want: "amd64"},
		{name: "arm64 passthrough", arch: "arm64", want: "arm64"},
		{name: "aarch64 alias", arch: "aarch64", want: "arm64"},
		{name: "unsupported 386", arch: "386", wantErr: true},
		{name: "empty", arch: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeArch(tt.arch)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("normalizeArch(%q) expected error, got %q", tt.arch, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeArch(%q) unexpected error: %v", tt.arch, err)
			}
			if got != tt.want {
				t.Errorf("normalizeArch(%q) = %q, want %q", tt.arch, got, tt.want)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"14.5", "14.5"},
		{"  14.5 \n", "14.5"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeVersion(tt.in); got != tt.want {
			t.Errorf("normalizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
