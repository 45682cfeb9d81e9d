// Package bundle copies libraries into the target directory, preserving
// their symlink chains, and tracks which basename each reference should be
// rewritten to.
package bundle

// Manifest maps every basename seen along a copied symlink chain to the
// basename of the terminal regular file in the target directory. Rewrites
// consult it to build @executable_path tokens.
type Manifest struct {
	names map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{names: make(map[string]string)}
}

// Set records that base resolves to terminal inside the bundle.
func (m *Manifest) Set(base, terminal string) {
	m.names[base] = terminal
}

// Resolve returns the bundle basename a reference to base should point at.
func (m *Manifest) Resolve(base string) (string, bool) {
	terminal, ok := m.names[base]
	return terminal, ok
}

// Len returns the number of recorded basenames.
func (m *Manifest) Len() int {
	return len(m.names)
}
