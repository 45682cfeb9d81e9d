package macho

import (
	"fmt"
	"path/filepath"

	gomacho "github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// FileIntrospector reads load commands with go-macho. It handles both thin
// and universal (fat) files; for universal files the first architecture
// slice is inspected, which is sufficient because every slice of a shipped
// library records the same dependency set.
type FileIntrospector struct{}

// NewIntrospector creates the production Introspector.
func NewIntrospector() Introspector {
	return &FileIntrospector{}
}

// openFile opens path as a thin Mach-O file, falling back to the first
// slice of a universal binary.
func openFile(path string) (*gomacho.File, func() error, error) {
	f, err := gomacho.Open(path)
	if err == nil {
		return f, f.Close, nil
	}

	ff, fatErr := gomacho.OpenFat(path)
	if fatErr != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotMachO, path)
	}
	if len(ff.Arches) == 0 {
		ff.Close()
		return nil, nil, fmt.Errorf("%w: %s has no architecture slices", ErrNotMachO, path)
	}
	return ff.Arches[0].File, ff.Close, nil
}

// Kind reports the Mach-O header type of path.
func (in *FileIntrospector) Kind(path string) (Kind, error) {
	f, closer, err := openFile(path)
	if err != nil {
		return KindOther, err
	}
	defer closer()

	switch f.FileHeader.Type {
	case types.MH_EXECUTE:
		return KindExecutable, nil
	case types.MH_DYLIB:
		return KindDylib, nil
	default:
		return KindOther, nil
	}
}

// Dependencies returns the recorded dependency tokens of path, in
// load-command order, with self-references filtered.
func (in *FileIntrospector) Dependencies(path string) ([]string, error) {
	f, closer, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	selfBase := filepath.Base(path)
	identity := ""
	if id := f.DylibID(); id != nil {
		identity = id.Name
	}

	var deps []string
	for _, load := range f.Loads {
		var name string
		switch l := load.(type) {
		case *gomacho.Dylib:
			name = l.Name
		case *gomacho.WeakDylib:
			name = l.Name
		case *gomacho.ReExportDylib:
			name = l.Name
		default:
			continue
		}

		// A dylib listing itself (directly or via its install name) is not
		// a dependency.
		if name == identity || filepath.Base(name) == selfBase {
			continue
		}
		deps = append(deps, name)
	}
	return deps, nil
}

// Rpaths returns the LC_RPATH entries of path in load-command order.
func (in *FileIntrospector) Rpaths(path string) ([]string, error) {
	f, closer, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	var rpaths []string
	for _, load := range f.Loads {
		if r, ok := load.(*gomacho.Rpath); ok {
			rpaths = append(rpaths, r.Path)
		}
	}
	return rpaths, nil
}

// SelfIdentity returns the LC_ID_DYLIB install name of path, or "" when the
// binary carries none (executables never do).
func (in *FileIntrospector) SelfIdentity(path string) (string, error) {
	f, closer, err := openFile(path)
	if err != nil {
		return "", err
	}
	defer closer()

	if id := f.DylibID(); id != nil {
		return id.Name, nil
	}
	return "", nil
}
