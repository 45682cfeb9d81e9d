package macho

import (
	"context"
	"fmt"
	"path/filepath"
)

// FakeBinary is the in-memory record backing one binary in a FakeTool.
type FakeBinary struct {
	Kind     Kind
	Deps     []string
	Rpaths   []string
	Identity string
}

// ChangeCall records one ChangeReference invocation.
type ChangeCall struct {
	Path string
	Old  string
	New  string
}

// IdentityCall records one SetSelfIdentity invocation.
type IdentityCall struct {
	Path     string
	Identity string
}

// FakeTool implements both Introspector and Patcher over in-memory records.
//
// Records are keyed by basename, not full path: when a library is copied
// into the bundle directory the copy carries the same load commands as the
// source, which basename keying models for free. Patch calls mutate the
// records, so repeated walk/rewrite passes observe their own mutations and
// convergence behaves as it would on disk.
type FakeTool struct {
	Binaries map[string]*FakeBinary

	Changes      []ChangeCall
	IdentitySets []IdentityCall

	// FailChange maps an old token to an error returned when a change for
	// it is requested. FailIdentity does the same per basename.
	FailChange   map[string]error
	FailIdentity map[string]error
}

// NewFakeTool creates an empty fake introspector/patcher pair.
func NewFakeTool() *FakeTool {
	return &FakeTool{
		Binaries:     make(map[string]*FakeBinary),
		FailChange:   make(map[string]error),
		FailIdentity: make(map[string]error),
	}
}

// Add registers a binary record under its basename and returns the record
// for further tweaking.
func (f *FakeTool) Add(base string, bin FakeBinary) *FakeBinary {
	b := bin
	f.Binaries[base] = &b
	return &b
}

func (f *FakeTool) lookup(path string) (*FakeBinary, error) {
	if b, ok := f.Binaries[filepath.Base(path)]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotMachO, path)
}

// Kind implements Introspector.
func (f *FakeTool) Kind(path string) (Kind, error) {
	b, err := f.lookup(path)
	if err != nil {
		return KindOther, err
	}
	return b.Kind, nil
}

// Dependencies implements Introspector. Self-references are filtered, per
// the interface contract.
func (f *FakeTool) Dependencies(path string) ([]string, error) {
	b, err := f.lookup(path)
	if err != nil {
		return nil, err
	}

	selfBase := filepath.Base(path)
	var deps []string
	for _, d := range b.Deps {
		if d == b.Identity || filepath.Base(d) == selfBase {
			continue
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// Rpaths implements Introspector.
func (f *FakeTool) Rpaths(path string) ([]string, error) {
	b, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), b.Rpaths...), nil
}

// SelfIdentity implements Introspector.
func (f *FakeTool) SelfIdentity(path string) (string, error) {
	b, err := f.lookup(path)
	if err != nil {
		return "", err
	}
	return b.Identity, nil
}

// ChangeReference implements Patcher. The mutation is applied to the record
// so subsequent introspection sees the new token, mirroring
// install_name_tool semantics (changing a token that is not present is not
// an error).
func (f *FakeTool) ChangeReference(ctx context.Context, path, oldToken, newToken string) error {
	if err := f.FailChange[oldToken]; err != nil {
		return err
	}

	b, lookupErr := f.lookup(path)
	if lookupErr != nil {
		return lookupErr
	}

	f.Changes = append(f.Changes, ChangeCall{Path: path, Old: oldToken, New: newToken})
	for i, d := range b.Deps {
		if d == oldToken {
			b.Deps[i] = newToken
		}
	}
	return nil
}

// SetSelfIdentity implements Patcher.
func (f *FakeTool) SetSelfIdentity(ctx context.Context, path, identity string) error {
	base := filepath.Base(path)
	if err := f.FailIdentity[base]; err != nil {
		return err
	}

	b, lookupErr := f.lookup(path)
	if lookupErr != nil {
		return lookupErr
	}

	f.IdentitySets = append(f.IdentitySets, IdentityCall{Path: path, Identity: identity})
	b.Identity = identity
	return nil
}

var (
	_ Introspector = (*FakeTool)(nil)
	_ Patcher      = (*FakeTool)(nil)
)
