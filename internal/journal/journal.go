// Package journal records machport runs as JSON documents with locking and
// atomic writes, so interrupted or surprising runs can be inspected after
// the fact.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeConverged Outcome = "converged"
	OutcomeMaxPasses Outcome = "max_passes_exceeded"
	OutcomeFailed    Outcome = "failed"
)

// PassRecord captures what one walk/copy/rewrite pass did.
type PassRecord struct {
	Number    int       `json:"number"`
	Copies    int       `json:"copies"`
	Mutations int       `json:"mutations"`
	Warnings  []string  `json:"warnings,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is the journal document for one machport invocation.
type Run struct {
	Version    int          `json:"version"` // Schema version for future evolution
	ID         string       `json:"id"`      // UUID for unique identification
	Root       string       `json:"root"`
	TargetDir  string       `json:"target_dir"`
	DryRun     bool         `json:"dry_run"`
	Started    time.Time    `json:"started"`
	Finished   time.Time    `json:"finished,omitzero"`
	Outcome    Outcome      `json:"outcome"`
	Passes     []PassRecord `json:"passes"`
	Missing    []string     `json:"missing,omitempty"`
	Unresolved []string     `json:"unresolved,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}

// NewRun creates a journal document for a run over root.
func NewRun(root, targetDir string, dryRun bool) *Run {
	return &Run{
		Version:   1,
		ID:        uuid.New().String(),
		Root:      root,
		TargetDir: targetDir,
		DryRun:    dryRun,
		Started:   time.Now().UTC(),
		Outcome:   OutcomeRunning,
	}
}

// RecordPass appends one pass record.
func (r *Run) RecordPass(copies, mutations int, warnings []string) {
	r.Passes = append(r.Passes, PassRecord{
		Number:    len(r.Passes) + 1,
		Copies:    copies,
		Mutations: mutations,
		Warnings:  warnings,
		Timestamp: time.Now().UTC(),
	})
}

// Finish stamps the terminal outcome.
func (r *Run) Finish(outcome Outcome, err error) {
	r.Outcome = outcome
	r.Finished = time.Now().UTC()
	if err != nil {
		r.LastError = err.Error()
	}
}

// Save writes the run to dir atomically using write-then-rename.
func (r *Run) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, fmt.Sprintf("run-%s.json", r.ID))
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary run file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename run file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}

// Load reads a run document from disk.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}

	return &run, nil
}
