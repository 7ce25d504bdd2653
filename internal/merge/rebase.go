package merge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// RebaseState is the persistent record backing dotman's rebase state
// machine: it lives at "rebase/state" under the repo metadata
// directory and survives across process invocations, so a conflicted
// rebase can be resumed, skipped, or aborted in a later command.
type RebaseState struct {
	Onto            string   `json:"onto"`
	OriginalHead    string   `json:"original_head"`
	OriginalBranch  string   `json:"original_branch,omitempty"`
	CommitsToReplay []string `json:"commits_to_replay"`
	CurrentIndex    int      `json:"current_index"`
	ConflictFiles   []string `json:"conflict_files,omitempty"`
}

// StatePath returns the path of the rebase state file under root
// (the repo metadata directory).
func StatePath(root string) string {
	return filepath.Join(root, "rebase", "state")
}

// LoadRebaseState reads the persisted state, if any.
func LoadRebaseState(root string) (*RebaseState, error) {
	data, err := os.ReadFile(StatePath(root)) //nolint:gosec // G304: repo-internal path
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rebase: read state: %w", err)
	}
	var st RebaseState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("rebase: decode state: %w: %w", err, dotmanerr.ErrCorrupt)
	}
	return &st, nil
}

// Save persists the rebase state atomically.
func (st *RebaseState) Save(root string) error {
	path := StatePath(root)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rebase: mkdir %s: %w", dir, err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("rebase: marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-rebase-*")
	if err != nil {
		return fmt.Errorf("rebase: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rebase: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rebase: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("rebase: rename into place: %w", err)
	}
	return nil
}

// Clear removes the persisted rebase state, ending the state machine.
func Clear(root string) error {
	err := os.Remove(StatePath(root))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rebase: clear state: %w", err)
	}
	return nil
}

// InProgress reports whether a rebase state file currently exists.
func InProgress(root string) bool {
	_, err := os.Stat(StatePath(root))
	return err == nil
}

// FilterNotTouchedPaths removes from a conflict-candidate set any path
// that is missing from the replayed commit's file table but present in
// its parent's: the commit never touched that path rather than
// deleting it, since dotman snapshots only carry staged files, not a
// full tree. Such paths must not be reported as delete/modify
// conflicts.
func FilterNotTouchedPaths(candidatePaths []string, replayedFiles, parentFiles map[string]string) []string {
	var out []string
	for _, p := range candidatePaths {
		_, inReplayed := replayedFiles[p]
		_, inParent := parentFiles[p]
		if !inReplayed && inParent {
			continue // not touched by the replayed commit, not a real conflict
		}
		out = append(out, p)
	}
	return out
}
