package worktree

import (
	"fmt"
	"os"

	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/merge"
)

// ApplyMergeDecisions writes a merge or rebase step's resolved file
// table into the working tree and index. A decision with an empty
// Hash means the path was deleted by the merge; everything else is
// written to disk and staged using the decision's (already-resolved,
// take-theirs-on-conflict) content — conflicted paths are applied the
// same as any other decision, with their paths returned separately so
// the caller can report them or, for a rebase step, overwrite them
// with real conflict markers afterward.
func (w *Worktree) ApplyMergeDecisions(decisions []merge.FileDecision) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var conflictPaths []string
	for _, d := range decisions {
		if d.Conflict {
			conflictPaths = append(conflictPaths, d.Path)
		}
		if d.Hash == "" {
			w.idx.MarkDeleted(d.Path)
			os.Remove(w.resolvePath(d.Path)) //nolint:errcheck // target no longer carries this path
			continue
		}
		data, err := w.objects.Get(d.Hash)
		if err != nil {
			return nil, fmt.Errorf("worktree: merge apply %s: %w", d.Path, err)
		}
		if err := writeContent(w.resolvePath(d.Path), data, d.Mode); err != nil {
			return nil, fmt.Errorf("worktree: merge apply write %s: %w", d.Path, err)
		}
		w.idx.Stage(index.Entry{Path: d.Path, Hash: d.Hash, Mode: d.Mode})
	}
	if err := w.idx.Save(); err != nil {
		return nil, err
	}
	return conflictPaths, nil
}

// WriteRaw writes data directly to relPath under the working tree,
// without touching the index — used to drop conflict-marked content
// where the caller wants status to keep reporting the path as
// modified until the conflict is resolved.
func (w *Worktree) WriteRaw(relPath string, data []byte) error {
	return os.WriteFile(w.resolvePath(relPath), data, 0o644) //nolint:gosec // repo-managed working tree path
}

// StageResolved records a path's on-disk content (after a conflict has
// been manually resolved) as a new blob and stages it.
func (w *Worktree) StageResolved(relPath string, mode uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, fileMode, err := readContent(w.resolvePath(relPath))
	if err != nil {
		return fmt.Errorf("worktree: stage resolved %s: %w", relPath, err)
	}
	if mode != 0 {
		fileMode = mode
	}
	hash := hasher.HashBytes(data)
	if err := w.objects.Put(hash, data); err != nil {
		return fmt.Errorf("worktree: stage resolved %s: %w", relPath, err)
	}
	w.idx.Stage(index.Entry{Path: relPath, Hash: hash, Mode: fileMode})
	return w.idx.Save()
}
