package worktree

import (
	"fmt"
	"os"

	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/snapshot"
)

func filesByPath(files []snapshot.FileRecord) map[string]snapshot.FileRecord {
	out := make(map[string]snapshot.FileRecord, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out
}

// Revert creates a new commit that undoes the changes targetID
// introduced relative to its principal parent: computed as an
// inverse diff against that parent, applied to the current staging
// area, then committed on top of HEAD. A root commit (no parents) is
// reverted against an empty tree, undoing everything it introduced.
func (w *Worktree) Revert(targetID, who string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	target, err := w.commits.LoadSnapshot(targetID)
	if err != nil {
		return nil, err
	}

	var parentFiles map[string]snapshot.FileRecord
	if len(target.Parents) > 0 {
		parentCommit, err := w.commits.LoadSnapshot(target.Parents[0])
		if err != nil {
			return nil, err
		}
		parentFiles = filesByPath(parentCommit.Files)
	} else {
		parentFiles = make(map[string]snapshot.FileRecord)
	}
	targetFiles := filesByPath(target.Files)

	w.mu.Lock()
	for path, parentRecord := range parentFiles {
		targetRecord, inTarget := targetFiles[path]
		if inTarget && targetRecord.Hash == parentRecord.Hash {
			continue // unchanged by the commit being reverted
		}
		// Either the commit modified this path (restore the parent's
		// content) or deleted it (same restoration undoes the deletion).
		data, getErr := w.objects.Get(parentRecord.Hash)
		if getErr != nil {
			w.mu.Unlock()
			return nil, fmt.Errorf("worktree: revert restore %s: %w", path, getErr)
		}
		if writeErr := writeContent(w.resolvePath(path), data, parentRecord.Mode); writeErr != nil {
			w.mu.Unlock()
			return nil, fmt.Errorf("worktree: revert write %s: %w", path, writeErr)
		}
		w.idx.Stage(index.Entry{Path: parentRecord.Path, Hash: parentRecord.Hash, Mode: parentRecord.Mode})
	}
	for path := range targetFiles {
		if _, inParent := parentFiles[path]; inParent {
			continue
		}
		// The commit being reverted added this path; undo the addition.
		os.Remove(w.resolvePath(path)) //nolint:errcheck // reverting an addition removes the file
		w.idx.MarkDeleted(path)
	}
	if err := w.idx.Save(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.mu.Unlock()

	message := fmt.Sprintf("Revert %q", target.Message)
	return w.Commit(message, who, timestamp, tzOffset)
}
