package worktree

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
)

// stashListPath is "<metaRoot>/stash/list": one commit id per line,
// most recent push first. A stash entry's full content lives in the
// ordinary commit store — the list file only tracks which ids are
// currently live stash slots, the same "a small index file plus
// content-addressed blobs" shape the rest of the repository uses.
func stashListPath(metaRoot string) string {
	return filepath.Join(metaRoot, "stash", "list")
}

// StashPush captures the index's currently staged additions and
// deletions as a commit-shaped record parented on the current HEAD,
// clears the staging area, and pushes the record's id onto the stash
// stack. It does not touch working-tree file content: dotman's
// staging area is itself the capture target, mirroring how
// original_source's rebase/stash machinery snapshots the index rather
// than diffing the whole working tree.
func (w *Worktree) StashPush(metaRoot, message, who string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.idx.HasStagedChanges() {
		return nil, fmt.Errorf("worktree: stash push: nothing staged: %w", dotmanerr.ErrPrecondition)
	}

	head, err := w.refs.GetHeadCommit()
	if err != nil {
		return nil, err
	}
	var parents []string
	if head != refs.ZeroID {
		parents = []string{head}
	}

	files := buildCommitFiles(w.idx)
	deleted := w.idx.DeletedPaths()
	label := message
	if label == "" {
		label = "WIP"
	}

	commit, err := w.commits.CreateSnapshot(parents, "stash: "+label, who, timestamp, tzOffset, files, deleted)
	if err != nil {
		return nil, err
	}

	if err := pushStashID(metaRoot, commit.ID); err != nil {
		return nil, err
	}

	w.idx.ClearStaged()
	if err := w.idx.Save(); err != nil {
		return nil, err
	}
	return commit, nil
}

// StashList returns the stash stack's commit ids, most recent first.
func (w *Worktree) StashList(metaRoot string) ([]string, error) {
	return readStashIDs(metaRoot)
}

// StashApply re-stages the nth stash entry's files (0 is the most
// recent) without removing it from the stack, restoring each file's
// content into the working tree so it matches what was captured.
func (w *Worktree) StashApply(metaRoot string, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids, err := readStashIDs(metaRoot)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(ids) {
		return fmt.Errorf("worktree: stash apply: index %d: %w", n, dotmanerr.ErrNotFound)
	}

	commit, err := w.commits.LoadSnapshot(ids[n])
	if err != nil {
		return err
	}
	for _, f := range commit.Files {
		data, err := w.objects.Get(f.Hash)
		if err != nil {
			return fmt.Errorf("worktree: stash apply %s: %w", f.Path, err)
		}
		if err := writeContent(w.resolvePath(f.Path), data, f.Mode); err != nil {
			return fmt.Errorf("worktree: stash apply %s: %w", f.Path, err)
		}
		info, statErr := os.Lstat(w.resolvePath(f.Path))
		entry := index.Entry{Path: f.Path, Hash: f.Hash, Mode: f.Mode}
		if statErr == nil {
			entry.Size = info.Size()
			entry.MTime = info.ModTime().Unix()
		}
		w.idx.Stage(entry)
	}
	return w.idx.Save()
}

// StashDrop removes the nth stash entry from the stack without
// applying it.
func (w *Worktree) StashDrop(metaRoot string, n int) error {
	ids, err := readStashIDs(metaRoot)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(ids) {
		return fmt.Errorf("worktree: stash drop: index %d: %w", n, dotmanerr.ErrNotFound)
	}
	ids = append(ids[:n], ids[n+1:]...)
	return writeStashIDs(metaRoot, ids)
}

// StashPop applies then drops the nth stash entry.
func (w *Worktree) StashPop(metaRoot string, n int) error {
	if err := w.StashApply(metaRoot, n); err != nil {
		return err
	}
	return w.StashDrop(metaRoot, n)
}

func pushStashID(metaRoot, id string) error {
	ids, err := readStashIDs(metaRoot)
	if err != nil {
		return err
	}
	ids = append([]string{id}, ids...)
	return writeStashIDs(metaRoot, ids)
}

func readStashIDs(metaRoot string) ([]string, error) {
	path := stashListPath(metaRoot)
	f, err := os.Open(path) //nolint:gosec // G304: repo-internal path
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("worktree: read stash list: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, scanner.Err()
}

func writeStashIDs(metaRoot string, ids []string) error {
	dir := filepath.Dir(stashListPath(metaRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("worktree: mkdir %s: %w", dir, err)
	}
	var buf strings.Builder
	for _, id := range ids {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(dir, ".tmp-stash-*")
	if err != nil {
		return fmt.Errorf("worktree: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("worktree: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("worktree: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, stashListPath(metaRoot)); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("worktree: rename into place: %w", err)
	}
	return nil
}
