package worktree

import (
	"fmt"
	"os"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
)

// IsDirty reports whether there is staged or in-progress work that a
// checkout would silently discard: any pending staged change or
// deletion, or a tracked path whose on-disk content no longer matches
// what the index recorded. Checkout refuses to proceed when this is
// true unless force is given.
func (w *Worktree) IsDirty() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.idx.HasStagedChanges() {
		return true, nil
	}
	for _, p := range w.idx.CommittedPaths() {
		e, _ := w.idx.GetCommitted(p)
		abs := w.resolvePath(p)
		data, _, err := readContent(abs)
		if err != nil {
			return true, nil // missing or unreadable tracked file counts as dirty
		}
		if hasher.HashBytes(data) != e.Hash {
			return true, nil
		}
	}
	return false, nil
}

// CheckoutBranch checks out a named branch target: abort if dirty and
// not forced, diff the current HEAD tree against the branch tip's
// tree, write the resulting deletes/restores/overwrites into the
// working tree, point HEAD at the branch symbolically, and rebuild
// the index's committed view. A branch with no commits yet (ZeroID
// tip) is left untouched: HEAD moves to it but the working tree and
// index keep whatever they already held.
func (w *Worktree) CheckoutBranch(name, who string, force bool) error {
	if !force {
		dirty, err := w.IsDirty()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("worktree: checkout %s: working tree has uncommitted changes: %w", name, dotmanerr.ErrPrecondition)
		}
	}

	targetID, err := w.refs.GetBranchCommit(name)
	if err != nil {
		return err
	}
	if targetID == refs.ZeroID {
		// Branch has no commits yet: point HEAD at it but leave the
		// working tree and index exactly as they are.
		return w.refs.SetHeadToBranch(name, who, "checkout", "moving to "+name)
	}
	if err := w.applyTargetTree(targetID); err != nil {
		return err
	}
	return w.refs.SetHeadToBranch(name, who, "checkout", "moving to "+name)
}

// CheckoutDetached implements the same algorithm for a direct commit
// id target, leaving HEAD detached.
func (w *Worktree) CheckoutDetached(commitID, who string, force bool) error {
	if !force {
		dirty, err := w.IsDirty()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("worktree: checkout %s: working tree has uncommitted changes: %w", commitID, dotmanerr.ErrPrecondition)
		}
	}
	if err := w.applyTargetTree(commitID); err != nil {
		return err
	}
	return w.refs.SetHeadToCommit(commitID, who, "checkout", "moving to "+commitID)
}

// ApplyTree writes targetID's file table into the working tree and
// rebuilds the index's committed view, without moving any ref. Merge
// and rebase use this directly — checking out the rebase's "onto"
// commit, or fast-forwarding a branch — sharing the same write path
// CheckoutBranch/CheckoutDetached use for the same effect.
func (w *Worktree) ApplyTree(targetID string) error {
	return w.applyTargetTree(targetID)
}

// applyTargetTree performs steps 3-5 of the checkout algorithm: it
// does not move HEAD, leaving that to the caller so the two HEAD
// shapes (symbolic vs. detached) can each append their own reflog
// entry with their own message.
func (w *Worktree) applyTargetTree(targetID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	currentPaths := make(map[string]bool)
	for _, p := range w.idx.CommittedPaths() {
		currentPaths[p] = true
	}

	var targetFiles []snapshot.FileRecord
	newCommitted := make(map[string]index.Entry)

	if targetID != refs.ZeroID {
		commit, err := w.commits.LoadSnapshot(targetID)
		if err != nil {
			return err
		}
		targetFiles = commit.Files
		for _, f := range commit.Files {
			newCommitted[f.Path] = index.Entry{Path: f.Path, Hash: f.Hash, Mode: f.Mode}
		}
	}

	for _, f := range targetFiles {
		data, err := w.objects.Get(f.Hash)
		if err != nil {
			return fmt.Errorf("worktree: checkout restore %s: %w", f.Path, err)
		}
		if err := writeContent(w.resolvePath(f.Path), data, f.Mode); err != nil {
			return fmt.Errorf("worktree: checkout write %s: %w", f.Path, err)
		}
		delete(currentPaths, f.Path)
	}
	for stale := range currentPaths {
		os.Remove(w.resolvePath(stale)) //nolint:errcheck // target tree no longer carries this path
	}

	w.idx.ResetCommitted(newCommitted)
	return w.idx.Save()
}
