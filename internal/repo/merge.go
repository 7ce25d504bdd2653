package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/merge"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
)

// MergeResult reports the outcome of Merge.
type MergeResult struct {
	FastForward   bool
	AlreadyUpToDate bool
	Commit        *snapshot.Commit
	ConflictPaths []string
}

// Merge integrates theirExpr into the current branch using a
// simplified three-way policy: a path present on both sides with
// different content takes the incoming version and is reported as
// conflicted, even when only one side changed it since the merge
// base, rather than writing
// textual conflict markers (that is rebase's job, see Rebase below).
// A fast-forward is taken whenever the current tip is an ancestor of
// theirs, unless noFF forces a merge commit.
func (r *Repository) Merge(theirExpr, who string, noFF bool, timestamp int64, tzOffset int) (*MergeResult, error) {
	ours, err := r.refsMgr.GetHeadCommit()
	if err != nil {
		return nil, err
	}
	theirs, err := r.resolver.Resolve(theirExpr)
	if err != nil {
		return nil, err
	}
	if ours == theirs {
		return &MergeResult{AlreadyUpToDate: true}, nil
	}

	base, err := merge.MergeBase(ours, theirs, r.commits.Parents)
	if err != nil {
		return nil, err
	}
	if base == theirs {
		return &MergeResult{AlreadyUpToDate: true}, nil
	}

	if base == ours && !noFF {
		if err := r.wt.ApplyTree(theirs); err != nil {
			return nil, err
		}
		if err := r.advanceHead(theirs, who, "merge", "fast-forward to "+theirs); err != nil {
			return nil, err
		}
		commit, err := r.commits.LoadSnapshot(theirs)
		if err != nil {
			return nil, err
		}
		return &MergeResult{FastForward: true, Commit: commit}, nil
	}

	baseFiles, oursFiles, theirsFiles, err := r.loadMergeTrees(base, ours, theirs)
	if err != nil {
		return nil, err
	}
	decisions := merge.ThreeWayMergeTrees(baseFiles, oursFiles, theirsFiles)

	conflicts, err := r.wt.ApplyMergeDecisions(decisions)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Merge %s into current branch", theirExpr)
	author := fmt.Sprintf("%s <%s>", r.cfg.Author.Name, r.cfg.Author.Email)
	commit, err := r.mergeCommit(ours, theirs, message, author, timestamp, tzOffset)
	if err != nil {
		return nil, err
	}

	return &MergeResult{Commit: commit, ConflictPaths: conflicts}, nil
}

// loadMergeTrees resolves base/ours/theirs commit ids into path-keyed
// file tables, treating an empty base (no common ancestor) as an
// empty tree.
func (r *Repository) loadMergeTrees(base, ours, theirs string) (baseFiles, oursFiles, theirsFiles map[string]snapshot.FileRecord, err error) {
	baseFiles = map[string]snapshot.FileRecord{}
	if base != "" {
		c, err := r.commits.LoadSnapshot(base)
		if err != nil {
			return nil, nil, nil, err
		}
		baseFiles = merge.FilesToMap(c.Files)
	}
	oc, err := r.commits.LoadSnapshot(ours)
	if err != nil {
		return nil, nil, nil, err
	}
	tc, err := r.commits.LoadSnapshot(theirs)
	if err != nil {
		return nil, nil, nil, err
	}
	return baseFiles, merge.FilesToMap(oc.Files), merge.FilesToMap(tc.Files), nil
}

// mergeCommit folds the index's current staged+committed view into a
// new two-parent commit and advances HEAD, mirroring
// worktree.Worktree.Commit but carrying both merge parents.
func (r *Repository) mergeCommit(ours, theirs, message, author string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	idx := r.idx
	files := r.wt.BuildCommitFiles()

	commit, err := r.commits.CreateSnapshot([]string{ours, theirs}, message, author, timestamp, tzOffset, files, idx.DeletedPaths())
	if err != nil {
		return nil, err
	}
	idx.CommitStaged()
	if err := idx.Save(); err != nil {
		return nil, err
	}
	if err := r.advanceHead(commit.ID, author, "merge", message); err != nil {
		return nil, err
	}
	return commit, nil
}

// advanceHead moves the current branch (or detached HEAD) to id.
func (r *Repository) advanceHead(id, who, operation, message string) error {
	branch, err := r.refsMgr.CurrentBranch()
	if err != nil {
		return err
	}
	if branch != "" {
		return r.refsMgr.UpdateBranch(branch, id, who, operation, message)
	}
	return r.refsMgr.SetHeadToCommit(id, who, operation, message)
}

// RebaseOutcome reports the result of starting, continuing, or
// stepping through a rebase.
type RebaseOutcome struct {
	Done          bool
	Conflicted    bool
	ConflictPaths []string
	FinalHead     string
}

// Rebase replays the current branch's commits since its merge-base
// with ontoExpr onto ontoExpr's tip, one at a time, driving a
// persistent state machine that survives a process restart.
func (r *Repository) Rebase(ontoExpr, who string, timestamp int64, tzOffset int) (*RebaseOutcome, error) {
	if merge.InProgress(r.metaRoot) {
		return nil, fmt.Errorf("repo: rebase: %w", dotmanerr.ErrPrecondition)
	}

	onto, err := r.resolver.Resolve(ontoExpr)
	if err != nil {
		return nil, err
	}
	branch, head, err := r.refsMgr.CurrentBranchAndHead()
	if err != nil {
		return nil, err
	}

	base, err := merge.MergeBase(head, onto, r.commits.Parents)
	if err != nil {
		return nil, err
	}

	var toReplay []string
	next := r.commits.WalkAncestors(head)
	for {
		id, ok := next()
		if !ok || id == base {
			break
		}
		toReplay = append([]string{id}, toReplay...) // prepend: oldest first
	}

	if len(toReplay) == 0 {
		if err := r.wt.ApplyTree(onto); err != nil {
			return nil, err
		}
		if err := r.advanceHead(onto, who, "rebase", "rebase onto "+onto); err != nil {
			return nil, err
		}
		return &RebaseOutcome{Done: true, FinalHead: onto}, nil
	}

	if err := r.wt.ApplyTree(onto); err != nil {
		return nil, err
	}
	if err := r.refsMgr.SetHeadToCommit(onto, who, "rebase", "start rebase onto "+onto); err != nil {
		return nil, err
	}

	st := &merge.RebaseState{
		Onto:            onto,
		OriginalHead:    head,
		OriginalBranch:  branch,
		CommitsToReplay: toReplay,
		CurrentIndex:    0,
	}
	if err := st.Save(r.metaRoot); err != nil {
		return nil, err
	}

	return r.driveRebase(st, who, timestamp, tzOffset)
}

// driveRebase replays commits from the current index onward until it
// either finishes, hits a conflict, or errors.
func (r *Repository) driveRebase(st *merge.RebaseState, who string, timestamp int64, tzOffset int) (*RebaseOutcome, error) {
	for st.CurrentIndex < len(st.CommitsToReplay) {
		replayID := st.CommitsToReplay[st.CurrentIndex]
		replayed, err := r.commits.LoadSnapshot(replayID)
		if err != nil {
			return nil, err
		}

		parentFiles := map[string]snapshot.FileRecord{}
		if replayed.Parent != "" {
			if pc, err := r.commits.LoadSnapshot(replayed.Parent); err == nil {
				parentFiles = merge.FilesToMap(pc.Files)
			}
		}

		tip, err := r.refsMgr.GetHeadCommit()
		if err != nil {
			return nil, err
		}
		var tipFiles map[string]snapshot.FileRecord
		if tip == refs.ZeroID {
			tipFiles = map[string]snapshot.FileRecord{}
		} else {
			tc, err := r.commits.LoadSnapshot(tip)
			if err != nil {
				return nil, err
			}
			tipFiles = merge.FilesToMap(tc.Files)
		}
		replayedFiles := merge.FilesToMap(replayed.Files)

		decisions := merge.ThreeWayMergeTrees(parentFiles, tipFiles, replayedFiles)
		decisions = r.filterNotTouched(decisions, replayedFiles, parentFiles, tipFiles)

		conflicts, err := r.wt.ApplyMergeDecisions(decisions)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			if err := r.writeConflictMarkers(conflicts, parentFiles, tipFiles, replayedFiles); err != nil {
				return nil, err
			}
			st.ConflictFiles = conflicts
			if err := st.Save(r.metaRoot); err != nil {
				return nil, err
			}
			return &RebaseOutcome{Conflicted: true, ConflictPaths: conflicts}, nil
		}

		if _, err := r.wt.Commit(replayed.Message, replayed.Author, timestamp, tzOffset); err != nil {
			return nil, err
		}

		st.CurrentIndex++
		st.ConflictFiles = nil
		if err := st.Save(r.metaRoot); err != nil {
			return nil, err
		}
	}

	return r.finishRebase(st, who)
}

// ContinueRebase resumes a conflicted rebase after the user has
// resolved the markers in every file st.ConflictFiles names.
func (r *Repository) ContinueRebase(who string, timestamp int64, tzOffset int) (*RebaseOutcome, error) {
	st, err := r.loadRebaseState()
	if err != nil {
		return nil, err
	}
	for _, p := range st.ConflictFiles {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(p))) //nolint:gosec // repo-managed working tree path
		if err != nil {
			return nil, fmt.Errorf("repo: rebase continue: read %s: %w", p, err)
		}
		if hasConflictMarkers(data) {
			return nil, fmt.Errorf("repo: rebase continue: %s still has conflict markers: %w", p, dotmanerr.ErrPrecondition)
		}
		if err := r.wt.StageResolved(p, 0); err != nil {
			return nil, err
		}
	}
	replayID := st.CommitsToReplay[st.CurrentIndex]
	replayed, err := r.commits.LoadSnapshot(replayID)
	if err != nil {
		return nil, err
	}
	if _, err := r.wt.Commit(replayed.Message, replayed.Author, timestamp, tzOffset); err != nil {
		return nil, err
	}
	st.CurrentIndex++
	st.ConflictFiles = nil
	if err := st.Save(r.metaRoot); err != nil {
		return nil, err
	}
	return r.driveRebase(st, who, timestamp, tzOffset)
}

// SkipRebase discards the current conflicted commit without applying
// it and moves on to the next one.
func (r *Repository) SkipRebase(who string, timestamp int64, tzOffset int) (*RebaseOutcome, error) {
	st, err := r.loadRebaseState()
	if err != nil {
		return nil, err
	}
	st.CurrentIndex++
	st.ConflictFiles = nil
	if err := st.Save(r.metaRoot); err != nil {
		return nil, err
	}
	return r.driveRebase(st, who, timestamp, tzOffset)
}

// AbortRebase restores the repository to its pre-rebase state and
// clears the rebase state file.
func (r *Repository) AbortRebase(who string) error {
	st, err := r.loadRebaseState()
	if err != nil {
		return err
	}
	if err := r.wt.ApplyTree(st.OriginalHead); err != nil {
		return err
	}
	if st.OriginalBranch != "" {
		if err := r.refsMgr.UpdateBranch(st.OriginalBranch, st.OriginalHead, who, "rebase-abort", "aborted rebase"); err != nil {
			return err
		}
		if err := r.refsMgr.SetHeadToBranch(st.OriginalBranch, who, "rebase-abort", "aborted rebase"); err != nil {
			return err
		}
	} else {
		if err := r.refsMgr.SetHeadToCommit(st.OriginalHead, who, "rebase-abort", "aborted rebase"); err != nil {
			return err
		}
	}
	return merge.Clear(r.metaRoot)
}

func (r *Repository) finishRebase(st *merge.RebaseState, who string) (*RebaseOutcome, error) {
	finalHead, err := r.refsMgr.GetHeadCommit()
	if err != nil {
		return nil, err
	}
	if st.OriginalBranch != "" {
		if err := r.refsMgr.UpdateBranch(st.OriginalBranch, finalHead, who, "rebase", "rebase finished"); err != nil {
			return nil, err
		}
		if err := r.refsMgr.SetHeadToBranch(st.OriginalBranch, who, "rebase", "rebase finished"); err != nil {
			return nil, err
		}
	}
	if err := merge.Clear(r.metaRoot); err != nil {
		return nil, err
	}
	return &RebaseOutcome{Done: true, FinalHead: finalHead}, nil
}

// filterNotTouched reclassifies the "not touched by the replayed
// commit" false deletions FilterNotTouchedPaths identifies: a path
// ThreeWayMergeTrees decided to delete because it is missing from the
// replayed commit's file table, but which is only missing because
// that commit never touched it, keeps the tip's current version
// instead of treating absence as an intentional delete.
func (r *Repository) filterNotTouched(decisions []merge.FileDecision, replayedFiles, parentFiles map[string]snapshot.FileRecord, tipFiles map[string]snapshot.FileRecord) []merge.FileDecision {
	replayedHash := toHashMap(replayedFiles)
	parentHash := toHashMap(parentFiles)

	out := make([]merge.FileDecision, 0, len(decisions))
	for _, d := range decisions {
		if d.Hash == "" && !d.Conflict {
			candidates := merge.FilterNotTouchedPaths([]string{d.Path}, replayedHash, parentHash)
			if len(candidates) == 0 {
				if t, ok := tipFiles[d.Path]; ok {
					d = merge.FileDecision{Path: d.Path, Hash: t.Hash, Mode: t.Mode}
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func toHashMap(files map[string]snapshot.FileRecord) map[string]string {
	m := make(map[string]string, len(files))
	for p, f := range files {
		m[p] = f.Hash
	}
	return m
}

// writeConflictMarkers renders standard three-way markers for each
// conflicted path and writes them into the working tree — unlike
// Merge's record-and-surface policy, a rebase conflict leaves the
// user real textual markers to resolve by hand.
func (r *Repository) writeConflictMarkers(paths []string, parentFiles, tipFiles, replayedFiles map[string]snapshot.FileRecord) error {
	for _, p := range paths {
		baseContent := r.contentFor(parentFiles, p)
		oursContent := r.contentFor(tipFiles, p)
		theirsContent := r.contentFor(replayedFiles, p)
		regions := merge.ThreeWayDiff(baseContent, oursContent, theirsContent)
		rendered := merge.RenderWithMarkers(regions, "HEAD", "incoming")
		if err := r.wt.WriteRaw(p, rendered); err != nil {
			return fmt.Errorf("repo: write conflict markers %s: %w", p, err)
		}
	}
	return nil
}

func (r *Repository) contentFor(files map[string]snapshot.FileRecord, path string) []byte {
	rec, ok := files[path]
	if !ok {
		return nil
	}
	data, err := r.objects.Get(rec.Hash)
	if err != nil {
		return nil
	}
	return data
}

// hasConflictMarkers reports whether data still contains an
// unresolved three-way conflict marker.
func hasConflictMarkers(data []byte) bool {
	return bytes.Contains(data, []byte("<<<<<<< "))
}
