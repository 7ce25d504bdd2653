// Package merge implements dotman's merge building blocks: merge-base
// search, the tree-level three-way merge decision, the diff3-style
// line region walk used to render conflict markers, and the persistent
// rebase state machine. Choosing between a fast-forward and a merge
// commit is left to the caller.
package merge

import (
	"fmt"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/snapshot"
)

// ParentLookup returns the ordered parent list of a commit id.
type ParentLookup func(id string) ([]string, error)

// MergeBase finds a common ancestor of ours and theirs by walking
// parents of both and intersecting the visited sets. Per spec this is
// deliberately simplified — it returns any common ancestor, not
// necessarily the best (lowest) one a full merge-base algorithm would
// pick.
func MergeBase(ours, theirs string, parents ParentLookup) (string, error) {
	if ours == theirs {
		return ours, nil
	}

	oursAncestors, err := ancestorSet(ours, parents)
	if err != nil {
		return "", err
	}
	theirsAncestors, err := ancestorSet(theirs, parents)
	if err != nil {
		return "", err
	}

	if oursAncestors[theirs] {
		return theirs, nil
	}
	if theirsAncestors[ours] {
		return ours, nil
	}
	for id := range oursAncestors {
		if theirsAncestors[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("merge: no common ancestor between %s and %s: %w", ours, theirs, dotmanerr.ErrPrecondition)
}

func ancestorSet(start string, parents ParentLookup) (map[string]bool, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ps, err := parents(id)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return visited, nil
}

// IsAncestor reports whether tip is reachable from target by walking
// target's ancestors — used by refs.Manager's fully-merged branch
// deletion check.
func IsAncestor(tip, target string, parents ParentLookup) (bool, error) {
	set, err := ancestorSet(target, parents)
	if err != nil {
		return false, err
	}
	return set[tip], nil
}

// FileDecision is the outcome of merging one path across base/ours/theirs.
type FileDecision struct {
	Path     string
	Hash     string // winning content hash; empty if the path is deleted
	Mode     uint32
	Conflict bool
}

// ThreeWayMergeTrees merges three file tables (as path->hash/mode
// maps) following a simplified policy: identical hashes resolve
// cleanly; a path present on only one side keeps that side's version,
// unless base holds the same hash, in which case the other side's
// deletion wins; a path present on both sides with different hashes
// takes the incoming (theirs) version and is reported as a conflicted
// path for the caller to surface to the user, whether or not one side
// still matches base.
func ThreeWayMergeTrees(base, ours, theirs map[string]snapshot.FileRecord) []FileDecision {
	paths := make(map[string]bool)
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	var decisions []FileDecision
	for path := range paths {
		b, inBase := base[path]
		o, inOurs := ours[path]
		t, inTheirs := theirs[path]

		switch {
		case inOurs && inTheirs && o.Hash == t.Hash:
			decisions = append(decisions, FileDecision{Path: path, Hash: o.Hash, Mode: o.Mode})
		case inOurs && !inTheirs:
			if inBase && b.Hash == o.Hash {
				// theirs deleted it, ours didn't touch it: honor the deletion.
				decisions = append(decisions, FileDecision{Path: path})
			} else {
				decisions = append(decisions, FileDecision{Path: path, Hash: o.Hash, Mode: o.Mode})
			}
		case !inOurs && inTheirs:
			if inBase && b.Hash == t.Hash {
				decisions = append(decisions, FileDecision{Path: path})
			} else {
				decisions = append(decisions, FileDecision{Path: path, Hash: t.Hash, Mode: t.Mode})
			}
		case inOurs && inTheirs:
			// Both sides hold the path with different hashes (base is
			// not consulted): simplified policy takes theirs and flags
			// the conflict.
			decisions = append(decisions, FileDecision{Path: path, Hash: t.Hash, Mode: t.Mode, Conflict: true})
		}
	}
	return decisions
}

// FilesToMap converts a commit's file table into a path-keyed map.
func FilesToMap(files []snapshot.FileRecord) map[string]snapshot.FileRecord {
	m := make(map[string]snapshot.FileRecord, len(files))
	for _, f := range files {
		m[f.Path] = f
	}
	return m
}
