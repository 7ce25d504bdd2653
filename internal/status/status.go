// Package status implements dotman's three-way working-tree status
// comparison (HEAD tree, index, working tree) and bounded untracked-
// file discovery.
package status

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/index"
)

// State is the classification of one path's status.
type State int

const (
	Unchanged State = iota
	Added
	Modified
	Deleted
	Untracked
)

func (s State) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Untracked:
		return "untracked"
	default:
		return "unchanged"
	}
}

// Entry is one path's computed status.
type Entry struct {
	Path  string
	State State
}

// Compute runs the full three-way comparison (HEAD tree, index,
// working tree) against workDir, using idx's committed/staged/deleted
// views. Indexed paths are hashed in parallel across a worker pool
// sized to GOMAXPROCS, reduced into a single ordered result, expressed
// with errgroup the way gitvista's already-indirect golang.org/x/sync
// dependency implies a worker-pool idiom for this codebase.
func Compute(idx *index.Index, workDir string, ignore *IgnoreMatcher) ([]Entry, map[string]hasher.CachedHash, error) {
	tracked := trackedUnion(idx)

	type result struct {
		path  string
		state State
		cache hasher.CachedHash
		ok    bool
	}

	results := make([]result, len(tracked))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, p := range tracked {
		i, p := i, p
		g.Go(func() error {
			st, cache, ok := computeOne(idx, workDir, p)
			mu.Lock()
			results[i] = result{path: p, state: st, cache: cache, ok: ok}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var entries []Entry
	newCache := make(map[string]hasher.CachedHash)
	for _, r := range results {
		if r.state != Unchanged {
			entries = append(entries, Entry{Path: r.path, State: r.state})
		}
		if r.ok {
			newCache[r.path] = r.cache
		}
	}

	for _, p := range idx.DeletedPaths() {
		entries = append(entries, Entry{Path: p, State: Deleted})
	}

	untracked, err := DiscoverUntracked(workDir, tracked, ignore)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range untracked {
		entries = append(entries, Entry{Path: p, State: Untracked})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, newCache, nil
}

// computeOne classifies a single indexed path against disk.
func computeOne(idx *index.Index, workDir, p string) (State, hasher.CachedHash, bool) {
	full := filepath.Join(workDir, filepath.FromSlash(p))
	if _, err := os.Lstat(full); err != nil {
		return Deleted, hasher.CachedHash{}, false
	}

	staged, isStaged := idx.GetStaged(p)
	committed, isCommitted := idx.GetCommitted(p)

	var cachedPtr *hasher.CachedHash
	if isStaged && staged.CachedHash != nil {
		cachedPtr = staged.CachedHash
	} else if isCommitted && committed.CachedHash != nil {
		cachedPtr = committed.CachedHash
	}

	currentHash, newCache, err := hasher.HashFile(full, cachedPtr)
	if err != nil {
		return Deleted, hasher.CachedHash{}, false
	}

	switch {
	case isCommitted && currentHash == committed.Hash && (!isStaged || staged.Hash == committed.Hash):
		return Unchanged, newCache, true
	case isStaged && currentHash == staged.Hash && !isCommitted:
		return Added, newCache, true
	case isStaged && currentHash == staged.Hash:
		return Modified, newCache, true
	default:
		return Modified, newCache, true
	}
}

func trackedUnion(idx *index.Index) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range idx.CommittedPaths() {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range idx.StagedPaths() {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// DiscoverUntracked walks only the leaf directories of trackedPaths'
// ancestor trie, reporting files present on disk that are neither
// tracked nor ignored. Dot-directories and the repository metadata
// directory itself are always excluded.
func DiscoverUntracked(workDir string, trackedPaths []string, ignore *IgnoreMatcher) ([]string, error) {
	trie := buildLeafTrie(trackedPaths)
	trackedSet := make(map[string]bool, len(trackedPaths))
	for _, p := range trackedPaths {
		trackedSet[p] = true
	}

	var untracked []string
	for _, leafDir := range trie.leafDirs() {
		full := filepath.Join(workDir, filepath.FromSlash(leafDir))
		entries, err := os.ReadDir(full)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			slog.Default().Warn("status: skipping unreadable directory during untracked scan", "dir", leafDir, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			relPath := name
			if leafDir != "" {
				relPath = leafDir + "/" + name
			}
			if trackedSet[relPath] {
				continue
			}
			if ignore != nil && ignore.IsIgnored(relPath, false) {
				continue
			}
			untracked = append(untracked, relPath)
		}
	}
	sort.Strings(untracked)
	return untracked, nil
}
