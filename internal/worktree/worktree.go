// Package worktree implements dotman's working-tree mutators: staging,
// committing, resetting, restoring, cleaning, and removing tracked
// paths. Everything that walks or writes the working directory lives
// here; object storage, the index, and the ref graph are composed in
// rather than reimplemented.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/objstore"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
	"github.com/rybkr/dotman/internal/status"
)

// Worktree wires the working directory to the staging area, blob
// store, commit store, and ref graph of one repository.
type Worktree struct {
	root     string // working directory
	objects  *objstore.Store
	commits  *snapshot.Store
	refs     *refs.Manager
	ignore   *status.IgnoreMatcher

	mu  sync.Mutex
	idx *index.Index
}

// New returns a Worktree rooted at root, operating on the given index
// and stores. idx is owned by the Worktree for the remainder of its
// lifetime: callers should not mutate it concurrently.
func New(root string, idx *index.Index, objects *objstore.Store, commits *snapshot.Store, refsManager *refs.Manager, ignore *status.IgnoreMatcher) *Worktree {
	return &Worktree{root: root, idx: idx, objects: objects, commits: commits, refs: refsManager, ignore: ignore}
}

// Index returns the staging area backing this Worktree.
func (w *Worktree) Index() *index.Index { return w.idx }

// ResetMode selects how much of the repository state Reset rewinds.
type ResetMode int

const (
	// ResetSoft moves HEAD/branch only.
	ResetSoft ResetMode = iota
	// ResetMixed moves HEAD/branch and replaces the index's committed
	// view, leaving the working tree untouched.
	ResetMixed
	// ResetHard moves HEAD/branch, replaces the index, and overwrites
	// the working tree to match the target commit.
	ResetHard
)

func (m ResetMode) String() string {
	switch m {
	case ResetSoft:
		return "soft"
	case ResetHard:
		return "hard"
	default:
		return "mixed"
	}
}

// resolvePath converts a relative, slash-separated tracked path to its
// absolute location under the working tree.
func (w *Worktree) resolvePath(relPath string) string {
	return filepath.Join(w.root, filepath.FromSlash(relPath))
}

// collectPaths expands a list of file/directory arguments into the set
// of regular-file and symlink paths they name, relative to w.root and
// slash-separated. Directories are walked recursively, skipping
// entries the ignore matcher excludes and the metadata directory
// itself; an explicitly named file is always included even if an
// ignore pattern would otherwise match it, matching how dotman treats
// an explicit argument as an override of the general glob rules.
func (w *Worktree) collectPaths(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, arg := range args {
		abs := filepath.Join(w.root, arg)
		rel, err := filepath.Rel(w.root, abs)
		if err != nil {
			return nil, fmt.Errorf("worktree: %s: %w", arg, err)
		}
		rel = filepath.ToSlash(rel)

		info, err := os.Lstat(abs)
		if err != nil {
			return nil, fmt.Errorf("worktree: %s: %w", arg, dotmanerr.ErrNotFound)
		}
		if !info.IsDir() {
			if !seen[rel] {
				seen[rel] = true
				out = append(out, rel)
			}
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			entryRel, relErr := filepath.Rel(w.root, path)
			if relErr != nil {
				return relErr
			}
			entryRel = filepath.ToSlash(entryRel)
			if d.IsDir() {
				name := d.Name()
				if name != "." && (name == ".dotman" || (len(name) > 0 && name[0] == '.' && path != abs)) {
					return filepath.SkipDir
				}
				return nil
			}
			if w.ignore != nil && w.ignore.IsIgnored(entryRel, false) {
				return nil
			}
			if !seen[entryRel] {
				seen[entryRel] = true
				out = append(out, entryRel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("worktree: walk %s: %w", arg, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// readContent returns the addressable content of a tracked path: a
// symlink hashes and stores its target string, a regular file its raw
// bytes. The companion mode bits carry the symlink flag so Checkout
// and Restore know how to write it back.
func readContent(absPath string) (data []byte, mode uint32, err error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, 0, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(absPath)
		if err != nil {
			return nil, 0, fmt.Errorf("worktree: readlink %s: %w", absPath, err)
		}
		return []byte(target), uint32(info.Mode()), nil
	}
	data, err = os.ReadFile(absPath) //nolint:gosec // G304: path comes from a directory walk under the working tree
	if err != nil {
		return nil, 0, fmt.Errorf("worktree: read %s: %w", absPath, err)
	}
	return data, uint32(info.Mode()), nil
}

// writeContent materializes data at absPath with the given mode,
// creating a symlink if the symlink bit is set and an ordinary file
// otherwise.
func writeContent(absPath string, data []byte, mode uint32) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("worktree: mkdir for %s: %w", absPath, err)
	}
	if os.FileMode(mode)&os.ModeSymlink != 0 {
		os.Remove(absPath) //nolint:errcheck // replacing a stale symlink/file is expected
		return os.Symlink(string(data), absPath)
	}
	perm := os.FileMode(mode).Perm()
	if perm == 0 {
		perm = 0o644
	}
	return os.WriteFile(absPath, data, perm)
}

// Add stages each named path (file, symlink, or recursively-walked
// directory) at its current on-disk content, hashing and writing
// blobs in parallel the same way internal/status fans out its
// comparisons, then reducing into the index under a single lock.
func (w *Worktree) Add(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := w.collectPaths(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	type staged struct {
		entry index.Entry
		err   error
	}
	results := make([]staged, len(files))
	var resMu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			abs := w.resolvePath(rel)
			info, statErr := os.Lstat(abs)
			if statErr != nil {
				resMu.Lock()
				results[i] = staged{err: statErr}
				resMu.Unlock()
				return nil //nolint:nilerr // a vanished file is reported per-entry, not fatal to the batch
			}
			data, mode, readErr := readContent(abs)
			if readErr != nil {
				resMu.Lock()
				results[i] = staged{err: readErr}
				resMu.Unlock()
				return nil //nolint:nilerr
			}
			hash := hasher.HashBytes(data)
			if putErr := w.objects.Put(hash, data); putErr != nil {
				return fmt.Errorf("worktree: add %s: %w", rel, putErr)
			}
			entry := index.Entry{
				Path:  rel,
				Hash:  hash,
				Size:  info.Size(),
				MTime: info.ModTime().Unix(),
				Mode:  mode,
				CachedHash: &hasher.CachedHash{
					Hash:  hash,
					Size:  info.Size(),
					MTime: info.ModTime().Unix(),
				},
			}
			resMu.Lock()
			results[i] = staged{entry: entry}
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.err != nil {
			continue // vanished between collection and hashing; skip like git does
		}
		if committed, ok := w.idx.GetCommitted(r.entry.Path); ok && committed.Hash == r.entry.Hash && committed.Mode == r.entry.Mode {
			continue // unmodified relative to HEAD: don't stage (idempotence)
		}
		w.idx.Stage(r.entry)
	}
	return w.idx.Save()
}

// Rm removes each named path from the index only: it is never deleted
// from the working tree. This is a deliberate safety choice (dotman
// manages dotfiles a user is actively relying on; silently unlinking
// one because it left the index would be hostile) rather than an
// oversight mirroring a "git rm --cached" default.
func (w *Worktree) Rm(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		rel := filepath.ToSlash(p)
		_, committed := w.idx.GetCommitted(rel)
		_, stagedOK := w.idx.GetStaged(rel)
		if !committed && !stagedOK {
			return fmt.Errorf("worktree: rm %s: %w", rel, dotmanerr.ErrNotFound)
		}
		w.idx.MarkDeleted(rel)
	}
	return w.idx.Save()
}

// buildCommitFiles folds the index's committed and staged views into
// the sorted file table a new commit should carry, honoring pending
// deletions.
func buildCommitFiles(idx *index.Index) []snapshot.FileRecord {
	merged := make(map[string]index.Entry)
	for _, p := range idx.CommittedPaths() {
		e, _ := idx.GetCommitted(p)
		merged[p] = e
	}
	for _, p := range idx.StagedPaths() {
		e, _ := idx.GetStaged(p)
		merged[p] = e
	}
	for _, p := range idx.DeletedPaths() {
		delete(merged, p)
	}

	files := make([]snapshot.FileRecord, 0, len(merged))
	for p, e := range merged {
		files = append(files, snapshot.FileRecord{Path: p, Hash: e.Hash, Mode: e.Mode})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// BuildCommitFiles folds the index's committed and staged views (minus
// any deleted paths) into the sorted file table a new commit would
// carry, without creating the commit. Merge/rebase commits use this
// directly so their multi-parent snapshots are built the same way a
// plain Commit's is.
func (w *Worktree) BuildCommitFiles() []snapshot.FileRecord {
	return buildCommitFiles(w.idx)
}

// Commit records the current staging area as a new snapshot, advances
// HEAD (the current branch, or HEAD itself if detached), appends a
// reflog entry, and folds the staged view into committed. It fails if
// there is nothing staged, since an empty commit carries no
// information a reader could act on.
func (w *Worktree) Commit(message, author string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.idx.HasStagedChanges() {
		return nil, fmt.Errorf("worktree: commit: nothing staged: %w", dotmanerr.ErrPrecondition)
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

	commit, err := w.commits.CreateSnapshot(parents, message, author, timestamp, tzOffset, files, deleted)
	if err != nil {
		return nil, err
	}

	branch, err := w.refs.CurrentBranch()
	if err != nil {
		return nil, err
	}
	if branch != "" {
		if !w.refs.BranchExists(branch) {
			if err := w.refs.CreateBranch(branch, commit.ID, author); err != nil {
				return nil, err
			}
		} else if err := w.refs.UpdateBranch(branch, commit.ID, author, "commit", message); err != nil {
			return nil, err
		}
	} else {
		if err := w.refs.SetHeadToCommit(commit.ID, author, "commit", message); err != nil {
			return nil, err
		}
	}

	w.idx.CommitStaged()
	if err := w.idx.Save(); err != nil {
		return nil, err
	}
	return commit, nil
}

// Reset moves HEAD (and the current branch, if any) to target in one
// of three modes: soft touches only refs, mixed also replaces the
// index's committed view, hard additionally overwrites the working
// tree to match target's file table.
func (w *Worktree) Reset(targetID, who string, mode ResetMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	target, err := w.commits.LoadSnapshot(targetID)
	if err != nil {
		return err
	}

	branch, err := w.refs.CurrentBranch()
	if err != nil {
		return err
	}
	operation := "reset --" + mode.String()
	if branch != "" {
		if err := w.refs.UpdateBranch(branch, target.ID, who, operation, target.ID); err != nil {
			return err
		}
	} else if err := w.refs.SetHeadToCommit(target.ID, who, operation, target.ID); err != nil {
		return err
	}

	if mode == ResetSoft {
		return nil
	}

	previousPaths := make(map[string]bool)
	for _, p := range w.idx.CommittedPaths() {
		previousPaths[p] = true
	}

	newCommitted := make(map[string]index.Entry, len(target.Files))
	for _, f := range target.Files {
		newCommitted[f.Path] = index.Entry{Path: f.Path, Hash: f.Hash, Mode: f.Mode}
	}
	w.idx.ResetCommitted(newCommitted)
	if err := w.idx.Save(); err != nil {
		return err
	}

	if mode != ResetHard {
		return nil
	}

	for _, f := range target.Files {
		abs := w.resolvePath(f.Path)
		data, getErr := w.objects.Get(f.Hash)
		if getErr != nil {
			return fmt.Errorf("worktree: reset --hard %s: %w", f.Path, getErr)
		}
		if err := writeContent(abs, data, f.Mode); err != nil {
			return fmt.Errorf("worktree: reset --hard write %s: %w", f.Path, err)
		}
		delete(previousPaths, f.Path)
	}
	for stale := range previousPaths {
		os.Remove(w.resolvePath(stale)) //nolint:errcheck // best-effort cleanup of paths the new tree no longer carries
	}
	return nil
}

// Restore writes the content of paths as recorded in sourceID into the
// working tree, without moving HEAD, the branch, or the index. A path
// absent from the source commit is removed from the working tree,
// mirroring "restore to a commit that never had it".
func (w *Worktree) Restore(paths []string, sourceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	commit, err := w.commits.LoadSnapshot(sourceID)
	if err != nil {
		return err
	}
	byPath := make(map[string]snapshot.FileRecord, len(commit.Files))
	for _, f := range commit.Files {
		byPath[f.Path] = f
	}

	for _, p := range paths {
		rel := filepath.ToSlash(p)
		f, ok := byPath[rel]
		if !ok {
			os.Remove(w.resolvePath(rel)) //nolint:errcheck // restoring to a state that never had this path removes it
			continue
		}
		data, err := w.objects.Get(f.Hash)
		if err != nil {
			return fmt.Errorf("worktree: restore %s: %w", rel, err)
		}
		if err := writeContent(w.resolvePath(rel), data, f.Mode); err != nil {
			return fmt.Errorf("worktree: restore %s: %w", rel, err)
		}
	}
	return nil
}

// Clean reports (and, unless dryRun, deletes) untracked files, bounded
// to the leaf-directory trie internal/status already builds for
// status's own untracked-file discovery.
func (w *Worktree) Clean(dryRun bool) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tracked := append(w.idx.CommittedPaths(), w.idx.StagedPaths()...)
	untracked, err := status.DiscoverUntracked(w.root, tracked, w.ignore)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return untracked, nil
	}
	for _, p := range untracked {
		if err := os.Remove(w.resolvePath(p)); err != nil && !os.IsNotExist(err) {
			return untracked, fmt.Errorf("worktree: clean %s: %w", p, err)
		}
	}
	return untracked, nil
}
