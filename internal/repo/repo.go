// Package repo wires together every other internal package into the
// single orchestrator dotman's command layer talks to: one
// Repository per managed directory, opened once and passed down,
// never re-reading its config or reopening its stores mid-command.
package repo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rybkr/dotman/internal/config"
	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/merge"
	"github.com/rybkr/dotman/internal/objstore"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/remoteadapter"
	"github.com/rybkr/dotman/internal/resolve"
	"github.com/rybkr/dotman/internal/snapshot"
	"github.com/rybkr/dotman/internal/status"
	"github.com/rybkr/dotman/internal/worktree"
)

// metaDirName is the per-repository metadata directory, the dotman
// analogue of ".git".
const metaDirName = ".dotman"

// Repository is the top-level handle on one managed dotfiles
// directory: its working tree, its content-addressed object and
// commit stores, its reference graph, and its configuration.
type Repository struct {
	root     string
	metaRoot string

	cfg      *config.Config
	objects  *objstore.Store
	commits  *snapshot.Store
	idx      *index.Index
	refsMgr  *refs.Manager
	resolver *resolve.Resolver
	ignore   *status.IgnoreMatcher
	wt       *worktree.Worktree
	mapping  *remoteadapter.MappingTable

	log *slog.Logger
}

// MetaRoot returns the path to the repository's metadata directory.
func (r *Repository) MetaRoot() string { return r.metaRoot }

// Root returns the path to the repository's working directory.
func (r *Repository) Root() string { return r.root }

// Config returns the repository's loaded settings.
func (r *Repository) Config() *config.Config { return r.cfg }

// Refs returns the repository's reference manager.
func (r *Repository) Refs() *refs.Manager { return r.refsMgr }

// Commits returns the repository's snapshot store.
func (r *Repository) Commits() *snapshot.Store { return r.commits }

// Resolver returns the repository's ref-expression resolver.
func (r *Repository) Resolver() *resolve.Resolver { return r.resolver }

// Index returns the repository's working index.
func (r *Repository) Index() *index.Index { return r.idx }

// Worktree returns the repository's working-tree mutator.
func (r *Repository) Worktree() *worktree.Worktree { return r.wt }

// Mapping returns the repository's remote commit-id mapping table.
func (r *Repository) Mapping() *remoteadapter.MappingTable { return r.mapping }

func configPath(metaRoot string) string { return filepath.Join(metaRoot, "config.toml") }

func mappingPath(metaRoot string) string { return filepath.Join(metaRoot, "mapping.toml") }

// Init creates a new dotman repository rooted at dir: the metadata
// directory, an empty reference graph on branch "main", and a
// config.toml seeded with the given author identity.
func Init(dir, authorName, authorEmail string) (*Repository, error) {
	metaRoot := filepath.Join(dir, metaDirName)
	if _, err := os.Stat(metaRoot); err == nil {
		return nil, fmt.Errorf("repo: %s already initialized: %w", dir, dotmanerr.ErrPrecondition)
	}
	if err := os.MkdirAll(metaRoot, 0o755); err != nil {
		return nil, fmt.Errorf("repo: mkdir %s: %w", metaRoot, err)
	}

	cfg := config.Default()
	cfg.Author.Name = authorName
	cfg.Author.Email = authorEmail
	if err := config.Save(configPath(metaRoot), cfg); err != nil {
		return nil, err
	}

	refsMgr := refs.New(metaRoot)
	if err := refsMgr.Init(); err != nil {
		return nil, fmt.Errorf("repo: init refs: %w", err)
	}

	return Open(dir)
}

// Open opens an already-initialized repository rooted at dir.
func Open(dir string) (*Repository, error) {
	metaRoot := filepath.Join(dir, metaDirName)
	if _, err := os.Stat(metaRoot); err != nil {
		return nil, fmt.Errorf("repo: %s is not a dotman repository: %w", dir, dotmanerr.ErrNotFound)
	}

	cfg, err := config.Load(configPath(metaRoot))
	if err != nil {
		return nil, err
	}

	level := cfg.Core.CompressionLevel
	objects, err := objstore.New(filepath.Join(metaRoot, "objects"), level)
	if err != nil {
		return nil, fmt.Errorf("repo: open object store: %w", err)
	}
	commits, err := snapshot.New(filepath.Join(metaRoot, "commits"), level)
	if err != nil {
		return nil, fmt.Errorf("repo: open commit store: %w", err)
	}
	refsMgr := refs.New(metaRoot)

	idx, err := index.Load(filepath.Join(metaRoot, "index"))
	if err != nil {
		return nil, fmt.Errorf("repo: load index: %w", err)
	}

	ignore := status.NewIgnoreMatcher(cfg.Ignore)
	resolver := resolve.New(refsMgr, commits, commits.Parents)
	wt := worktree.New(dir, idx, objects, commits, refsMgr, ignore)

	mapping, err := remoteadapter.LoadMappingTable(mappingPath(metaRoot))
	if err != nil {
		return nil, fmt.Errorf("repo: load mapping table: %w", err)
	}

	return &Repository{
		root:     dir,
		metaRoot: metaRoot,
		cfg:      cfg,
		objects:  objects,
		commits:  commits,
		idx:      idx,
		refsMgr:  refsMgr,
		resolver: resolver,
		ignore:   ignore,
		wt:       wt,
		mapping:  mapping,
		log:      slog.Default(),
	}, nil
}

// SaveConfig persists the repository's current in-memory config back
// to config.toml, for commands (remote add/remove/rename) that mutate
// it in place.
func (r *Repository) SaveConfig() error {
	return config.Save(configPath(r.metaRoot), r.cfg)
}

// Pusher returns a remoteadapter.Pusher wired to this repository's
// mapping table and mirrorRoot, ready to drive adapter through a
// push/fetch/pull.
func (r *Repository) Pusher(adapter remoteadapter.Adapter) *remoteadapter.Pusher {
	return remoteadapter.NewPusher(adapter, r.mapping, filepath.Join(r.metaRoot, "mirrors"))
}

// Add stages the given paths (files or directories) for the next
// commit.
func (r *Repository) Add(paths []string) error { return r.wt.Add(paths) }

// Rm removes the given paths from the index without touching the
// working tree.
func (r *Repository) Rm(paths []string) error { return r.wt.Rm(paths) }

// Commit records the staged changes as a new snapshot and advances
// the current branch (or detached HEAD).
func (r *Repository) Commit(message, author string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	if author == "" {
		author = fmt.Sprintf("%s <%s>", r.cfg.Author.Name, r.cfg.Author.Email)
	}
	return r.wt.Commit(message, author, timestamp, tzOffset)
}

// Restore writes paths' content from sourceExpr into the working
// tree without moving HEAD or the index.
func (r *Repository) Restore(paths []string, sourceExpr string) error {
	sourceID, err := r.resolver.Resolve(sourceExpr)
	if err != nil {
		return err
	}
	return r.wt.Restore(paths, sourceID)
}

// Reset moves the current branch (or detached HEAD) to targetExpr
// under the given mode, per worktree.ResetMode.
func (r *Repository) Reset(targetExpr, who string, mode worktree.ResetMode) error {
	targetID, err := r.resolver.Resolve(targetExpr)
	if err != nil {
		return err
	}
	return r.wt.Reset(targetID, who, mode)
}

// Clean removes untracked files, or lists what would be removed if
// dryRun is true.
func (r *Repository) Clean(dryRun bool) ([]string, error) { return r.wt.Clean(dryRun) }

// Status runs the three-way working-tree comparison plus bounded
// untracked-file discovery, returning tracked-path changes and
// untracked paths as two separate slices for callers that want to
// print them under different headings.
func (r *Repository) Status() (tracked []status.Entry, untracked []string, err error) {
	entries, cached, err := status.Compute(r.idx, r.root, r.ignore)
	if err != nil {
		return nil, nil, err
	}
	for path, ch := range cached {
		chCopy := ch
		if e, ok := r.idx.GetStaged(path); ok {
			e.CachedHash = &chCopy
			r.idx.Stage(e)
		}
	}

	for _, e := range entries {
		if e.State == status.Untracked {
			untracked = append(untracked, e.Path)
			continue
		}
		tracked = append(tracked, e)
	}
	return tracked, untracked, nil
}

// CheckoutRef moves HEAD to the commit/branch expr names, writing the
// target tree into the working tree. A bare branch name checks out
// that branch (non-detached); anything else resolves to a commit id
// and detaches HEAD.
func (r *Repository) CheckoutRef(expr, who string, force bool) error {
	if r.refsMgr.BranchExists(expr) {
		return r.wt.CheckoutBranch(expr, who, force)
	}
	commitID, err := r.resolver.Resolve(expr)
	if err != nil {
		return err
	}
	return r.wt.CheckoutDetached(commitID, who, force)
}

// StashPush captures the current staging area as a stash entry.
func (r *Repository) StashPush(message, who string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	return r.wt.StashPush(r.metaRoot, message, who, timestamp, tzOffset)
}

// StashList returns stash entry ids, most-recent first.
func (r *Repository) StashList() ([]string, error) { return r.wt.StashList(r.metaRoot) }

// StashApply re-stages the nth stash entry's files.
func (r *Repository) StashApply(n int) error { return r.wt.StashApply(r.metaRoot, n) }

// StashDrop removes the nth stash entry.
func (r *Repository) StashDrop(n int) error { return r.wt.StashDrop(r.metaRoot, n) }

// StashPop applies then drops the nth stash entry.
func (r *Repository) StashPop(n int) error { return r.wt.StashPop(r.metaRoot, n) }

// Revert computes targetExpr's inverse diff against its principal
// parent and commits the result.
func (r *Repository) Revert(targetExpr, who string, timestamp int64, tzOffset int) (*snapshot.Commit, error) {
	targetID, err := r.resolver.Resolve(targetExpr)
	if err != nil {
		return nil, err
	}
	return r.wt.Revert(targetID, who, timestamp, tzOffset)
}

// rebaseStatePath returns the metadata root under which the merge
// package keeps this repository's persistent rebase state file.
func (r *Repository) rebaseStatePath() string { return r.metaRoot }

// loadRebaseState loads the merge package's RebaseState, erroring via
// dotmanerr.ErrPrecondition if none is in progress.
func (r *Repository) loadRebaseState() (*merge.RebaseState, error) {
	st, err := merge.LoadRebaseState(r.rebaseStatePath())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("repo: no rebase in progress: %w", dotmanerr.ErrPrecondition)
	}
	return st, nil
}
