package repo

import (
	"context"
	"fmt"

	"github.com/rybkr/dotman/internal/config"
	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/remoteadapter"
)

// AddRemote records a new [remotes.<name>] entry and persists
// config.toml. It fails if name already exists.
func (r *Repository) AddRemote(name, url string) error {
	if _, ok := r.cfg.Remotes[name]; ok {
		return fmt.Errorf("repo: remote %s already exists: %w", name, dotmanerr.ErrPrecondition)
	}
	r.cfg.SetRemote(name, url)
	return r.SaveConfig()
}

// RemoveRemote deletes a remote entry from config.toml.
func (r *Repository) RemoveRemote(name string) error {
	if !r.cfg.RemoveRemote(name) {
		return fmt.Errorf("repo: remote %s: %w", name, dotmanerr.ErrNotFound)
	}
	return r.SaveConfig()
}

// SetRemoteURL updates an existing remote's URL, failing if it does
// not exist.
func (r *Repository) SetRemoteURL(name, url string) error {
	if _, ok := r.cfg.Remotes[name]; !ok {
		return fmt.Errorf("repo: remote %s: %w", name, dotmanerr.ErrNotFound)
	}
	r.cfg.SetRemote(name, url)
	return r.SaveConfig()
}

// RenameRemoteEntry renames a remote entry.
func (r *Repository) RenameRemoteEntry(oldName, newName string) error {
	if err := r.cfg.RenameRemote(oldName, newName); err != nil {
		return err
	}
	return r.SaveConfig()
}

// ShowRemote returns a remote's configured URL.
func (r *Repository) ShowRemote(name string) (config.RemoteConfig, error) {
	rc, ok := r.cfg.Remotes[name]
	if !ok {
		return config.RemoteConfig{}, fmt.Errorf("repo: remote %s: %w", name, dotmanerr.ErrNotFound)
	}
	return rc, nil
}

// ListRemotes returns every configured remote's name.
func (r *Repository) ListRemotes() []string {
	names := make([]string, 0, len(r.cfg.Remotes))
	for name := range r.cfg.Remotes {
		names = append(names, name)
	}
	return names
}

// PushResult reports the outcome of Push.
type PushResult struct {
	remoteadapter.PushResult
}

// Push exports the current branch tip to remote/branch through
// adapter under mode, transactionally: the mapping table is only
// updated once the remote verifiably holds the pushed commit.
func (r *Repository) Push(ctx context.Context, adapter remoteadapter.Adapter, remoteName, branch string, mode remoteadapter.ForceMode, who string, timestamp int64) (*PushResult, error) {
	if _, ok := r.cfg.Remotes[remoteName]; !ok {
		return nil, fmt.Errorf("repo: remote %s: %w", remoteName, dotmanerr.ErrNotFound)
	}
	if branch == "" {
		current, err := r.refsMgr.CurrentBranch()
		if err != nil {
			return nil, err
		}
		if current == "" {
			return nil, fmt.Errorf("repo: push: HEAD is detached, no branch to push: %w", dotmanerr.ErrPrecondition)
		}
		branch = current
	}
	commitID, err := r.refsMgr.GetBranchCommit(branch)
	if err != nil {
		return nil, err
	}
	if commitID == "" || commitID == refs.ZeroID {
		return nil, fmt.Errorf("repo: push: branch %s has no commits: %w", branch, dotmanerr.ErrPrecondition)
	}

	commit, err := r.commits.LoadSnapshot(commitID)
	if err != nil {
		return nil, err
	}

	result, err := r.Pusher(adapter).Push(ctx, remoteName, branch, commitID, commit.Author, commit.Message, timestamp, mode)
	if err != nil {
		return &PushResult{result}, err
	}
	if err := r.refsMgr.UpdateRemoteRef(remoteName, branch, commitID); err != nil {
		return &PushResult{result}, err
	}
	return &PushResult{result}, nil
}

// Fetch retrieves new commits for branch (or every branch, if empty)
// from remote without integrating them into the working tree.
func (r *Repository) Fetch(ctx context.Context, adapter remoteadapter.Adapter, remoteName, branch string) error {
	if _, ok := r.cfg.Remotes[remoteName]; !ok {
		return fmt.Errorf("repo: remote %s: %w", remoteName, dotmanerr.ErrNotFound)
	}
	return r.Pusher(adapter).Fetch(ctx, remoteName, branch)
}

// Pull fetches branch's new commits from remote and has adapter
// integrate them: importing changes into dotman is the adapter's
// concern, not the core's — dotman only asks for the pull and trusts
// the adapter to leave the repository in the resulting state.
func (r *Repository) Pull(ctx context.Context, adapter remoteadapter.Adapter, remoteName, branch string) error {
	if _, ok := r.cfg.Remotes[remoteName]; !ok {
		return fmt.Errorf("repo: remote %s: %w", remoteName, dotmanerr.ErrNotFound)
	}
	if branch == "" {
		current, err := r.refsMgr.CurrentBranch()
		if err != nil {
			return err
		}
		branch = current
	}
	return r.Pusher(adapter).Pull(ctx, remoteName, branch)
}
