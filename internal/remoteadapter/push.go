package remoteadapter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// Pusher drives the export -> commit-in-mirror -> push -> verify
// sequence, keeping the mapping table's on-disk state transactional:
// a pending local/external id pair is only committed to disk once the
// remote has confirmed it holds the pushed commit.
type Pusher struct {
	adapter    Adapter
	mapping    *MappingTable
	mirrorRoot string
}

// NewPusher returns a Pusher that materializes mirrors under
// mirrorRoot (conventionally "<repo-root>/mirrors").
func NewPusher(adapter Adapter, mapping *MappingTable, mirrorRoot string) *Pusher {
	return &Pusher{adapter: adapter, mapping: mapping, mirrorRoot: mirrorRoot}
}

func (p *Pusher) mirrorDir(remote string) string {
	return filepath.Join(p.mirrorRoot, remote)
}

// Push exports commitID into remote's mirror, commits it there,
// attempts the push under mode, and — only if the remote verifiably
// advertises the result — persists the local/external id pair to the
// mapping table. Any failure along the way rolls the in-memory
// pending writes back and leaves the on-disk mapping table untouched.
func (p *Pusher) Push(ctx context.Context, remote, branch, commitID, author, message string, timestamp int64, mode ForceMode) (PushResult, error) {
	workdir := p.mirrorDir(remote)

	if err := p.adapter.InitMirror(ctx, remote); err != nil {
		return PushResult{}, fmt.Errorf("remoteadapter: init mirror %s: %w", remote, err)
	}
	if err := p.adapter.ExportCommit(ctx, commitID, workdir); err != nil {
		return PushResult{}, fmt.Errorf("remoteadapter: export %s to %s: %w", commitID, remote, err)
	}
	externalID, err := p.adapter.CommitInMirror(ctx, message, author, timestamp)
	if err != nil {
		return PushResult{}, fmt.Errorf("remoteadapter: commit in mirror %s: %w", remote, err)
	}

	result, err := p.adapter.Push(ctx, remote, branch, externalID, mode)
	if err != nil {
		p.mapping.Rollback() //nolint:errcheck // best-effort on an already-failing path
		return PushResult{}, fmt.Errorf("remoteadapter: push to %s: %w", remote, err)
	}
	if !result.OK {
		p.mapping.Rollback() //nolint:errcheck
		return result, fmt.Errorf("remoteadapter: push to %s rejected: %s: %w", remote, result.RejectedReason, dotmanerr.ErrTransport)
	}

	verified, err := p.adapter.VerifyRemoteHas(ctx, remote, branch, externalID)
	if err != nil {
		p.mapping.Rollback() //nolint:errcheck
		return result, fmt.Errorf("remoteadapter: verify %s: %w", remote, err)
	}
	if !verified {
		p.mapping.Rollback() //nolint:errcheck
		return result, fmt.Errorf("remoteadapter: remote %s did not advertise pushed commit: %w", remote, dotmanerr.ErrTransport)
	}

	p.mapping.StagePending(remote, commitID, externalID)
	if err := p.mapping.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// Fetch retrieves new commits for branch from remote without
// integrating them into the working tree.
func (p *Pusher) Fetch(ctx context.Context, remote, branch string) error {
	if err := p.adapter.InitMirror(ctx, remote); err != nil {
		return fmt.Errorf("remoteadapter: init mirror %s: %w", remote, err)
	}
	return p.adapter.Fetch(ctx, remote, branch)
}

// Pull fetches then integrates branch's new commits from remote.
func (p *Pusher) Pull(ctx context.Context, remote, branch string) error {
	if err := p.adapter.InitMirror(ctx, remote); err != nil {
		return fmt.Errorf("remoteadapter: init mirror %s: %w", remote, err)
	}
	return p.adapter.Pull(ctx, remote, branch)
}
