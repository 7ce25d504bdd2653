// Package remoteadapter defines the contract dotman's core delegates
// network transport to and the bidirectional commit-id mapping table
// that makes repeated push/fetch cycles idempotent. The core never
// speaks a wire protocol itself — it hands an Adapter implementation
// a commit id and a scratch directory and trusts it to do the rest.
package remoteadapter

import "context"

// ForceMode selects how aggressively Push may overwrite the remote
// branch.
type ForceMode int

const (
	// ForceNormal rejects the push unless it is a fast-forward.
	ForceNormal ForceMode = iota
	// ForceAlways overwrites the remote branch unconditionally.
	ForceAlways
	// ForceWithLease overwrites only if the remote branch still
	// matches the last value this mapping table observed for it.
	ForceWithLease
)

// PushResult is the outcome of a push attempt.
type PushResult struct {
	OK              bool
	RejectedReason  string
	ExternalCommitID string
}

// Adapter is the contract an external transport collaborator
// implements. dotman's core calls it with already-resolved local
// commit ids and scratch directories; it never constructs wire
// messages itself.
type Adapter interface {
	// InitMirror ensures a scratch working directory exists for
	// remote, configured against its URL and the caller's identity.
	InitMirror(ctx context.Context, remote string) error

	// ExportCommit materializes commitID's full tree into workdir.
	ExportCommit(ctx context.Context, commitID, workdir string) error

	// CommitInMirror captures workdir's current state as a commit in
	// the external transport, preserving timestamp, and returns the
	// transport's own commit identifier.
	CommitInMirror(ctx context.Context, message, author string, timestamp int64) (externalCommitID string, err error)

	// Push attempts to advance remote's branch to externalCommitID
	// under the given force mode.
	Push(ctx context.Context, remote, branch, externalCommitID string, mode ForceMode) (PushResult, error)

	// VerifyRemoteHas queries the remote and confirms branch
	// currently advertises externalCommitID.
	VerifyRemoteHas(ctx context.Context, remote, branch, externalCommitID string) (bool, error)

	// Fetch retrieves new commits for branch (all branches if branch
	// is empty) without integrating them into the working tree.
	Fetch(ctx context.Context, remote, branch string) error

	// Pull fetches then integrates branch's new commits.
	Pull(ctx context.Context, remote, branch string) error
}
