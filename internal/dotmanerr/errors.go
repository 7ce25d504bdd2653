// Package dotmanerr defines the sentinel error taxonomy shared across
// dotman's core packages. Callers use errors.Is to classify a failure
// without parsing message text.
package dotmanerr

import "errors"

var (
	// ErrNotFound covers a missing path, object, commit, or ref.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous means a short object-id prefix matched more than one object.
	ErrAmbiguous = errors.New("ambiguous reference")

	// ErrCorrupt means a stored record failed to deserialize, decompress, or
	// recompute to the id it was stored under.
	ErrCorrupt = errors.New("corrupt object")

	// ErrConflict means a merge or rebase step could not auto-resolve.
	ErrConflict = errors.New("conflict")

	// ErrPrecondition means an operation's preconditions were not met:
	// uncommitted changes block checkout, nothing to commit, a branch is not
	// fully merged, a rebase is already in progress, and similar cases.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInvalidRef means a ref expression was malformed or out of range.
	ErrInvalidRef = errors.New("invalid ref")

	// ErrTransport means the remote adapter rejected an operation.
	ErrTransport = errors.New("transport rejected")

	// ErrInternal covers I/O failures and invariant violations that should
	// never occur from ordinary user input.
	ErrInternal = errors.New("internal error")
)
