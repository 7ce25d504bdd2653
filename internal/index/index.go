// Package index implements dotman's staging area: three disjoint
// path-keyed views (committed, staged, deleted) persisted as one
// versioned record and mutated under an exclusive advisory lock.
package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/hasher"
)

// magic identifies an index record, followed by a uint32 version, as
// a small header in front of the JSON body — versioned the same way
// gitvista's own index parser treats the 4-byte "DIRC" signature, but
// the body itself is JSON rather than git's packed binary layout since
// dotman has no compatibility obligation to git's on-disk format.
const magic = "DMIX"

const version uint32 = 1

// Entry is one row of the index: a tracked path's content identity.
type Entry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	MTime int64 `json:"mtime"`
	Mode uint32 `json:"mode"`

	// CachedHash accelerates repeated hashing; never serialized.
	CachedHash *hasher.CachedHash `json:"-"`
}

// record is the on-disk shape of an Index.
type record struct {
	Committed map[string]Entry `json:"committed"`
	Staged    map[string]Entry `json:"staged"`
	Deleted   map[string]bool  `json:"deleted"`
}

// Index is the in-memory staging area for one repository.
type Index struct {
	path      string
	committed map[string]Entry
	staged    map[string]Entry
	deleted   map[string]bool
}

// New returns an empty Index that will persist to path.
func New(path string) *Index {
	return &Index{
		path:      path,
		committed: make(map[string]Entry),
		staged:    make(map[string]Entry),
		deleted:   make(map[string]bool),
	}
}

// Load reads and deserializes the index at path under a shared
// advisory lock. A missing file yields an empty Index (a fresh repo
// has no index yet); any other read failure is returned as is, and a
// decode failure is reported as ErrCorrupt — a half-written or
// malformed index is a hard failure with no automatic recovery, by
// design.
func Load(path string) (*Index, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("index: lock %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is repo-internal, not user-controlled
	if os.IsNotExist(err) {
		return New(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}

	idx, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("index: decode %s: %w: %w", path, err, dotmanerr.ErrCorrupt)
	}
	idx.path = path
	return idx, nil
}

func decode(data []byte) (*Index, error) {
	if len(data) < len(magic)+4 {
		return nil, fmt.Errorf("truncated header")
	}
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("bad magic %q", data[:len(magic)])
	}
	gotVersion := binary.BigEndian.Uint32(data[len(magic) : len(magic)+4])
	if gotVersion != version {
		return nil, fmt.Errorf("unsupported index version %d", gotVersion)
	}

	var rec record
	if err := json.Unmarshal(data[len(magic)+4:], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}

	idx := &Index{
		committed: rec.Committed,
		staged:    rec.Staged,
		deleted:   rec.Deleted,
	}
	if idx.committed == nil {
		idx.committed = make(map[string]Entry)
	}
	if idx.staged == nil {
		idx.staged = make(map[string]Entry)
	}
	if idx.deleted == nil {
		idx.deleted = make(map[string]bool)
	}
	// Cached-hash is session-scoped; drop whatever slipped through (it
	// never should, since we never serialize it, but a defensive clear
	// here keeps the invariant obvious at the boundary).
	for k, e := range idx.committed {
		e.CachedHash = nil
		idx.committed[k] = e
	}
	for k, e := range idx.staged {
		e.CachedHash = nil
		idx.staged[k] = e
	}
	return idx, nil
}

// Save serializes the index and writes it atomically under an
// exclusive advisory lock: cached-hash fields are stripped (they are
// an in-memory-only accelerator) and the write goes to a temp file in
// the same directory before being renamed into place.
func (idx *Index) Save() error {
	lock := flock.New(idx.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("index: lock %s: %w", idx.path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	rec := record{
		Committed: stripCache(idx.committed),
		Staged:    stripCache(idx.staged),
		Deleted:   idx.deleted,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("index: marshal: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(magic)
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], version)
	buf.Write(versionBytes[:])
	buf.Write(body)

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-index-*")
	if err != nil {
		return fmt.Errorf("index: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("index: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("index: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("index: rename into place: %w", err)
	}
	return nil
}

func stripCache(m map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(m))
	for k, e := range m {
		e.CachedHash = nil
		out[k] = e
	}
	return out
}

// Stage records entry as queued for the next commit, and clears any
// pending deletion for the same path: staged and deleted are disjoint.
func (idx *Index) Stage(entry Entry) {
	delete(idx.deleted, entry.Path)
	idx.staged[entry.Path] = entry
}

// Unstage drops path from the staged view, leaving committed/deleted
// untouched.
func (idx *Index) Unstage(path string) {
	delete(idx.staged, path)
}

// MarkDeleted records path as staged for removal, clearing any
// pending staged addition for the same path.
func (idx *Index) MarkDeleted(path string) {
	delete(idx.staged, path)
	idx.deleted[path] = true
}

// ClearStaged drops all pending staged additions and deletions
// without touching the committed view.
func (idx *Index) ClearStaged() {
	idx.staged = make(map[string]Entry)
	idx.deleted = make(map[string]bool)
}

// CommitStaged folds the staged view into committed, removes deleted
// paths from committed, and clears both staged and deleted.
func (idx *Index) CommitStaged() {
	for path, entry := range idx.staged {
		idx.committed[path] = entry
	}
	for path := range idx.deleted {
		delete(idx.committed, path)
	}
	idx.staged = make(map[string]Entry)
	idx.deleted = make(map[string]bool)
}

// ResetCommitted replaces the entire committed view and clears both
// staged and deleted, the shape a "reset --mixed"/"reset --hard"
// target tree takes before any working-tree write happens.
func (idx *Index) ResetCommitted(entries map[string]Entry) {
	idx.committed = entries
	idx.staged = make(map[string]Entry)
	idx.deleted = make(map[string]bool)
}

// GetCommitted returns the committed entry for path, if any.
func (idx *Index) GetCommitted(path string) (Entry, bool) {
	e, ok := idx.committed[path]
	return e, ok
}

// GetStaged returns the staged entry for path, if any.
func (idx *Index) GetStaged(path string) (Entry, bool) {
	e, ok := idx.staged[path]
	return e, ok
}

// IsDeleted reports whether path is staged for removal.
func (idx *Index) IsDeleted(path string) bool {
	return idx.deleted[path]
}

// CommittedPaths returns the committed view's paths in sorted order.
func (idx *Index) CommittedPaths() []string {
	return sortedKeys(idx.committed)
}

// StagedPaths returns the staged view's paths in sorted order.
func (idx *Index) StagedPaths() []string {
	return sortedKeys(idx.staged)
}

// DeletedPaths returns the deleted view's paths in sorted order.
func (idx *Index) DeletedPaths() []string {
	out := make([]string, 0, len(idx.deleted))
	for p := range idx.deleted {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasStagedChanges reports whether committing now would change any
// tracked content: a staged entry whose hash or mode differs from
// committed (or that is new), or any pending deletion.
func (idx *Index) HasStagedChanges() bool {
	if len(idx.deleted) > 0 {
		return true
	}
	for path, staged := range idx.staged {
		committed, ok := idx.committed[path]
		if !ok || committed.Hash != staged.Hash || committed.Mode != staged.Mode {
			return true
		}
	}
	return false
}
