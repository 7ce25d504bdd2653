// Package snapshot implements dotman's commit store: immutable,
// content-addressed records of a tree state plus the ancestor walk
// and prefix resolution needed to find one.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/objstore"
)

// FileRecord is one entry in a commit's file table.
type FileRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Mode uint32 `json:"mode"`
}

// Commit is dotman's snapshot record: the sole unit of history.
// Multi-parent merges carry every parent in Parents, with Parent
// holding the principal (first) one for the common single-parent case.
type Commit struct {
	ID        string       `json:"id"`
	Parent    string       `json:"parent,omitempty"`
	Parents   []string     `json:"parents,omitempty"`
	Message   string       `json:"message"`
	Author    string       `json:"author"`
	Timestamp int64        `json:"timestamp"`
	TZOffset  int          `json:"tz_offset"`
	TreeHash  string       `json:"tree_hash"`
	Files     []FileRecord `json:"files"`
}

// Store reads and writes Commit records through an object store
// rooted at a separate "commits" directory, kept apart from the
// content-addressed blob store under objects/.
type Store struct {
	objects *objstore.Store
}

// New returns a Store that writes commit records under root (typically
// "<repo>/commits") using compressionLevel (1-22, see internal/objstore).
func New(root string, compressionLevel int) (*Store, error) {
	objs, err := objstore.New(root, compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &Store{objects: objs}, nil
}

// TreeHash computes the canonical digest of a file table: sorted
// "<hash> <path>\n" lines for live entries, "DELETED <path>\n" lines
// for tombstones recorded by path only.
func TreeHash(files []FileRecord, deletedPaths []string) string {
	lines := make([]string, 0, len(files)+len(deletedPaths))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("%s %s\n", f.Hash, f.Path))
	}
	for _, p := range deletedPaths {
		lines = append(lines, fmt.Sprintf("DELETED %s\n", p))
	}
	sort.Strings(lines)

	var buf strings.Builder
	for _, l := range lines {
		buf.WriteString(l)
	}
	return hasher.HashBytes([]byte(buf.String()))
}

// computeID derives a commit's content-addressed id from its
// canonical fields. Parents are serialized in order so that reordering
// parent lists (which matters for which parent is "first") yields a
// different id.
func computeID(parents []string, message, author string, timestamp int64, tzOffset int, treeHash string) string {
	var buf strings.Builder
	buf.WriteString(treeHash)
	buf.WriteByte('\n')
	for _, p := range parents {
		buf.WriteString(p)
		buf.WriteByte('\n')
	}
	buf.WriteString(message)
	buf.WriteByte('\n')
	buf.WriteString(author)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.WriteString(strconv.Itoa(tzOffset))
	return hasher.HashBytes([]byte(buf.String()))
}

// CreateSnapshot builds and persists a Commit from the given fields,
// computing both the tree hash and the commit id. If a record already
// exists under the computed id, its content is compared byte-for-byte
// as a self-check: the id function is deterministic, so a mismatch can
// only mean the object store is corrupt.
func (s *Store) CreateSnapshot(parents []string, message, author string, timestamp int64, tzOffset int, files []FileRecord, deletedPaths []string) (*Commit, error) {
	sortedFiles := make([]FileRecord, len(files))
	copy(sortedFiles, files)
	sort.Slice(sortedFiles, func(i, j int) bool { return sortedFiles[i].Path < sortedFiles[j].Path })

	treeHash := TreeHash(sortedFiles, deletedPaths)
	id := computeID(parents, message, author, timestamp, tzOffset, treeHash)

	commit := &Commit{
		ID:        id,
		Message:   message,
		Author:    author,
		Timestamp: timestamp,
		TZOffset:  tzOffset,
		TreeHash:  treeHash,
		Files:     sortedFiles,
		Parents:   parents,
	}
	if len(parents) > 0 {
		commit.Parent = parents[0]
	}

	body, err := json.Marshal(commit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal commit: %w", err)
	}

	if s.objects.Exists(id) {
		existing, err := s.objects.Get(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: self-check read %s: %w", id, err)
		}
		if string(existing) != string(body) {
			return nil, fmt.Errorf("snapshot: id collision on %s: %w", id, dotmanerr.ErrCorrupt)
		}
		return commit, nil
	}

	if err := s.objects.Put(id, body); err != nil {
		return nil, fmt.Errorf("snapshot: write %s: %w", id, err)
	}
	return commit, nil
}

// LoadSnapshot resolves idOrPrefix (a full 32-hex id, or an
// unambiguous prefix of at least 4 hex characters) and returns the
// decoded Commit.
func (s *Store) LoadSnapshot(idOrPrefix string) (*Commit, error) {
	id, err := s.ResolvePrefix(idOrPrefix)
	if err != nil {
		return nil, err
	}
	data, err := s.objects.Get(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", id, err)
	}
	var commit Commit
	if err := json.Unmarshal(data, &commit); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w: %w", id, err, dotmanerr.ErrCorrupt)
	}
	return &commit, nil
}

// ResolvePrefix resolves a full id or an unambiguous >=4-hex prefix to
// a full commit id.
func (s *Store) ResolvePrefix(idOrPrefix string) (string, error) {
	if len(idOrPrefix) == 32 {
		if !s.objects.Exists(idOrPrefix) {
			return "", fmt.Errorf("snapshot: %s: %w", idOrPrefix, dotmanerr.ErrNotFound)
		}
		return idOrPrefix, nil
	}
	if len(idOrPrefix) < 4 {
		return "", fmt.Errorf("snapshot: prefix %q shorter than minimum 4 hex chars: %w", idOrPrefix, dotmanerr.ErrInvalidRef)
	}

	ids, err := s.ListSnapshots()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, idOrPrefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("snapshot: prefix %s: %w", idOrPrefix, dotmanerr.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("snapshot: prefix %s matches %d commits: %w", idOrPrefix, len(matches), dotmanerr.ErrAmbiguous)
	}
}

// ListSnapshots enumerates every commit id in the store.
func (s *Store) ListSnapshots() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(s.objects.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Default().Warn("snapshot: skipping unreadable entry during list", "path", path, "error", err)
			return nil //nolint:nilerr // skip unreadable entries, don't abort the whole walk
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		const suffix = ".zst"
		if !strings.HasSuffix(name, suffix) {
			return nil
		}
		dir := filepath.Base(filepath.Dir(path))
		if len(dir) != 2 {
			return nil
		}
		ids = append(ids, dir+strings.TrimSuffix(name, suffix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// WalkAncestors returns a lazy sequence of commit ids following Parent
// starting at id, tolerating a broken chain by stopping at the first
// missing commit rather than failing the whole walk.
func (s *Store) WalkAncestors(id string) func() (string, bool) {
	current := id
	first := true
	return func() (string, bool) {
		if current == "" {
			return "", false
		}
		if !first {
			commit, err := s.LoadSnapshot(current)
			if err != nil {
				return "", false
			}
			current = commit.Parent
			if current == "" {
				return "", false
			}
		}
		first = false
		result := current
		if s.objects.Exists(result) {
			return result, true
		}
		return "", false
	}
}

// Parents returns the parent commit ids of id, for use as a
// merge.ParentLookup / resolve.ParentLookup implementation.
func (s *Store) Parents(id string) ([]string, error) {
	commit, err := s.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}
	return commit.Parents, nil
}

// RestoreFileContent copies the blob stored under contentHash to
// destination, applying mode bits and creating intermediate
// directories as needed.
func (s *Store) RestoreFileContent(blobs *objstore.Store, contentHash, destination string, mode os.FileMode) error {
	data, err := blobs.Get(contentHash)
	if err != nil {
		return fmt.Errorf("snapshot: restore %s: %w", destination, err)
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir for %s: %w", destination, err)
	}
	if err := os.WriteFile(destination, data, mode); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", destination, err)
	}
	return nil
}
