// Package objstore implements dotman's content-addressed blob store:
// every file version is written once under the digest of its content
// and never mutated in place.
package objstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// Store is a zstd-framed, content-addressed object store rooted at a
// single "objects" directory, following the loose-object layout
// (two-hex-char fan-out directory, then the remaining digest) that the
// reference implementation uses for loose git objects.
type Store struct {
	root  string
	level zstd.EncoderLevel
}

// New returns a Store rooted at root (typically "<repo>/objects"),
// creating the directory if it does not exist. level is the zstd
// compression level in git-historical terms (1 fastest .. 22 smallest);
// it is clamped into zstd's supported encoder levels.
func New(root string, level int) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create %s: %w", root, err)
	}
	return &Store{root: root, level: clampLevel(level)}, nil
}

func clampLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (s *Store) pathFor(id string) string {
	if len(id) < 3 {
		return filepath.Join(s.root, id)
	}
	return filepath.Join(s.root, id[:2], id[2:]+".zst")
}

// Put writes data under its content id (computed by the caller's
// hasher). An id that is already present is left as it is and nothing
// is written. Writing is write-temp-then-rename within the
// destination's own directory so a concurrent reader never observes a
// partially written object, and a crash mid-write leaves only an
// orphaned temp file, never a corrupt one under its final name.
func (s *Store) Put(id string, data []byte) error {
	if s.Exists(id) {
		return nil
	}
	dest := s.pathFor(id)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objstore: mkdir %s: %w", dir, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(s.level))
	if err != nil {
		return fmt.Errorf("objstore: new encoder: %w", err)
	}
	compressed := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if cerr := enc.Close(); cerr != nil {
		return fmt.Errorf("objstore: close encoder: %w", cerr)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("objstore: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()         //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("objstore: write temp %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()         //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("objstore: sync temp %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("objstore: close temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("objstore: rename %s to %s: %w", tmpPath, dest, err)
	}
	return nil
}

// Get reads and decompresses the object stored under id.
func (s *Store) Get(id string) ([]byte, error) {
	path := s.pathFor(id)
	raw, err := os.ReadFile(path) //nolint:gosec // G304: id is a validated content digest, not raw user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("objstore: object %s: %w", id, dotmanerr.ErrNotFound)
		}
		return nil, fmt.Errorf("objstore: read %s: %w", path, err)
	}

	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("objstore: object %s: %w", id, dotmanerr.ErrCorrupt)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("objstore: decompress %s: %w", id, dotmanerr.ErrCorrupt)
	}
	return data, nil
}

// Exists reports whether an object is present under id, without
// decompressing it.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// Root returns the directory this store is rooted at.
func (s *Store) Root() string {
	return s.root
}
