// Package hasher computes the content digests dotman uses to
// content-address blobs and to detect whether a tracked file has
// changed without rereading it on every status scan.
package hasher

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Size is the number of bytes in a digest (128 bits).
const Size = 16

// HashBytes returns the 32-lowercase-hex-character digest of data.
// The underlying XXH3-128 algorithm is not cryptographic, which is
// acceptable here: dotman's threat model is accidental corruption and
// honest edits, not an adversary crafting collisions.
func HashBytes(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return fmt.Sprintf("%x", sum[:])
}

// CachedHash is the (hash, size, mtime) triple captured the last time a
// file's content was actually read and hashed. It is an in-memory
// accelerator only — it is never persisted — and is reconstructed by
// whoever last computed it.
type CachedHash struct {
	Hash  string
	Size  int64
	MTime int64 // seconds since epoch
}

// Valid reports whether cached matches the current (size, mtime) pair
// observed on disk, i.e. whether rehashing can be skipped.
func (cached CachedHash) Valid(size, mtime int64) bool {
	return cached.Size == size && cached.MTime == mtime
}

// HashFile returns the content digest of path along with a fresh
// CachedHash describing the file as observed. If cached is non-nil and
// still valid against the file's current (size, mtime), the file is
// not reread — the cached hash is returned directly. Symlinks are
// hashed by their target string, never by following them: a symlink
// pointing at a huge or missing target must still hash in O(1).
func HashFile(path string, cached *CachedHash) (string, CachedHash, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", CachedHash{}, fmt.Errorf("hasher: stat %s: %w", path, err)
	}

	size := info.Size()
	mtime := info.ModTime().Unix()

	if cached != nil && cached.Valid(size, mtime) {
		return cached.Hash, CachedHash{Hash: cached.Hash, Size: size, MTime: mtime}, nil
	}

	var digest string
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", CachedHash{}, fmt.Errorf("hasher: readlink %s: %w", path, err)
		}
		digest = HashBytes([]byte(target))
	} else {
		sum, err := hashFileStreaming(path)
		if err != nil {
			return "", CachedHash{}, err
		}
		digest = sum
	}

	// No re-stat after reading: the file may have been truncated or
	// replaced mid-read, but we record the size and mtime observed up
	// front, which is the conservative choice — a concurrent writer
	// invalidates the cache on the next scan rather than being silently
	// trusted here.
	return digest, CachedHash{Hash: digest, Size: size, MTime: mtime}, nil
}

// hashFileStreaming reads path in fixed-size chunks and folds them through
// a streaming XXH3-128 hasher, so hashing a large tracked file never
// requires holding its full content in memory.
func hashFileStreaming(path string) (string, error) {
	//nolint:gosec // G304: path is supplied by the index/working-tree walk, not raw user input
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hasher: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := xxh3.New128()
	buf := make([]byte, 64*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n]) //nolint:errcheck // hash.Hash.Write never errors
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("hasher: read %s: %w", path, readErr)
		}
	}

	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum[:]), nil
}
