package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/objstore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "commits"), 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCreateSnapshotDeterministicID(t *testing.T) {
	s := newStore(t)
	files := []FileRecord{{Path: ".bashrc", Hash: "h1", Mode: 0o644}}

	c1, err := s.CreateSnapshot(nil, "initial", "a <a@example.com>", 1000, 0, files, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	s2 := newStore(t)
	c2, err := s2.CreateSnapshot(nil, "initial", "a <a@example.com>", 1000, 0, files, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot second store: %v", err)
	}

	if c1.ID != c2.ID {
		t.Fatalf("expected deterministic id, got %s vs %s", c1.ID, c2.ID)
	}
	if len(c1.ID) != 32 {
		t.Fatalf("expected 32-hex id, got %q", c1.ID)
	}
}

func TestCreateSnapshotParentAffectsID(t *testing.T) {
	s := newStore(t)
	files := []FileRecord{{Path: "a", Hash: "h", Mode: 0o644}}

	root, err := s.CreateSnapshot(nil, "m", "a", 1, 0, files, nil)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	withParent, err := s.CreateSnapshot([]string{root.ID}, "m", "a", 1, 0, files, nil)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if withParent.ID == root.ID {
		t.Fatalf("expected distinct id once a parent is added")
	}
	if withParent.Parent != root.ID {
		t.Fatalf("expected Parent set to principal parent, got %s", withParent.Parent)
	}
}

func TestLoadSnapshotRoundTrip(t *testing.T) {
	s := newStore(t)
	files := []FileRecord{{Path: ".gitconfig", Hash: "gh1", Mode: 0o644}}
	created, err := s.CreateSnapshot(nil, "first commit", "me", 500, -420, files, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	loaded, err := s.LoadSnapshot(created.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Message != "first commit" || loaded.TreeHash != created.TreeHash {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestResolvePrefixNotFoundAndFullID(t *testing.T) {
	s := newStore(t)
	files1 := []FileRecord{{Path: "a", Hash: "h1", Mode: 0o644}}
	files2 := []FileRecord{{Path: "b", Hash: "h2", Mode: 0o644}}

	c1, err := s.CreateSnapshot(nil, "m1", "a", 1, 0, files1, nil)
	if err != nil {
		t.Fatalf("c1: %v", err)
	}
	_, err = s.CreateSnapshot(nil, "m2", "a", 2, 0, files2, nil)
	if err != nil {
		t.Fatalf("c2: %v", err)
	}

	if _, err := s.ResolvePrefix("deadbeef0000"); !errors.Is(err, dotmanerr.ErrNotFound) {
		t.Fatalf("expected NotFound for an unused prefix, got %v", err)
	}

	// A full id should always resolve even if it happens to share a
	// short prefix with another object.
	resolved, err := s.ResolvePrefix(c1.ID)
	if err != nil {
		t.Fatalf("ResolvePrefix full id: %v", err)
	}
	if resolved != c1.ID {
		t.Fatalf("ResolvePrefix full id mismatch: %s vs %s", resolved, c1.ID)
	}
}

func TestListSnapshotsSorted(t *testing.T) {
	s := newStore(t)
	for i, msg := range []string{"one", "two", "three"} {
		if _, err := s.CreateSnapshot(nil, msg, "a", int64(i), 0, []FileRecord{{Path: msg, Hash: msg, Mode: 0o644}}, nil); err != nil {
			t.Fatalf("CreateSnapshot %s: %v", msg, err)
		}
	}
	ids, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("expected sorted ids, got %v", ids)
		}
	}
}

func TestWalkAncestorsFollowsParentChain(t *testing.T) {
	s := newStore(t)
	root, err := s.CreateSnapshot(nil, "root", "a", 1, 0, []FileRecord{{Path: "a", Hash: "h", Mode: 0o644}}, nil)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	child, err := s.CreateSnapshot([]string{root.ID}, "child", "a", 2, 0, []FileRecord{{Path: "a", Hash: "h2", Mode: 0o644}}, nil)
	if err != nil {
		t.Fatalf("child: %v", err)
	}

	next := s.WalkAncestors(child.ID)
	var got []string
	for {
		id, ok := next()
		if !ok {
			break
		}
		got = append(got, id)
	}
	if len(got) != 2 || got[0] != child.ID || got[1] != root.ID {
		t.Fatalf("expected [child, root], got %v", got)
	}
}

func TestRestoreFileContent(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t)
	blobs, err := objstore.New(filepath.Join(dir, "objects"), 3)
	if err != nil {
		t.Fatalf("objstore.New: %v", err)
	}
	if err := blobs.Put("content1", []byte("umask 022\n")); err != nil {
		t.Fatalf("blobs.Put: %v", err)
	}

	dest := filepath.Join(dir, "restored", ".profile")
	if err := s.RestoreFileContent(blobs, "content1", dest, 0o644); err != nil {
		t.Fatalf("RestoreFileContent: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "umask 022\n" {
		t.Fatalf("restored content = %q", got)
	}
}
