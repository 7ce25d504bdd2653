package resolve

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rybkr/dotman/internal/dotmanerr"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
)

type fakeGraph struct {
	parents map[string][]string
}

func (g *fakeGraph) lookup(id string) ([]string, error) {
	return g.parents[id], nil
}

func setup(t *testing.T) (*refs.Manager, *snapshot.Store) {
	t.Helper()
	dir := t.TempDir()
	m := refs.New(filepath.Join(dir, ".dotman"))
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	store, err := snapshot.New(filepath.Join(dir, "commits"), 3)
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	return m, store
}

func TestResolveHeadOnEmptyRepo(t *testing.T) {
	m, store := setup(t)
	r := New(m, store, (&fakeGraph{}).lookup)

	id, err := r.Resolve("HEAD")
	if err != nil {
		t.Fatalf("Resolve HEAD: %v", err)
	}
	if id != refs.ZeroID {
		t.Fatalf("expected ZeroID, got %s", id)
	}
}

func TestResolveHeadTildeZeroIsIdentity(t *testing.T) {
	m, store := setup(t)
	if err := m.UpdateBranch("main", "c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1", "tester", "commit", "first"); err != nil {
		t.Fatalf("UpdateBranch: %v", err)
	}
	r := New(m, store, (&fakeGraph{}).lookup)

	id, err := r.Resolve("HEAD~0")
	if err != nil {
		t.Fatalf("Resolve HEAD~0: %v", err)
	}
	if id != "c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1" {
		t.Fatalf("expected identity resolve, got %s", id)
	}
}

func TestResolveHeadTildeWalksFirstParent(t *testing.T) {
	m, store := setup(t)
	graph := &fakeGraph{parents: map[string][]string{
		"c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3": {"c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2"},
		"c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2": {"c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1"},
	}}
	if err := m.UpdateBranch("main", "c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3", "tester", "commit", "third"); err != nil {
		t.Fatalf("UpdateBranch: %v", err)
	}
	r := New(m, store, graph.lookup)

	id, err := r.Resolve("HEAD~2")
	if err != nil {
		t.Fatalf("Resolve HEAD~2: %v", err)
	}
	if id != "c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1" {
		t.Fatalf("expected grandparent, got %s", id)
	}
}

func TestResolveHeadCaretSecondParent(t *testing.T) {
	m, store := setup(t)
	graph := &fakeGraph{parents: map[string][]string{
		"m0m0m0m0m0m0m0m0m0m0m0m0m0m0m0m0": {
			"p1p1p1p1p1p1p1p1p1p1p1p1p1p1p1p1",
			"p2p2p2p2p2p2p2p2p2p2p2p2p2p2p2p2",
		},
	}}
	if err := m.UpdateBranch("main", "m0m0m0m0m0m0m0m0m0m0m0m0m0m0m0m0", "tester", "commit", "merge"); err != nil {
		t.Fatalf("UpdateBranch: %v", err)
	}
	r := New(m, store, graph.lookup)

	id, err := r.Resolve("HEAD^2")
	if err != nil {
		t.Fatalf("Resolve HEAD^2: %v", err)
	}
	if id != "p2p2p2p2p2p2p2p2p2p2p2p2p2p2p2p2" {
		t.Fatalf("expected second parent, got %s", id)
	}
}

func TestResolveOutOfRangeFails(t *testing.T) {
	m, store := setup(t)
	if err := m.UpdateBranch("main", "c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1", "tester", "commit", "first"); err != nil {
		t.Fatalf("UpdateBranch: %v", err)
	}
	r := New(m, store, (&fakeGraph{}).lookup)

	_, err := r.Resolve("HEAD~5")
	if !errors.Is(err, dotmanerr.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef for out-of-range walk, got %v", err)
	}
}

func TestResolveBranchName(t *testing.T) {
	m, store := setup(t)
	if err := m.CreateBranch("feature", "f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1", "tester"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	r := New(m, store, (&fakeGraph{}).lookup)

	id, err := r.Resolve("feature")
	if err != nil {
		t.Fatalf("Resolve feature: %v", err)
	}
	if id != "f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1f1" {
		t.Fatalf("expected feature tip, got %s", id)
	}
}

func TestResolveObjectIDPrefix(t *testing.T) {
	m, store := setup(t)
	files := []snapshot.FileRecord{{Path: "a", Hash: "h", Mode: 0o644}}
	commit, err := store.CreateSnapshot(nil, "m", "a", 1, 0, files, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	r := New(m, store, (&fakeGraph{}).lookup)

	id, err := r.Resolve(commit.ID[:8])
	if err != nil {
		t.Fatalf("Resolve prefix: %v", err)
	}
	if id != commit.ID {
		t.Fatalf("expected full id, got %s", id)
	}
}

func TestResolveUnknownNameFails(t *testing.T) {
	m, store := setup(t)
	r := New(m, store, (&fakeGraph{}).lookup)

	_, err := r.Resolve("no-such-thing")
	if !errors.Is(err, dotmanerr.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
}
