package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rybkr/dotman/internal/hasher"
	"github.com/rybkr/dotman/internal/index"
)

func writeFixture(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestComputeCleanTreeIsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, ".bashrc", "export A=1\n")

	idx := index.New(filepath.Join(dir, "index.bin"))
	id := hasher.HashBytes([]byte("export A=1\n"))
	idx.Stage(index.Entry{Path: ".bashrc", Hash: id, Size: 11, Mode: 0o644})
	idx.CommitStaged()

	entries, _, err := Compute(idx, dir, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected clean tree to report no entries, got %+v", entries)
	}
}

func TestComputeModifiedFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, ".bashrc", "export A=1\n")

	idx := index.New(filepath.Join(dir, "index.bin"))
	id := hasher.HashBytes([]byte("export A=1\n"))
	idx.Stage(index.Entry{Path: ".bashrc", Hash: id, Size: 11, Mode: 0o644})
	idx.CommitStaged()

	writeFixture(t, dir, ".bashrc", "export A=2\n")

	entries, _, err := Compute(idx, dir, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != ".bashrc" || entries[0].State != Modified {
		t.Fatalf("expected single Modified entry, got %+v", entries)
	}
}

func TestComputeDeletedFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, ".vimrc", "set nu\n")

	idx := index.New(filepath.Join(dir, "index.bin"))
	id := hasher.HashBytes([]byte("set nu\n"))
	idx.Stage(index.Entry{Path: ".vimrc", Hash: id, Size: 7, Mode: 0o644})
	idx.CommitStaged()

	if err := os.Remove(filepath.Join(dir, ".vimrc")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	entries, _, err := Compute(idx, dir, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(entries) != 1 || entries[0].State != Deleted {
		t.Fatalf("expected single Deleted entry, got %+v", entries)
	}
}

func TestComputeAddedStagedFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, ".newrc", "new\n")

	idx := index.New(filepath.Join(dir, "index.bin"))
	id := hasher.HashBytes([]byte("new\n"))
	idx.Stage(index.Entry{Path: ".newrc", Hash: id, Size: 4, Mode: 0o644})

	entries, _, err := Compute(idx, dir, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(entries) != 1 || entries[0].State != Added {
		t.Fatalf("expected single Added entry, got %+v", entries)
	}
}

func TestDiscoverUntrackedLimitedToLeafDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "config/app/settings.toml", "a=1\n")
	writeFixture(t, dir, "config/app/extra.toml", "untracked\n")
	// A directory with no tracked file in it at all must never be walked.
	writeFixture(t, dir, "unrelated/other.txt", "should not appear\n")

	untracked, err := DiscoverUntracked(dir, []string{"config/app/settings.toml"}, nil)
	if err != nil {
		t.Fatalf("DiscoverUntracked: %v", err)
	}
	if len(untracked) != 1 || untracked[0] != "config/app/extra.toml" {
		t.Fatalf("expected only config/app/extra.toml, got %v", untracked)
	}
}

func TestDiscoverUntrackedRespectsIgnoreGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "notes.txt", "tracked\n")
	writeFixture(t, dir, "notes.bak", "ignored\n")

	matcher := NewIgnoreMatcher([]string{"*.bak"})
	untracked, err := DiscoverUntracked(dir, []string{"notes.txt"}, matcher)
	if err != nil {
		t.Fatalf("DiscoverUntracked: %v", err)
	}
	if len(untracked) != 0 {
		t.Fatalf("expected *.bak excluded, got %v", untracked)
	}
}

func TestDiscoverUntrackedSkipsDotfiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "tracked.txt", "tracked\n")
	writeFixture(t, dir, ".hidden", "dotfile\n")

	untracked, err := DiscoverUntracked(dir, []string{"tracked.txt"}, nil)
	if err != nil {
		t.Fatalf("DiscoverUntracked: %v", err)
	}
	if len(untracked) != 0 {
		t.Fatalf("expected dot-prefixed files excluded from untracked report, got %v", untracked)
	}
}
