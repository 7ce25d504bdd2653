package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rybkr/dotman/internal/index"
	"github.com/rybkr/dotman/internal/objstore"
	"github.com/rybkr/dotman/internal/refs"
	"github.com/rybkr/dotman/internal/snapshot"
	"github.com/rybkr/dotman/internal/status"
)

type fixture struct {
	workDir string
	wt      *Worktree
	refsMgr *refs.Manager
	commits *snapshot.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workDir := t.TempDir()
	metaRoot := t.TempDir()

	objects, err := objstore.New(filepath.Join(metaRoot, "objects"), 3)
	if err != nil {
		t.Fatalf("objstore.New: %v", err)
	}
	commits, err := snapshot.New(filepath.Join(metaRoot, "commits"), 3)
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	refsMgr := refs.New(metaRoot)
	if err := refsMgr.Init(); err != nil {
		t.Fatalf("refs.Init: %v", err)
	}
	idx := index.New(filepath.Join(metaRoot, "index"))
	ignore := status.NewIgnoreMatcher(nil)

	wt := New(workDir, idx, objects, commits, refsMgr, ignore)
	return &fixture{workDir: workDir, wt: wt, refsMgr: refsMgr, commits: commits}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestAddThenCommitAdvancesBranch(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "export PATH=/usr/bin\n")

	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !fx.wt.Index().HasStagedChanges() {
		t.Fatalf("expected staged changes after Add")
	}

	commit, err := fx.wt.Commit("first snapshot", "tester", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(commit.Files) != 1 || commit.Files[0].Path != ".bashrc" {
		t.Fatalf("unexpected commit files: %+v", commit.Files)
	}

	head, err := fx.refsMgr.GetHeadCommit()
	if err != nil {
		t.Fatalf("GetHeadCommit: %v", err)
	}
	if head != commit.ID {
		t.Fatalf("expected HEAD to advance to %s, got %s", commit.ID, head)
	}
	if fx.wt.Index().HasStagedChanges() {
		t.Fatalf("expected clean staging area after commit")
	}
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.wt.Commit("empty", "tester", 1000, 0); err == nil {
		t.Fatalf("expected error committing with nothing staged")
	}
}

func TestAddOfUnmodifiedCommittedFileDoesNotStage(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "export PATH=/usr/bin\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("first", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add unmodified: %v", err)
	}
	if fx.wt.Index().HasStagedChanges() {
		t.Fatalf("expected unmodified, already-committed file not to be staged")
	}
	if _, ok := fx.wt.Index().GetStaged(".bashrc"); ok {
		t.Fatalf("expected no staged entry for unmodified file")
	}
}

func TestResetMixedReplacesIndexLeavesWorkingTree(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "v1\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	first, err := fx.wt.Commit("v1", "tester", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "v2\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add v2: %v", err)
	}
	if _, err := fx.wt.Commit("v2", "tester", 2000, 0); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	if err := fx.wt.Reset(first.ID, "tester", ResetMixed); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	head, err := fx.refsMgr.GetHeadCommit()
	if err != nil {
		t.Fatalf("GetHeadCommit: %v", err)
	}
	if head != first.ID {
		t.Fatalf("expected HEAD at %s after mixed reset, got %s", first.ID, head)
	}
	// working tree content must still read v2 since mixed never touches it
	data, err := os.ReadFile(filepath.Join(fx.workDir, ".bashrc"))
	if err != nil {
		t.Fatalf("read .bashrc: %v", err)
	}
	if string(data) != "v2\n" {
		t.Fatalf("expected working tree untouched by mixed reset, got %q", data)
	}
}

func TestResetHardOverwritesWorkingTree(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "v1\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	first, err := fx.wt.Commit("v1", "tester", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "v2\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add v2: %v", err)
	}
	if _, err := fx.wt.Commit("v2", "tester", 2000, 0); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	if err := fx.wt.Reset(first.ID, "tester", ResetHard); err != nil {
		t.Fatalf("Reset hard: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(fx.workDir, ".bashrc"))
	if err != nil {
		t.Fatalf("read .bashrc: %v", err)
	}
	if string(data) != "v1\n" {
		t.Fatalf("expected hard reset to restore v1, got %q", data)
	}
}

func TestRmNeverDeletesWorkingTreeFile(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".vimrc", "set nocompatible\n")
	if err := fx.wt.Add([]string{".vimrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("add vimrc", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := fx.wt.Rm([]string{".vimrc"}); err != nil {
		t.Fatalf("Rm: %v", err)
	}
	if !fx.wt.Index().IsDeleted(".vimrc") {
		t.Fatalf("expected .vimrc marked deleted in index")
	}
	if _, err := os.Stat(filepath.Join(fx.workDir, ".vimrc")); err != nil {
		t.Fatalf("expected working-tree file to survive Rm, got %v", err)
	}
}

func TestCleanRemovesUntrackedDryRunDoesNot(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "tracked\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("init", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	writeFile(t, fx.workDir, "scratch.tmp", "junk\n")

	reported, err := fx.wt.Clean(true)
	if err != nil {
		t.Fatalf("Clean dry-run: %v", err)
	}
	if len(reported) != 1 || reported[0] != "scratch.tmp" {
		t.Fatalf("unexpected dry-run report: %v", reported)
	}
	if _, err := os.Stat(filepath.Join(fx.workDir, "scratch.tmp")); err != nil {
		t.Fatalf("expected dry-run to leave file in place, got %v", err)
	}

	if _, err := fx.wt.Clean(false); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.workDir, "scratch.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected scratch.tmp removed, stat err = %v", err)
	}
}

func TestCheckoutBranchRestoresTargetTree(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "main content\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mainCommit, err := fx.wt.Commit("on main", "tester", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := fx.refsMgr.CreateBranch("feature", mainCommit.ID, "tester"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := fx.wt.CheckoutBranch("feature", "tester", false); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "feature content\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add feature: %v", err)
	}
	if _, err := fx.wt.Commit("on feature", "tester", 2000, 0); err != nil {
		t.Fatalf("Commit feature: %v", err)
	}

	if err := fx.wt.CheckoutBranch("main", "tester", false); err != nil {
		t.Fatalf("CheckoutBranch back to main: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(fx.workDir, ".bashrc"))
	if err != nil {
		t.Fatalf("read .bashrc: %v", err)
	}
	if string(data) != "main content\n" {
		t.Fatalf("expected checkout to restore main's content, got %q", data)
	}

	branch, err := fx.refsMgr.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Fatalf("expected HEAD on main, got %s", branch)
	}
}

func TestCheckoutEmptyBranchLeavesWorkingTreeUntouched(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "main content\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("on main", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := fx.refsMgr.CreateBranch("empty", refs.ZeroID, "tester"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := fx.wt.CheckoutBranch("empty", "tester", false); err != nil {
		t.Fatalf("CheckoutBranch empty: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(fx.workDir, ".bashrc"))
	if err != nil {
		t.Fatalf("expected .bashrc to remain on disk after checking out an empty branch: %v", err)
	}
	if string(data) != "main content\n" {
		t.Fatalf("expected working tree untouched, got %q", data)
	}
	if _, ok := fx.wt.Index().GetCommitted(".bashrc"); !ok {
		t.Fatalf("expected index's committed view to remain untouched")
	}

	branch, err := fx.refsMgr.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "empty" {
		t.Fatalf("expected HEAD to move to the empty branch, got %s", branch)
	}
}

func TestCheckoutRefusesWhenDirtyUnlessForced(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "v1\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mainCommit, err := fx.wt.Commit("v1", "tester", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := fx.refsMgr.CreateBranch("feature", mainCommit.ID, "tester"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "dirty\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add dirty: %v", err)
	}

	if err := fx.wt.CheckoutBranch("feature", "tester", false); err == nil {
		t.Fatalf("expected checkout to refuse with staged uncommitted changes")
	}
	if err := fx.wt.CheckoutBranch("feature", "tester", true); err != nil {
		t.Fatalf("expected forced checkout to succeed: %v", err)
	}
}

func TestStashPushPopRoundTrip(t *testing.T) {
	fx := newFixture(t)
	metaRoot := t.TempDir()
	writeFile(t, fx.workDir, ".bashrc", "base\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("base", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "in progress\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add wip: %v", err)
	}

	if _, err := fx.wt.StashPush(metaRoot, "wip", "tester", 2000, 0); err != nil {
		t.Fatalf("StashPush: %v", err)
	}
	if fx.wt.Index().HasStagedChanges() {
		t.Fatalf("expected staging area cleared after stash push")
	}

	list, err := fx.wt.StashList(metaRoot)
	if err != nil {
		t.Fatalf("StashList: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one stash entry, got %v", list)
	}

	if err := fx.wt.StashPop(metaRoot, 0); err != nil {
		t.Fatalf("StashPop: %v", err)
	}
	if !fx.wt.Index().HasStagedChanges() {
		t.Fatalf("expected staged changes restored after stash pop")
	}
	list, err = fx.wt.StashList(metaRoot)
	if err != nil {
		t.Fatalf("StashList after pop: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected stash stack empty after pop, got %v", list)
	}
}

func TestRevertUndoesCommit(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, fx.workDir, ".bashrc", "v1\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := fx.wt.Commit("v1", "tester", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, fx.workDir, ".bashrc", "v2\n")
	if err := fx.wt.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add v2: %v", err)
	}
	second, err := fx.wt.Commit("v2", "tester", 2000, 0)
	if err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	if _, err := fx.wt.Revert(second.ID, "tester", 3000, 0); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(fx.workDir, ".bashrc"))
	if err != nil {
		t.Fatalf("read .bashrc: %v", err)
	}
	if string(data) != "v1\n" {
		t.Fatalf("expected revert to restore v1 content, got %q", data)
	}
}
