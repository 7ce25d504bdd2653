package repo

import (
	"context"
	"testing"

	"github.com/rybkr/dotman/internal/remoteadapter"
)

type stubAdapter struct {
	pushOK       bool
	pushReason   string
	verifyOK     bool
	nextExternal string

	initCalls   int
	fetchCalls  int
	pullCalls   int
	pushedIDs   []string
}

func (s *stubAdapter) InitMirror(ctx context.Context, remote string) error {
	s.initCalls++
	return nil
}

func (s *stubAdapter) ExportCommit(ctx context.Context, commitID, workdir string) error {
	return nil
}

func (s *stubAdapter) CommitInMirror(ctx context.Context, message, author string, timestamp int64) (string, error) {
	return s.nextExternal, nil
}

func (s *stubAdapter) Push(ctx context.Context, remote, branch, externalCommitID string, mode remoteadapter.ForceMode) (remoteadapter.PushResult, error) {
	s.pushedIDs = append(s.pushedIDs, externalCommitID)
	return remoteadapter.PushResult{OK: s.pushOK, RejectedReason: s.pushReason, ExternalCommitID: externalCommitID}, nil
}

func (s *stubAdapter) VerifyRemoteHas(ctx context.Context, remote, branch, externalCommitID string) (bool, error) {
	return s.verifyOK, nil
}

func (s *stubAdapter) Fetch(ctx context.Context, remote, branch string) error {
	s.fetchCalls++
	return nil
}

func (s *stubAdapter) Pull(ctx context.Context, remote, branch string) error {
	s.pullCalls++
	return nil
}

func TestRemoteAddShowListRemove(t *testing.T) {
	r, _ := initRepo(t)

	if err := r.AddRemote("origin", "https://example.test/dotfiles"); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}
	if err := r.AddRemote("origin", "https://example.test/dotfiles"); err == nil {
		t.Fatal("AddRemote should fail for a duplicate name")
	}

	rc, err := r.ShowRemote("origin")
	if err != nil {
		t.Fatalf("ShowRemote: %v", err)
	}
	if rc.URL != "https://example.test/dotfiles" {
		t.Fatalf("ShowRemote URL = %q", rc.URL)
	}

	if err := r.SetRemoteURL("origin", "https://example.test/dotfiles2"); err != nil {
		t.Fatalf("SetRemoteURL: %v", err)
	}
	rc, _ = r.ShowRemote("origin")
	if rc.URL != "https://example.test/dotfiles2" {
		t.Fatalf("SetRemoteURL did not take effect: %q", rc.URL)
	}

	if err := r.RenameRemoteEntry("origin", "upstream"); err != nil {
		t.Fatalf("RenameRemoteEntry: %v", err)
	}
	names := r.ListRemotes()
	if len(names) != 1 || names[0] != "upstream" {
		t.Fatalf("ListRemotes = %v, want [upstream]", names)
	}

	if err := r.RemoveRemote("upstream"); err != nil {
		t.Fatalf("RemoveRemote: %v", err)
	}
	if err := r.RemoveRemote("upstream"); err == nil {
		t.Fatal("RemoveRemote should fail once already removed")
	}

	reopened, err := Open(r.Root())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(reopened.ListRemotes()) != 0 {
		t.Fatalf("remote removal did not persist: %v", reopened.ListRemotes())
	}
}

func TestPushUnknownRemoteFails(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, ".bashrc", "one\n")
	if err := r.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("first", "", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	adapter := &stubAdapter{pushOK: true, verifyOK: true, nextExternal: "ext-1"}
	if _, err := r.Push(context.Background(), adapter, "origin", "main", remoteadapter.ForceNormal, "tester", 1001); err == nil {
		t.Fatal("Push to an unconfigured remote should fail")
	}
}

func TestPushSuccessUpdatesRemoteRef(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, ".bashrc", "one\n")
	if err := r.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	commit, err := r.Commit("first", "", 1000, 0)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.AddRemote("origin", "https://example.test/dotfiles"); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}

	adapter := &stubAdapter{pushOK: true, verifyOK: true, nextExternal: "ext-1"}
	result, err := r.Push(context.Background(), adapter, "origin", "main", remoteadapter.ForceNormal, "tester", 1001)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected push result OK, got %+v", result)
	}
	if adapter.initCalls != 1 {
		t.Fatalf("expected InitMirror called once, got %d", adapter.initCalls)
	}

	remoteTip, err := r.Refs().GetRemoteRef("origin", "main")
	if err != nil {
		t.Fatalf("GetRemoteRef: %v", err)
	}
	if remoteTip != commit.ID {
		t.Fatalf("remote ref = %s, want %s", remoteTip, commit.ID)
	}
}

func TestPushRejectionLeavesRemoteRefUntouched(t *testing.T) {
	r, dir := initRepo(t)
	writeFile(t, dir, ".bashrc", "one\n")
	if err := r.Add([]string{".bashrc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit("first", "", 1000, 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.AddRemote("origin", "https://example.test/dotfiles"); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}

	adapter := &stubAdapter{pushOK: false, pushReason: "stale", nextExternal: "ext-1"}
	if _, err := r.Push(context.Background(), adapter, "origin", "main", remoteadapter.ForceNormal, "tester", 1001); err == nil {
		t.Fatal("Push should fail when the adapter rejects it")
	}
	if r.Refs().RemoteRefExists("origin", "main") {
		t.Fatal("remote ref should not exist after a rejected push")
	}
}

func TestFetchAndPullDelegateToAdapter(t *testing.T) {
	r, _ := initRepo(t)
	if err := r.AddRemote("origin", "https://example.test/dotfiles"); err != nil {
		t.Fatalf("AddRemote: %v", err)
	}

	adapter := &stubAdapter{}
	if err := r.Fetch(context.Background(), adapter, "origin", "main"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if adapter.fetchCalls != 1 {
		t.Fatalf("expected one Fetch call, got %d", adapter.fetchCalls)
	}

	if err := r.Pull(context.Background(), adapter, "origin", "main"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if adapter.pullCalls != 1 {
		t.Fatalf("expected one Pull call, got %d", adapter.pullCalls)
	}
}
