package remoteadapter

import (
	"context"
	"path/filepath"
	"testing"
)

type fakeAdapter struct {
	pushOK        bool
	pushReason    string
	verifyOK      bool
	nextExternal  string
	pushCalls     int
	fetchCalls    int
	pullCalls     int
}

func (f *fakeAdapter) InitMirror(ctx context.Context, remote string) error { return nil }

func (f *fakeAdapter) ExportCommit(ctx context.Context, commitID, workdir string) error { return nil }

func (f *fakeAdapter) CommitInMirror(ctx context.Context, message, author string, timestamp int64) (string, error) {
	return f.nextExternal, nil
}

func (f *fakeAdapter) Push(ctx context.Context, remote, branch, externalCommitID string, mode ForceMode) (PushResult, error) {
	f.pushCalls++
	return PushResult{OK: f.pushOK, RejectedReason: f.pushReason, ExternalCommitID: externalCommitID}, nil
}

func (f *fakeAdapter) VerifyRemoteHas(ctx context.Context, remote, branch, externalCommitID string) (bool, error) {
	return f.verifyOK, nil
}

func (f *fakeAdapter) Fetch(ctx context.Context, remote, branch string) error {
	f.fetchCalls++
	return nil
}

func (f *fakeAdapter) Pull(ctx context.Context, remote, branch string) error {
	f.pullCalls++
	return nil
}

func TestPushSuccessCommitsMapping(t *testing.T) {
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mapping.toml")
	mapping, err := LoadMappingTable(mappingPath)
	if err != nil {
		t.Fatalf("LoadMappingTable: %v", err)
	}

	adapter := &fakeAdapter{pushOK: true, verifyOK: true, nextExternal: "ext-abc"}
	pusher := NewPusher(adapter, mapping, filepath.Join(dir, "mirrors"))

	result, err := pusher.Push(context.Background(), "origin", "main", "local-123", "tester", "msg", 1000, ForceNormal)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected OK push result")
	}

	ext, ok := mapping.LocalToExternal("origin", "local-123")
	if !ok || ext != "ext-abc" {
		t.Fatalf("expected mapping local-123 -> ext-abc, got %q ok=%v", ext, ok)
	}

	reloaded, err := LoadMappingTable(mappingPath)
	if err != nil {
		t.Fatalf("reload mapping: %v", err)
	}
	ext, ok = reloaded.LocalToExternal("origin", "local-123")
	if !ok || ext != "ext-abc" {
		t.Fatalf("expected persisted mapping to survive reload, got %q ok=%v", ext, ok)
	}
}

func TestPushRejectedLeavesMappingUntouched(t *testing.T) {
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mapping.toml")
	mapping, err := LoadMappingTable(mappingPath)
	if err != nil {
		t.Fatalf("LoadMappingTable: %v", err)
	}

	adapter := &fakeAdapter{pushOK: false, pushReason: "not a fast-forward", nextExternal: "ext-rejected"}
	pusher := NewPusher(adapter, mapping, filepath.Join(dir, "mirrors"))

	_, err = pusher.Push(context.Background(), "origin", "main", "local-123", "tester", "msg", 1000, ForceNormal)
	if err == nil {
		t.Fatalf("expected error on rejected push")
	}

	if _, ok := mapping.LocalToExternal("origin", "local-123"); ok {
		t.Fatalf("expected no mapping entry after a rejected push")
	}
}

func TestPushVerificationFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "mapping.toml")
	mapping, err := LoadMappingTable(mappingPath)
	if err != nil {
		t.Fatalf("LoadMappingTable: %v", err)
	}

	adapter := &fakeAdapter{pushOK: true, verifyOK: false, nextExternal: "ext-unverified"}
	pusher := NewPusher(adapter, mapping, filepath.Join(dir, "mirrors"))

	_, err = pusher.Push(context.Background(), "origin", "main", "local-123", "tester", "msg", 1000, ForceNormal)
	if err == nil {
		t.Fatalf("expected error when remote doesn't verify the push")
	}
	if _, ok := mapping.LocalToExternal("origin", "local-123"); ok {
		t.Fatalf("expected no mapping entry after failed verification")
	}
}

func TestExternalToLocalLookup(t *testing.T) {
	dir := t.TempDir()
	mapping, err := LoadMappingTable(filepath.Join(dir, "mapping.toml"))
	if err != nil {
		t.Fatalf("LoadMappingTable: %v", err)
	}
	mapping.StagePending("origin", "local-1", "ext-1")
	if err := mapping.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	local, ok := mapping.ExternalToLocal("origin", "ext-1")
	if !ok || local != "local-1" {
		t.Fatalf("expected ext-1 -> local-1, got %q ok=%v", local, ok)
	}
}

func TestFetchAndPullDelegateToAdapter(t *testing.T) {
	dir := t.TempDir()
	mapping, err := LoadMappingTable(filepath.Join(dir, "mapping.toml"))
	if err != nil {
		t.Fatalf("LoadMappingTable: %v", err)
	}
	adapter := &fakeAdapter{}
	pusher := NewPusher(adapter, mapping, filepath.Join(dir, "mirrors"))

	if err := pusher.Fetch(context.Background(), "origin", "main"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := pusher.Pull(context.Background(), "origin", "main"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if adapter.fetchCalls != 1 || adapter.pullCalls != 1 {
		t.Fatalf("expected one fetch and one pull call, got fetch=%d pull=%d", adapter.fetchCalls, adapter.pullCalls)
	}
}
