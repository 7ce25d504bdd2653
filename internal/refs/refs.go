// Package refs implements dotman's reference graph: HEAD, branches,
// tags, remote-tracking refs, and their reflogs, each written under a
// per-file advisory lock. Branch and HEAD moves append a reflog entry;
// tag and remote-tracking ref writes do not.
package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// ZeroID is the all-zeros sentinel recorded for a branch with no
// commits yet.
const ZeroID = "00000000000000000000000000000000"

const headRefPrefix = "ref: refs/heads/"

// Manager owns one repository's ref graph rooted at gitDir
// (conventionally "<repo-root>/.dotman" or similar — callers pass the
// metadata root, not the working tree).
type Manager struct {
	root string
}

// New returns a Manager rooted at root.
func New(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) headPath() string           { return filepath.Join(m.root, "HEAD") }
func (m *Manager) branchPath(name string) string {
	return filepath.Join(m.root, "refs", "heads", name)
}
func (m *Manager) tagPath(name string) string {
	return filepath.Join(m.root, "refs", "tags", name)
}
func (m *Manager) remotePath(remote, branch string) string {
	return filepath.Join(m.root, "refs", "remotes", remote, branch)
}
func (m *Manager) headLogPath() string { return filepath.Join(m.root, "logs", "HEAD") }
func (m *Manager) branchLogPath(name string) string {
	return filepath.Join(m.root, "logs", "refs", "heads", name)
}

// Init creates a fresh ref graph: HEAD pointing at refs/heads/main, an
// empty refs/heads/main (an empty branch file means "no commits yet"
// and resolves to ZeroID), and the logs/ directory.
func (m *Manager) Init() error {
	if err := os.MkdirAll(filepath.Join(m.root, "refs", "heads"), 0o755); err != nil {
		return fmt.Errorf("refs: init: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(m.root, "refs", "tags"), 0o755); err != nil {
		return fmt.Errorf("refs: init: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(m.root, "logs", "refs", "heads"), 0o755); err != nil {
		return fmt.Errorf("refs: init: %w", err)
	}
	if err := writeAtomic(m.branchPath("main"), nil); err != nil {
		return fmt.Errorf("refs: init: %w", err)
	}
	return writeAtomic(m.headPath(), []byte(headRefPrefix+"main\n"))
}

// writeAtomic writes data to path under an exclusive advisory lock,
// via a temp-file-then-rename within the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("refs: mkdir %s: %w", dir, err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("refs: lock %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(dir, ".tmp-ref-*")
	if err != nil {
		return fmt.Errorf("refs: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("refs: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("refs: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("refs: rename into place: %w", err)
	}
	return nil
}

func readRef(path string) (string, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("refs: rlock %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is repo-internal
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func appendReflog(path string, oldID, newID, who, operation, message string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("refs: mkdir %s: %w", dir, err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("refs: lock %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	line := fmt.Sprintf("%s %s %s %d %s\t%s\n", oldID, newID, who, time.Now().Unix(), operation, message)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("refs: open reflog %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("refs: append reflog %s: %w", path, err)
	}
	return nil
}

// CurrentBranch returns the branch HEAD points at, or "" when HEAD is
// detached.
func (m *Manager) CurrentBranch() (string, error) {
	content, err := readRef(m.headPath())
	if err != nil {
		return "", fmt.Errorf("refs: read HEAD: %w", err)
	}
	if strings.HasPrefix(content, headRefPrefix) {
		return strings.TrimPrefix(strings.TrimPrefix(content, headRefPrefix), "refs/heads/"), nil
	}
	return "", nil
}

// GetHeadCommit resolves HEAD down to a commit id, returning ZeroID
// when the current branch has no commits yet.
func (m *Manager) GetHeadCommit() (string, error) {
	content, err := readRef(m.headPath())
	if err != nil {
		return "", fmt.Errorf("refs: read HEAD: %w", err)
	}
	if strings.HasPrefix(content, headRefPrefix) {
		branch := strings.TrimPrefix(content, headRefPrefix)
		return m.resolveBranchFile(branch)
	}
	if content == "" {
		return ZeroID, nil
	}
	return content, nil
}

func (m *Manager) resolveBranchFile(refPath string) (string, error) {
	name := strings.TrimPrefix(refPath, "refs/heads/")
	content, err := readRef(m.branchPath(name))
	if os.IsNotExist(err) {
		return ZeroID, nil
	}
	if err != nil {
		return "", fmt.Errorf("refs: read branch %s: %w", name, err)
	}
	if content == "" {
		return ZeroID, nil
	}
	return content, nil
}

// CurrentBranchAndHead atomically returns both the current branch
// name (empty if detached) and the resolved head commit id.
func (m *Manager) CurrentBranchAndHead() (branch, headID string, err error) {
	branch, err = m.CurrentBranch()
	if err != nil {
		return "", "", err
	}
	headID, err = m.GetHeadCommit()
	if err != nil {
		return "", "", err
	}
	return branch, headID, nil
}

// BranchExists reports whether name has a ref file.
func (m *Manager) BranchExists(name string) bool {
	_, err := os.Stat(m.branchPath(name))
	return err == nil
}

// TagExists reports whether name has a tag ref file.
func (m *Manager) TagExists(name string) bool {
	_, err := os.Stat(m.tagPath(name))
	return err == nil
}

// CreateBranch creates refs/heads/<name> pointing at startPointID (or
// ZeroID if empty), appending a reflog entry.
func (m *Manager) CreateBranch(name, startPointID, who string) error {
	if m.BranchExists(name) {
		return fmt.Errorf("refs: branch %s: %w", name, dotmanerr.ErrPrecondition)
	}
	if startPointID == "" {
		startPointID = ZeroID
	}
	if err := writeAtomic(m.branchPath(name), []byte(startPointID+"\n")); err != nil {
		return fmt.Errorf("refs: create branch %s: %w", name, err)
	}
	return appendReflog(m.branchLogPath(name), ZeroID, startPointID, who, "branch", "created from "+startPointID)
}

// UpdateBranch moves refs/heads/<name> to newID, appending a reflog
// entry under the given operation label.
func (m *Manager) UpdateBranch(name, newID, who, operation, message string) error {
	oldID, err := m.resolveBranchFile("refs/heads/" + name)
	if err != nil {
		return err
	}
	if err := writeAtomic(m.branchPath(name), []byte(newID+"\n")); err != nil {
		return fmt.Errorf("refs: update branch %s: %w", name, err)
	}
	return appendReflog(m.branchLogPath(name), oldID, newID, who, operation, message)
}

// DeleteBranch removes refs/heads/<name>. The currently checked-out
// branch is always refused, even with force. Unless force is true, a
// branch with commits must be "fully merged" per isAncestor into the
// current branch (else main, else master, whichever exists first), and
// main and master themselves are refused.
func (m *Manager) DeleteBranch(name string, force bool, current string, isAncestor func(tip, target string) (bool, error)) error {
	if name == current {
		return fmt.Errorf("refs: delete current branch %s: %w", name, dotmanerr.ErrPrecondition)
	}
	if !m.BranchExists(name) {
		return fmt.Errorf("refs: branch %s: %w", name, dotmanerr.ErrNotFound)
	}

	if !force {
		tip, err := m.resolveBranchFile("refs/heads/" + name)
		if err != nil {
			return err
		}
		if tip != ZeroID {
			target := current
			if target == "" || !m.BranchExists(target) {
				target = "main"
			}
			if !m.BranchExists(target) {
				target = "master"
			}
			if m.BranchExists(target) {
				targetTip, err := m.resolveBranchFile("refs/heads/" + target)
				if err != nil {
					return err
				}
				merged, err := isAncestor(tip, targetTip)
				if err != nil {
					return err
				}
				if !merged {
					return fmt.Errorf("refs: branch %s not fully merged into %s: %w", name, target, dotmanerr.ErrPrecondition)
				}
			}
		}
	}

	if (name == "main" || name == "master") && !force {
		return fmt.Errorf("refs: delete protected branch %s requires force: %w", name, dotmanerr.ErrPrecondition)
	}

	return os.Remove(m.branchPath(name))
}

// RenameBranch renames a branch's ref file and reflog.
func (m *Manager) RenameBranch(oldName, newName string) error {
	if !m.BranchExists(oldName) {
		return fmt.Errorf("refs: branch %s: %w", oldName, dotmanerr.ErrNotFound)
	}
	if m.BranchExists(newName) {
		return fmt.Errorf("refs: branch %s already exists: %w", newName, dotmanerr.ErrPrecondition)
	}
	if err := os.Rename(m.branchPath(oldName), m.branchPath(newName)); err != nil {
		return fmt.Errorf("refs: rename branch: %w", err)
	}
	if _, err := os.Stat(m.branchLogPath(oldName)); err == nil {
		os.Rename(m.branchLogPath(oldName), m.branchLogPath(newName)) //nolint:errcheck
	}
	return nil
}

// ListBranches returns all branch names in sorted order.
func (m *Manager) ListBranches() ([]string, error) {
	return listRefNames(filepath.Join(m.root, "refs", "heads"))
}

// ListTags returns all tag names in sorted order.
func (m *Manager) ListTags() ([]string, error) {
	return listRefNames(filepath.Join(m.root, "refs", "tags"))
}

func listRefNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refs: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateTag creates refs/tags/<name> pointing at commitID.
func (m *Manager) CreateTag(name, commitID string) error {
	if m.TagExists(name) {
		return fmt.Errorf("refs: tag %s: %w", name, dotmanerr.ErrPrecondition)
	}
	return writeAtomic(m.tagPath(name), []byte(commitID+"\n"))
}

// DeleteTag removes refs/tags/<name>.
func (m *Manager) DeleteTag(name string) error {
	if !m.TagExists(name) {
		return fmt.Errorf("refs: tag %s: %w", name, dotmanerr.ErrNotFound)
	}
	return os.Remove(m.tagPath(name))
}

// GetTagCommit resolves a tag to its commit id.
func (m *Manager) GetTagCommit(name string) (string, error) {
	content, err := readRef(m.tagPath(name))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("refs: tag %s: %w", name, dotmanerr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("refs: read tag %s: %w", name, err)
	}
	return content, nil
}

// SetHeadToBranch points HEAD at refs/heads/<name>, appending a HEAD
// reflog entry.
func (m *Manager) SetHeadToBranch(name, who, operation, message string) error {
	oldID, err := m.GetHeadCommit()
	if err != nil {
		return err
	}
	if err := writeAtomic(m.headPath(), []byte(headRefPrefix+name+"\n")); err != nil {
		return fmt.Errorf("refs: set HEAD to branch %s: %w", name, err)
	}
	newID, err := m.resolveBranchFile("refs/heads/" + name)
	if err != nil {
		return err
	}
	return appendReflog(m.headLogPath(), oldID, newID, who, operation, message)
}

// SetHeadToCommit detaches HEAD at commitID, appending a HEAD reflog
// entry.
func (m *Manager) SetHeadToCommit(commitID, who, operation, message string) error {
	oldID, err := m.GetHeadCommit()
	if err != nil {
		return err
	}
	if err := writeAtomic(m.headPath(), []byte(commitID+"\n")); err != nil {
		return fmt.Errorf("refs: detach HEAD: %w", err)
	}
	return appendReflog(m.headLogPath(), oldID, commitID, who, operation, message)
}

// UpdateRemoteRef sets refs/remotes/<remote>/<branch> to id.
func (m *Manager) UpdateRemoteRef(remote, branch, id string) error {
	return writeAtomic(m.remotePath(remote, branch), []byte(id+"\n"))
}

// RemoteRefExists reports whether a remote-tracking ref exists.
func (m *Manager) RemoteRefExists(remote, branch string) bool {
	_, err := os.Stat(m.remotePath(remote, branch))
	return err == nil
}

// GetRemoteRef reads a remote-tracking ref's commit id.
func (m *Manager) GetRemoteRef(remote, branch string) (string, error) {
	content, err := readRef(m.remotePath(remote, branch))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("refs: remote ref %s/%s: %w", remote, branch, dotmanerr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("refs: read remote ref %s/%s: %w", remote, branch, err)
	}
	return content, nil
}

// GetBranchCommit resolves a branch name to its commit id (ZeroID if
// the branch exists but has no commits).
func (m *Manager) GetBranchCommit(name string) (string, error) {
	if !m.BranchExists(name) {
		return "", fmt.Errorf("refs: branch %s: %w", name, dotmanerr.ErrNotFound)
	}
	return m.resolveBranchFile("refs/heads/" + name)
}

// HeadIsDetached reports whether HEAD currently holds a direct object
// id rather than a symbolic ref.
func (m *Manager) HeadIsDetached() (bool, error) {
	branch, err := m.CurrentBranch()
	if err != nil {
		return false, err
	}
	return branch == "", nil
}
