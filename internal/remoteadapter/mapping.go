package remoteadapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// mappingDocument is the on-disk shape of mapping.toml: one table per
// remote, each mapping a local dotman commit id to the external
// transport's commit id for that same content.
type mappingDocument struct {
	Remotes map[string]map[string]string `toml:"remotes"`
}

// MappingTable is the persisted, remote-scoped bidirectional
// dotman-id <-> external-id table. Writes are staged in memory and
// only committed to disk after a caller confirms a push succeeded,
// with a ".bak" snapshot restorable on failure.
type MappingTable struct {
	path string

	mu      sync.Mutex
	remotes map[string]map[string]string
	pending map[string]map[string]string
}

// LoadMappingTable reads path (creating an empty table if it does not
// yet exist) and captures a ".bak" snapshot of whatever was on disk
// at load time, so a failed push later in this process's lifetime can
// always restore to the state this table started from.
func LoadMappingTable(path string) (*MappingTable, error) {
	var doc mappingDocument
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("remoteadapter: decode %s: %w: %w", path, err, dotmanerr.ErrCorrupt)
		}
		doc.Remotes = make(map[string]map[string]string)
	}
	if doc.Remotes == nil {
		doc.Remotes = make(map[string]map[string]string)
	}
	m := &MappingTable{path: path, remotes: doc.Remotes, pending: make(map[string]map[string]string)}
	if err := m.backup(); err != nil {
		return nil, err
	}
	return m, nil
}

// LocalToExternal resolves localCommitID's external id for remote, if
// it has been mapped (pending writes from an in-flight transaction
// take priority over what is already persisted).
func (m *MappingTable) LocalToExternal(remote, localCommitID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[remote]; ok {
		if ext, ok := p[localCommitID]; ok {
			return ext, true
		}
	}
	if r, ok := m.remotes[remote]; ok {
		ext, ok := r[localCommitID]
		return ext, ok
	}
	return "", false
}

// ExternalToLocal is the reverse lookup, used to recognize an
// incoming commit that was already imported.
func (m *MappingTable) ExternalToLocal(remote, externalCommitID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, table := range []map[string]map[string]string{m.pending, m.remotes} {
		if r, ok := table[remote]; ok {
			for local, ext := range r {
				if ext == externalCommitID {
					return local, true
				}
			}
		}
	}
	return "", false
}

// StagePending records a local-to-external pair in memory only. It is
// not visible on disk until Commit is called.
func (m *MappingTable) StagePending(remote, localCommitID, externalCommitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[remote] == nil {
		m.pending[remote] = make(map[string]string)
	}
	m.pending[remote][localCommitID] = externalCommitID
}

// Commit folds every staged pending pair into the persisted table and
// writes it to disk. The ".bak" sidecar is not refreshed here: it
// still holds the file as LoadMappingTable found it. Call this only
// after the caller has confirmed (via
// Adapter.VerifyRemoteHas) that the push it staged these pairs for
// actually succeeded.
func (m *MappingTable) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for remote, pairs := range m.pending {
		if m.remotes[remote] == nil {
			m.remotes[remote] = make(map[string]string)
		}
		for local, ext := range pairs {
			m.remotes[remote][local] = ext
		}
	}
	m.pending = make(map[string]map[string]string)

	return m.save()
}

// Rollback discards every staged pending pair without writing
// anything, and restores the on-disk file from its ".bak" backup if
// one was captured this session. This is the failure path: the push
// was rejected or verification failed, so the in-memory writes must
// never reach disk.
func (m *MappingTable) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]map[string]string)
	return m.restoreBackup()
}

func (m *MappingTable) backupPath() string { return m.path + ".bak" }

func (m *MappingTable) backup() error {
	data, err := os.ReadFile(m.path) //nolint:gosec // G304: repo-internal path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remoteadapter: backup read %s: %w", m.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("remoteadapter: backup mkdir: %w", err)
	}
	return os.WriteFile(m.backupPath(), data, 0o644)
}

func (m *MappingTable) restoreBackup() error {
	data, err := os.ReadFile(m.backupPath()) //nolint:gosec // G304: repo-internal path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remoteadapter: restore read %s: %w", m.backupPath(), err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

func (m *MappingTable) save() error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("remoteadapter: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-mapping-*")
	if err != nil {
		return fmt.Errorf("remoteadapter: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(mappingDocument{Remotes: m.remotes}); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("remoteadapter: encode mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("remoteadapter: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("remoteadapter: rename into place: %w", err)
	}
	return nil
}
