// Package config loads and saves dotman's repo-level settings file,
// config.toml, at the root of a managed repository. It never reads
// from a global location — every component that needs settings gets
// them passed down from a single load at Repository construction.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// RemoteConfig is one [remotes.<name>] table in config.toml.
type RemoteConfig struct {
	URL string `toml:"url"`
}

// Config is the full contents of config.toml.
type Config struct {
	// Author identifies commits this repo creates when no per-call
	// override is given.
	Author struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"author"`

	// Core holds storage/hashing knobs.
	Core struct {
		// CompressionLevel is the zstd encoder level objstore uses,
		// 1-22, mapped onto zstd's encoder speeds. Zero, like 1,
		// selects the fastest speed.
		CompressionLevel int `toml:"compression_level"`
		// FollowSymlinks, when true, makes worktree hash/store a
		// symlink's target file content instead of the link itself.
		FollowSymlinks bool `toml:"follow_symlinks"`
	} `toml:"core"`

	// Ignore lists gitignore-style glob patterns applied repo-wide.
	// These are the only ignore rules; no ignore file in the working
	// tree is read.
	Ignore []string `toml:"ignore"`

	// Remotes maps a remote name to its configuration.
	Remotes map[string]RemoteConfig `toml:"remotes"`
}

// Default returns the settings a freshly initialized repo starts
// with: no remotes, no extra ignore globs, symlinks followed.
func Default() *Config {
	cfg := &Config{Remotes: make(map[string]RemoteConfig)}
	cfg.Core.FollowSymlinks = true
	return cfg
}

// Load reads config.toml from path. A missing file is not an error:
// it returns Default() so a freshly initialized repo has no config.toml
// until the first Save.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: decode %s: %w: %w", path, err, dotmanerr.ErrCorrupt)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed and
// replacing any existing file atomically via write-temp-then-rename.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-config-*")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// SetRemote adds or replaces a remote entry.
func (c *Config) SetRemote(name, url string) {
	if c.Remotes == nil {
		c.Remotes = make(map[string]RemoteConfig)
	}
	c.Remotes[name] = RemoteConfig{URL: url}
}

// RemoveRemote deletes a remote entry. It reports whether the remote
// existed.
func (c *Config) RemoveRemote(name string) bool {
	if _, ok := c.Remotes[name]; !ok {
		return false
	}
	delete(c.Remotes, name)
	return true
}

// RenameRemote moves an existing remote entry to a new name. It
// returns dotmanerr.ErrNotFound if oldName does not exist.
func (c *Config) RenameRemote(oldName, newName string) error {
	r, ok := c.Remotes[oldName]
	if !ok {
		return fmt.Errorf("config: remote %q: %w", oldName, dotmanerr.ErrNotFound)
	}
	delete(c.Remotes, oldName)
	c.Remotes[newName] = r
	return nil
}
