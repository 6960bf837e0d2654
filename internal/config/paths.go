// Package config provides configuration management for glint.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the filesystem locations glint reads and writes.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/glint)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/glint)
	DataDir string

	// CacheDir is the directory for cache files (~/.cache/glint)
	CacheDir string

	// StateDir is the directory for logs and other mutable state (~/.local/state/glint)
	StateDir string

	// RuntimeDir is the directory for runtime files like sockets and locks
	RuntimeDir string
}

// DefaultPaths returns the default paths following the XDG Base Directory spec.
func DefaultPaths() *Paths {
	home := homeDir()

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		cacheHome = filepath.Join(home, ".cache")
	}

	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		tmp := os.Getenv("TMPDIR")
		if tmp == "" {
			tmp = "/tmp"
		}
		// Per-user fallback when no session runtime dir exists.
		runtimeDir = filepath.Join(tmp, fmt.Sprintf("glint-%d", os.Getuid()))
	} else {
		runtimeDir = filepath.Join(runtimeDir, "glint")
	}

	return &Paths{
		ConfigDir:  filepath.Join(configHome, "glint"),
		DataDir:    filepath.Join(dataHome, "glint"),
		CacheDir:   filepath.Join(cacheHome, "glint"),
		StateDir:   filepath.Join(stateHome, "glint"),
		RuntimeDir: runtimeDir,
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// HistoryFile returns the path to the launch-history database.
func (p *Paths) HistoryFile() string {
	return filepath.Join(p.DataDir, "history.db")
}

// AppCacheFile returns the path to the application-index cache.
func (p *Paths) AppCacheFile() string {
	return filepath.Join(p.CacheDir, "apps.json")
}

// LogFile returns the path to the launcher log file.
func (p *Paths) LogFile() string {
	return filepath.Join(p.StateDir, "glint.log")
}

// LockFile returns the path to the single-instance lock file.
func (p *Paths) LockFile() string {
	return filepath.Join(p.RuntimeDir, "glint.lock")
}

// BackendDirs returns the directories scanned for backend descriptor files,
// system locations first so user descriptors shadow them.
func (p *Paths) BackendDirs() []string {
	return []string{
		"/usr/share/glint/backends",
		filepath.Join(p.DataDir, "backends"),
	}
}

// AppDirs returns the directories scanned for .desktop application entries.
func (p *Paths) AppDirs() []string {
	home := homeDir()
	return []string{
		"/usr/share/applications",
		"/var/lib/flatpak/exports/share/applications",
		filepath.Join(home, ".local", "share", "flatpak", "exports", "share", "applications"),
		filepath.Join(home, ".local", "share", "applications"),
	}
}

// EnsureDirectories creates all directories glint writes to.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.ConfigDir,
		p.DataDir,
		p.CacheDir,
		p.StateDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// Sockets and locks live here; keep it private.
	return os.MkdirAll(p.RuntimeDir, 0o700)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}
