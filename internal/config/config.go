package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the glint configuration.
type Config struct {
	Search   SearchConfig      `yaml:"search"`
	Backends BackendsConfig    `yaml:"backends"`
	Apps     AppsConfig        `yaml:"apps"`
	Commands map[string]string `yaml:"commands"`
	History  HistoryConfig     `yaml:"history"`
	Log      LogConfig         `yaml:"log"`
}

// SearchConfig holds the timing and sizing knobs of the search engine.
type SearchConfig struct {
	MaxResults        int `yaml:"max_results"`         // Cap per result source
	QueryDebounceMs   int `yaml:"query_debounce_ms"`   // Debounce for backend fan-out queries
	CommandDebounceMs int `yaml:"command_debounce_ms"` // Debounce for subprocess command queries
	ClearDelayMs      int `yaml:"clear_delay_ms"`      // Grace before stale results are cleared
	CallTimeoutMs     int `yaml:"call_timeout_ms"`     // Per-call backend timeout
}

// BackendsConfig holds search-backend discovery settings.
type BackendsConfig struct {
	Dirs    []string `yaml:"dirs"`    // Descriptor directories (empty = defaults)
	Exclude []string `yaml:"exclude"` // AppIds never queried
}

// AppsConfig holds application-index settings.
type AppsConfig struct {
	Dirs []string `yaml:"dirs"` // .desktop directories (empty = defaults)
}

// HistoryConfig holds launch-history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Database path (empty = default)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Log file path (empty = default)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			MaxResults:        64,
			QueryDebounceMs:   120,
			CommandDebounceMs: 300,
			ClearDelayMs:      25,
			CallTimeoutMs:     3000,
		},
		Backends: BackendsConfig{
			Dirs:    nil, // Paths.BackendDirs()
			Exclude: nil,
		},
		Apps: AppsConfig{
			Dirs: nil, // Paths.AppDirs()
		},
		Commands: map[string]string{
			"f":  `plocate -i -- "$1" 2>/dev/null | grep "^$HOME/" | head -20`,
			"fg": `rg --with-filename --line-number --no-heading -S "$1" ~ 2>/dev/null | head -20`,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "", // Paths.HistoryFile()
		},
		Log: LogConfig{
			Level: "info",
			File:  "", // Paths.LogFile()
		},
	}
}

// Load loads configuration from the default path, writing a commented
// default file first if none exists yet.
func Load() (*Config, error) {
	paths := DefaultPaths()
	path := paths.ConfigFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Best effort; a read-only config dir still gets defaults.
		_ = WriteDefault(path)
	}
	return LoadFromFile(path)
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns the default configuration.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.QueryDebounceMs < 0 {
		return fmt.Errorf("search.query_debounce_ms must not be negative, got %d", c.Search.QueryDebounceMs)
	}
	if c.Search.CommandDebounceMs < 0 {
		return fmt.Errorf("search.command_debounce_ms must not be negative, got %d", c.Search.CommandDebounceMs)
	}
	if c.Search.ClearDelayMs < 0 {
		return fmt.Errorf("search.clear_delay_ms must not be negative, got %d", c.Search.ClearDelayMs)
	}
	if c.Search.CallTimeoutMs <= 0 {
		return fmt.Errorf("search.call_timeout_ms must be positive, got %d", c.Search.CallTimeoutMs)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}

// defaultConfigYAML is the commented template written on first run. It must
// stay in sync with DefaultConfig; config_test.go enforces that.
const defaultConfigYAML = `# glint configuration

search:
  # Maximum results kept per source (apps, each backend, each command).
  max_results: 64
  # Delay before a backend fan-out query fires, in milliseconds.
  query_debounce_ms: 120
  # Delay before a colon command runs, in milliseconds.
  command_debounce_ms: 300
  # Grace period before stale results are cleared while a query is in
  # flight. Results arriving sooner replace the list without a flash.
  clear_delay_ms: 25
  # Per-call timeout for backend requests, in milliseconds.
  call_timeout_ms: 3000

backends:
  # Directories scanned for backend descriptor files. Empty uses
  # /usr/share/glint/backends and $XDG_DATA_HOME/glint/backends.
  dirs: []
  # Backends to exclude, by the AppId in their descriptor.
  # exclude:
  #   - org.gnome.Software
  exclude: []

apps:
  # Directories scanned for .desktop entries. Empty uses the standard
  # system, user and flatpak application directories.
  dirs: []

# Colon commands. Type ":<key> <text>" in the launcher to run one.
# The command runs under 'sh -c' with the typed text as "$1".
commands:
  f: 'plocate -i -- "$1" 2>/dev/null | grep "^$HOME/" | head -20'
  fg: 'rg --with-filename --line-number --no-heading -S "$1" ~ 2>/dev/null | head -20'

history:
  # Record launched items to rank frequently used apps first.
  enabled: true
  # Database path. Empty uses $XDG_DATA_HOME/glint/history.db.
  path: ""

log:
  # debug, info, warn or error.
  level: info
  # Log file path. Empty uses $XDG_STATE_HOME/glint/glint.log.
  file: ""
`

// WriteDefault writes the commented default configuration to path, creating
// parent directories. Existing files are left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
