// Package config holds the threatscope YAML configuration.
//
// The config file lives at .threatscope/config.yaml in the workspace
// root (falling back to the user's home directory). Every setting has
// a default, so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// dotDir is the per-workspace directory holding config, cache,
// watchlist, and logs.
const dotDir = ".threatscope"

// Config holds all threatscope configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// ATT&CK feed configuration
	Feed FeedConfig `yaml:"feed"`

	// Snapshot cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Terminal display settings
	Display DisplayConfig `yaml:"display"`

	// Actor watchlist
	Watchlist WatchlistConfig `yaml:"watchlist"`

	// Knowledge base (overlap analysis)
	KB KBConfig `yaml:"kb"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// FeedConfig configures the MITRE ATT&CK content feed.
type FeedConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Domains   []string `yaml:"domains"` // enterprise-attack, mobile-attack, ics-attack
	Timeout   string   `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

// CacheConfig configures the local snapshot store.
type CacheConfig struct {
	Path          string `yaml:"path"`    // relative paths resolve against the workspace root
	MaxAge        string `yaml:"max_age"` // snapshots older than this trigger a refresh
	KeepSnapshots int    `yaml:"keep_snapshots"`
}

// DisplayConfig configures the explorer and listing commands.
type DisplayConfig struct {
	Theme      string `yaml:"theme"` // dark, light, auto
	PageSize   int    `yaml:"page_size"`
	MaxColumns int    `yaml:"max_columns"`
}

// WatchlistConfig configures the actor watchlist.
type WatchlistConfig struct {
	Path       string `yaml:"path"`
	LiveReload bool   `yaml:"live_reload"`
}

// KBConfig configures the Mangle knowledge base.
type KBConfig struct {
	FactLimit    int    `yaml:"fact_limit"`
	QueryTimeout string `yaml:"query_timeout"`
}

// LoggingConfig configures category file logging. A nil Categories map
// enables every category; listed categories toggle individually.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// ValidDomains lists the ATT&CK domains the feed understands.
var ValidDomains = []string{"enterprise-attack", "mobile-attack", "ics-attack"}

// ValidThemes lists the display themes.
var ValidThemes = []string{"auto", "dark", "light"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "threatscope",
		Version: "0.4.0",

		Feed: FeedConfig{
			BaseURL:   "https://raw.githubusercontent.com/mitre/cti/master",
			Domains:   []string{"enterprise-attack"},
			Timeout:   "60s",
			UserAgent: "threatscope/0.4.0",
		},

		Cache: CacheConfig{
			Path:          filepath.Join(dotDir, "cache.db"),
			MaxAge:        "168h",
			KeepSnapshots: 3,
		},

		Display: DisplayConfig{
			Theme:      "auto",
			PageSize:   5,
			MaxColumns: 6,
		},

		Watchlist: WatchlistConfig{
			Path:       filepath.Join(dotDir, "watchlist.yaml"),
			LiveReload: true,
		},

		KB: KBConfig{
			FactLimit:    250000,
			QueryTimeout: "10s",
		},

		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("THREATSCOPE_FEED_URL"); url != "" {
		c.Feed.BaseURL = url
	}
	if path := os.Getenv("THREATSCOPE_CACHE"); path != "" {
		c.Cache.Path = path
	}
	if path := os.Getenv("THREATSCOPE_WATCHLIST"); path != "" {
		c.Watchlist.Path = path
	}
	if theme := os.Getenv("THREATSCOPE_THEME"); theme != "" {
		c.Display.Theme = theme
	}
}

// GetFeedTimeout returns the feed fetch timeout as a duration.
func (c *Config) GetFeedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Feed.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetCacheMaxAge returns the snapshot freshness window as a duration.
func (c *Config) GetCacheMaxAge() time.Duration {
	d, err := time.ParseDuration(c.Cache.MaxAge)
	if err != nil {
		return 168 * time.Hour
	}
	return d
}

// GetQueryTimeout returns the knowledge base query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.KB.QueryTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// CachePath resolves the cache path against the workspace root when it
// is relative.
func (c *Config) CachePath(root string) string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(root, c.Cache.Path)
}

// WatchlistPath resolves the watchlist path against the workspace root
// when it is relative.
func (c *Config) WatchlistPath(root string) string {
	if filepath.IsAbs(c.Watchlist.Path) {
		return c.Watchlist.Path
	}
	return filepath.Join(root, c.Watchlist.Path)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Feed.Domains) == 0 {
		return fmt.Errorf("no feed domains configured (valid: %v)", ValidDomains)
	}
	for _, d := range c.Feed.Domains {
		if !validDomain(d) {
			return fmt.Errorf("invalid feed domain: %s (valid: %v)", d, ValidDomains)
		}
	}

	validTheme := false
	for _, t := range ValidThemes {
		if c.Display.Theme == t {
			validTheme = true
			break
		}
	}
	if !validTheme {
		return fmt.Errorf("invalid theme: %s (valid: %v)", c.Display.Theme, ValidThemes)
	}

	if c.Display.PageSize < 1 {
		return fmt.Errorf("display page_size must be >= 1")
	}
	if c.Display.MaxColumns < 1 {
		return fmt.Errorf("display max_columns must be >= 1")
	}
	if c.Cache.KeepSnapshots < 1 {
		return fmt.Errorf("cache keep_snapshots must be >= 1")
	}

	return nil
}

func validDomain(d string) bool {
	for _, v := range ValidDomains {
		if d == v {
			return true
		}
	}
	return false
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .threatscope directory, then a go.mod, and falls back to the working
// directory itself.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, dotDir)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// DefaultPath returns the configuration file path. The workspace file
// wins; an existing file under the user's home directory is used when
// the workspace has none.
func DefaultPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		root = "."
	}
	wsPath := filepath.Join(root, dotDir, "config.yaml")
	if _, err := os.Stat(wsPath); err == nil {
		return wsPath
	}

	if home, err := os.UserHomeDir(); err == nil {
		homePath := filepath.Join(home, dotDir, "config.yaml")
		if _, err := os.Stat(homePath); err == nil {
			return homePath
		}
	}

	return wsPath
}
