package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
)

const (
	// ProjectFileName is the per-project configuration file.
	ProjectFileName = ".mediadex.yaml"

	// DefaultDataDir is the data directory, relative to the project root.
	DefaultDataDir = ".mediadex"
)

// Config represents the complete mediadex configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Export  ExportConfig `yaml:"export" json:"export"`
	Server  ServerConfig `yaml:"server" json:"server"`
	Watch   WatchConfig  `yaml:"watch" json:"watch"`
}

// PathsConfig locates inputs and outputs. Relative paths are resolved
// against the project root by Load; Index and Static default to
// subdirectories of Data.
type PathsConfig struct {
	Data    string `yaml:"data" json:"data"`
	Catalog string `yaml:"catalog" json:"catalog"`
	Configs string `yaml:"configs" json:"configs"`
	Index   string `yaml:"index" json:"index"`
	Static  string `yaml:"static" json:"static"`
}

// IndexConfig selects and tunes the persistent index.
type IndexConfig struct {
	// Backend is "sqlite" (default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// SQLiteCacheMB is the SQLite page cache size in megabytes.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// SearchConfig configures the query engine.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`

	// PreferredStyles picks a group's default style, first present wins.
	PreferredStyles []string `yaml:"preferred_styles" json:"preferred_styles"`

	// CacheSize is the result cache capacity per kind. Negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ExportConfig configures the static exporter.
type ExportConfig struct {
	OverflowThreshold int `yaml:"overflow_threshold" json:"overflow_threshold"`
	Workers           int `yaml:"workers" json:"workers"`
	MaxTags           int `yaml:"max_tags" json:"max_tags"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`

	// MetricsAddr serves /metrics when set (e.g. "127.0.0.1:9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// WatchConfig configures the catalog watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Data:    DefaultDataDir,
			Catalog: "catalog",
			Configs: filepath.Join("configs", "sources"),
		},
		Index: IndexConfig{
			Backend:       "sqlite",
			SQLiteCacheMB: 64,
		},
		Search: SearchConfig{
			DefaultLimit:    50,
			MaxLimit:        1000,
			PreferredStyles: []string{"regular", "outline"},
			CacheSize:       256,
		},
		Export: ExportConfig{
			OverflowThreshold: 5000,
			Workers:           runtime.NumCPU(),
			MaxTags:           5,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the user configuration file, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediadex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "mediadex", "config.yaml")
	}
	return filepath.Join(home, ".config", "mediadex", "config.yaml")
}

// GetUserConfigDir returns the directory holding the user config file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := readYAML(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load builds the configuration for the project rooted at dir.
//
// Precedence, lowest first: defaults, user config, project config
// (.mediadex.yaml), environment variables. The result is validated and its
// paths resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, mderrors.ConfigError("failed to load user config", err).
			WithDetail("path", GetUserConfigPath())
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Paths.resolve(dir)
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ProjectFileName)
	if !fileExists(path) {
		return nil
	}
	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return mderrors.ConfigError("failed to load project config", err).WithDetail("path", path)
	}
	c.mergeWith(&parsed)
	return nil
}

func readYAML(path string, v *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith copies the non-zero fields of other over c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.Data != "" {
		c.Paths.Data = other.Paths.Data
	}
	if other.Paths.Catalog != "" {
		c.Paths.Catalog = other.Paths.Catalog
	}
	if other.Paths.Configs != "" {
		c.Paths.Configs = other.Paths.Configs
	}
	if other.Paths.Index != "" {
		c.Paths.Index = other.Paths.Index
	}
	if other.Paths.Static != "" {
		c.Paths.Static = other.Paths.Static
	}

	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.SQLiteCacheMB != 0 {
		c.Index.SQLiteCacheMB = other.Index.SQLiteCacheMB
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if len(other.Search.PreferredStyles) > 0 {
		c.Search.PreferredStyles = other.Search.PreferredStyles
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Export.OverflowThreshold != 0 {
		c.Export.OverflowThreshold = other.Export.OverflowThreshold
	}
	if other.Export.Workers != 0 {
		c.Export.Workers = other.Export.Workers
	}
	if other.Export.MaxTags != 0 {
		c.Export.MaxTags = other.Export.MaxTags
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

// applyEnvOverrides applies MEDIADEX_* variables. Empty values and
// unparsable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDIADEX_DATA_DIR"); v != "" {
		c.Paths.Data = v
	}
	if v := os.Getenv("MEDIADEX_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("MEDIADEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MEDIADEX_PREFERRED_STYLES"); v != "" {
		if styles := splitList(v); len(styles) > 0 {
			c.Search.PreferredStyles = styles
		}
	}
	if v := os.Getenv("MEDIADEX_EXPORT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Export.Workers = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolve makes every path absolute under root and fills Index and Static
// from Data.
func (p *PathsConfig) resolve(root string) {
	abs := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(root, path)
	}
	p.Data = abs(p.Data)
	p.Catalog = abs(p.Catalog)
	p.Configs = abs(p.Configs)
	if p.Index == "" {
		p.Index = filepath.Join(p.Data, "index")
	}
	if p.Static == "" {
		p.Static = filepath.Join(p.Data, "static")
	}
	p.Index = abs(p.Index)
	p.Static = abs(p.Static)
}

// DebounceDuration parses Watch.Debounce. Validate guarantees it parses.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// FindProjectRoot walks up from startDir to the first directory holding a
// project config file or a .git directory. It returns startDir (absolute)
// when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectFileName)) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "sqlite", "bleve":
	default:
		return invalid("index.backend must be sqlite or bleve, got %q", c.Index.Backend)
	}
	if c.Index.SQLiteCacheMB < 0 {
		return invalid("index.sqlite_cache_mb must be non-negative, got %d", c.Index.SQLiteCacheMB)
	}

	if c.Search.MaxLimit <= 0 {
		return invalid("search.max_limit must be positive, got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return invalid("search.default_limit must be between 1 and %d, got %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	if c.Export.OverflowThreshold <= 0 {
		return invalid("export.overflow_threshold must be positive, got %d", c.Export.OverflowThreshold)
	}
	if c.Export.Workers < 0 {
		return invalid("export.workers must be non-negative, got %d", c.Export.Workers)
	}
	if c.Export.MaxTags < 0 {
		return invalid("export.max_tags must be non-negative, got %d", c.Export.MaxTags)
	}

	switch c.Server.Transport {
	case "stdio":
	default:
		return invalid("server.transport must be stdio, got %q", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel)
	}

	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d < 0 {
		return invalid("watch.debounce must be a non-negative duration, got %q", c.Watch.Debounce)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return mderrors.ConfigError("invalid configuration: "+fmt.Sprintf(format, args...), nil)
}

// WriteYAML writes cfg to path, creating its directory.
func WriteYAML(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
