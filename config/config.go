package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	IndexRoot  string        `yaml:"index_root"`
	Paths      []string      `yaml:"paths"`
	UsePathEnv bool          `yaml:"use_path_env"`
	Include    []string      `yaml:"include"`
	Exclude    []string      `yaml:"exclude"`
	Harvest    HarvestConfig `yaml:"harvest"`
	Search     SearchConfig  `yaml:"search"`
	Watcher    WatcherConfig `yaml:"watcher"`
	Server     ServerConfig  `yaml:"server"`
	Log        LogConfig     `yaml:"log"`
}

// HarvestConfig controls how help text is collected from executables
type HarvestConfig struct {
	TimeoutMs      int      `yaml:"timeout_ms"`
	Workers        int      `yaml:"workers"`
	MaxDepth       int      `yaml:"max_depth"`
	MaxSubcommands int      `yaml:"max_subcommands"`
	MaxOutputBytes int      `yaml:"max_output_bytes"`
	MinHelpBytes   int      `yaml:"min_help_bytes"`
	Strategies     []string `yaml:"strategies"`
}

// SearchConfig holds ranking settings
type SearchConfig struct {
	TopK      int     `yaml:"top_k"`
	K1        float64 `yaml:"k1"`
	B         float64 `yaml:"b"`
	NameBoost float64 `yaml:"name_boost"`
	FlagBoost float64 `yaml:"flag_boost"`
}

// WatcherConfig holds file watcher settings
type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		IndexRoot:  filepath.Join(homeDir, ".cache", "god"),
		UsePathEnv: true,
		Harvest: HarvestConfig{
			TimeoutMs:      3000,
			Workers:        8,
			MaxDepth:       1,
			MaxSubcommands: 40,
			MaxOutputBytes: 256 * 1024,
			MinHelpBytes:   24,
			Strategies:     []string{"--help", "-h"},
		},
		Search: SearchConfig{
			TopK:      20,
			K1:        1.2,
			B:         0.75,
			NameBoost: 3.0,
			FlagBoost: 1.5,
		},
		Watcher: WatcherConfig{
			DebounceMs: 250,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7777,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a file
func Load(path string) (*Config, error) {
	// If no path specified, try default locations
	if path == "" {
		path = findConfigFile()
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultPath is where `god config init` writes when no path is given
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "god", "config.yaml")
}

// findConfigFile looks for config file in standard locations
func findConfigFile() string {
	homeDir, _ := os.UserHomeDir()

	locations := []string{
		"god.yaml",
		".god.yaml",
		filepath.Join(homeDir, ".config", "god", "config.yaml"),
		filepath.Join(homeDir, ".god", "config.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// IndexFile is the snapshot location inside IndexRoot
func (c *Config) IndexFile() string {
	return filepath.Join(c.IndexRoot, "index.json")
}

// SearchDirs returns the directories to scan for executables, $PATH first
func (c *Config) SearchDirs() []string {
	var dirs []string
	if c.UsePathEnv {
		dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
	}
	return append(dirs, c.Paths...)
}

func (c *Config) expandPaths() {
	c.IndexRoot = expandPath(c.IndexRoot)
	for i, p := range c.Paths {
		c.Paths[i] = expandPath(p)
	}
}

// expandPath expands ~ and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, path[1:])
	}

	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.IndexRoot == "" {
		return fmt.Errorf("index_root cannot be empty")
	}

	if c.Harvest.TimeoutMs <= 0 {
		return fmt.Errorf("harvest.timeout_ms must be positive")
	}

	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be positive")
	}

	if c.Harvest.MaxDepth < 0 {
		return fmt.Errorf("harvest.max_depth must be non-negative")
	}

	if c.Harvest.MaxOutputBytes <= 0 {
		return fmt.Errorf("harvest.max_output_bytes must be positive")
	}

	if len(c.Harvest.Strategies) == 0 {
		return fmt.Errorf("at least one harvest strategy must be specified")
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive")
	}

	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be between 0 and 1")
	}

	if c.Search.K1 < 0 {
		return fmt.Errorf("search.k1 must be non-negative")
	}

	if c.Watcher.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must be non-negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

// Save writes the configuration to a file
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
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
