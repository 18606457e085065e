// Package config loads addresolve configuration from defaults, YAML files
// and ADDRESOLVE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

// Provider names accepted in providers.order.
const (
	ProviderStored     = "stored"
	ProviderDictionary = "dictionary"
	ProviderGeocoder   = "geocoder"
)

// KnownProviders lists every provider name in its default priority.
var KnownProviders = []string{ProviderStored, ProviderDictionary, ProviderGeocoder}

// Config represents the complete addresolve configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Resolver  ResolverConfig  `yaml:"resolver" json:"resolver"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// ResolverConfig configures batch resolution.
type ResolverConfig struct {
	// Strategy names the batch dispatch policy (per-item or per-provider).
	Strategy string `yaml:"strategy" json:"strategy"`
	// ChunkSize bounds concurrent provider calls per pass.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ExtractUnit splits unit suffixes off items before searching.
	ExtractUnit bool `yaml:"extract_unit" json:"extract_unit"`
	// Language selects the unit keyword dictionary (ru, en).
	Language string `yaml:"language" json:"language"`
}

// ProvidersConfig configures the lookup providers.
// Order is priority; a listed provider that is not configured is skipped.
type ProvidersConfig struct {
	Order      []string         `yaml:"order" json:"order"`
	Stored     StoredConfig     `yaml:"stored" json:"stored"`
	Dictionary DictionaryConfig `yaml:"dictionary" json:"dictionary"`
	Geocoder   GeocoderConfig   `yaml:"geocoder" json:"geocoder"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
}

// StoredConfig configures the SQLite-backed known-address provider.
type StoredConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DictionaryConfig configures the YAML dictionary provider.
type DictionaryConfig struct {
	Path     string  `yaml:"path" json:"path"`
	MinScore float64 `yaml:"min_score" json:"min_score"`
	Watch    bool    `yaml:"watch" json:"watch"`
}

// GeocoderConfig configures the HTTP geocoder provider.
type GeocoderConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"-"`
	// Timeout is a Go duration string, e.g. "5s".
	Timeout        string   `yaml:"timeout" json:"timeout"`
	RatePerSecond  float64  `yaml:"rate_per_second" json:"rate_per_second"`
	Burst          int      `yaml:"burst" json:"burst"`
	MaxRetries     int      `yaml:"max_retries" json:"max_retries"`
	Count          int      `yaml:"count" json:"count"`
	MinQueryLength int      `yaml:"min_query_length" json:"min_query_length"`
	MaxQueryLength int      `yaml:"max_query_length" json:"max_query_length"`
	Languages      []string `yaml:"languages" json:"languages"`
}

// CacheConfig configures the in-memory LRU placed in front of slow providers.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Size    int  `yaml:"size" json:"size"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Resolver: ResolverConfig{
			Strategy:    "per-item",
			ChunkSize:   10,
			ExtractUnit: true,
			Language:    "ru",
		},
		Providers: ProvidersConfig{
			Order: append([]string(nil), KnownProviders...),
			Geocoder: GeocoderConfig{
				Timeout:        "5s",
				RatePerSecond:  10,
				Burst:          1,
				MaxRetries:     2,
				Count:          1,
				MinQueryLength: 3,
				MaxQueryLength: 300,
				Languages:      []string{"ru"},
			},
			Cache: CacheConfig{
				Enabled: true,
				Size:    10000,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/addresolve/config.yaml, or ~/.config/addresolve/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "addresolve", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "addresolve", "config.yaml")
	}
	return filepath.Join(home, ".config", "addresolve", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project config file in dir, preferring
// .addresolve.yaml over .addresolve.yml. Empty if neither exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".addresolve.yaml", ".addresolve.yml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// Load loads configuration for dir. Later sources override earlier ones:
//  1. Defaults
//  2. User config (~/.config/addresolve/config.yaml)
//  3. Project config (.addresolve.yaml in dir)
//  4. Environment variables (ADDRESOLVE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if p := GetUserConfigPath(); fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if p := ProjectConfigPath(dir); p != "" {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file, then env.
func LoadFile(path string) (*Config, error) {
	if !fileExists(path) {
		return nil, rerrors.New(rerrors.ErrCodeConfigNotFound, "config file not found: "+path, nil)
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays the file onto c; keys absent from the file keep their
// current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return rerrors.New(rerrors.ErrCodeConfigNotFound, "failed to read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return rerrors.ConfigError("failed to parse config file "+path, err).WithDetail("path", path)
	}
	return nil
}

// applyEnvOverrides applies ADDRESOLVE_* variables. Empty values are ignored.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"ADDRESOLVE_STRATEGY":          &c.Resolver.Strategy,
		"ADDRESOLVE_LANGUAGE":          &c.Resolver.Language,
		"ADDRESOLVE_GEOCODER_ENDPOINT": &c.Providers.Geocoder.Endpoint,
		"ADDRESOLVE_GEOCODER_API_KEY":  &c.Providers.Geocoder.APIKey,
		"ADDRESOLVE_GEOCODER_TIMEOUT":  &c.Providers.Geocoder.Timeout,
		"ADDRESOLVE_STORE_PATH":        &c.Providers.Stored.Path,
		"ADDRESOLVE_DICTIONARY_PATH":   &c.Providers.Dictionary.Path,
		"ADDRESOLVE_LOG_LEVEL":         &c.Logging.Level,
		"ADDRESOLVE_LOG_FILE":          &c.Logging.File,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ADDRESOLVE_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rerrors.ConfigError("ADDRESOLVE_CHUNK_SIZE must be an integer, got "+v, err)
		}
		c.Resolver.ChunkSize = n
	}
	if v := os.Getenv("ADDRESOLVE_EXTRACT_UNIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rerrors.ConfigError("ADDRESOLVE_EXTRACT_UNIT must be a boolean, got "+v, err)
		}
		c.Resolver.ExtractUnit = b
	}
	if v := os.Getenv("ADDRESOLVE_PROVIDERS"); v != "" {
		var order []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				order = append(order, name)
			}
		}
		c.Providers.Order = order
	}
	if v := os.Getenv("ADDRESOLVE_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rerrors.ConfigError("ADDRESOLVE_CACHE_ENABLED must be a boolean, got "+v, err)
		}
		c.Providers.Cache.Enabled = b
	}
	return nil
}

// GeocoderTimeout returns the parsed geocoder timeout.
// Call after Validate; an unparseable value yields zero.
func (c *Config) GeocoderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Providers.Geocoder.Timeout)
	return d
}

// Validate checks the configuration and returns a config error if invalid.
// Strategy names are checked by the resolver, which owns them.
func (c *Config) Validate() error {
	if c.Resolver.ChunkSize < 1 {
		return rerrors.ConfigError(fmt.Sprintf("resolver.chunk_size must be at least 1, got %d", c.Resolver.ChunkSize), nil).
			WithSuggestion("set resolver.chunk_size to a small positive number such as 10")
	}
	switch strings.ToLower(c.Resolver.Language) {
	case "ru", "en":
	default:
		return rerrors.ConfigError(fmt.Sprintf("resolver.language must be 'ru' or 'en', got %q", c.Resolver.Language), nil)
	}

	seen := make(map[string]bool, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		if !isKnownProvider(name) {
			return rerrors.New(rerrors.ErrCodeUnknownProvider,
				fmt.Sprintf("unknown provider %q in providers.order (valid: %s)", name, strings.Join(KnownProviders, ", ")), nil)
		}
		if seen[name] {
			return rerrors.ConfigError(fmt.Sprintf("provider %q listed twice in providers.order", name), nil)
		}
		seen[name] = true
	}

	g := c.Providers.Geocoder
	if d, err := time.ParseDuration(g.Timeout); err != nil || d <= 0 {
		return rerrors.ConfigError(fmt.Sprintf("providers.geocoder.timeout must be a positive duration, got %q", g.Timeout), err)
	}
	if g.RatePerSecond < 0 {
		return rerrors.ConfigError("providers.geocoder.rate_per_second must be non-negative", nil)
	}
	if g.MaxRetries < 0 {
		return rerrors.ConfigError("providers.geocoder.max_retries must be non-negative", nil)
	}
	if g.MaxQueryLength > 0 && g.MinQueryLength > g.MaxQueryLength {
		return rerrors.ConfigError("providers.geocoder.min_query_length exceeds max_query_length", nil)
	}

	if s := c.Providers.Dictionary.MinScore; s < 0 {
		return rerrors.ConfigError(fmt.Sprintf("providers.dictionary.min_score must be non-negative, got %f", s), nil)
	}
	if c.Providers.Cache.Enabled && c.Providers.Cache.Size < 1 {
		return rerrors.ConfigError("providers.cache.size must be at least 1 when the cache is enabled", nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return rerrors.ConfigError(fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}
	if strings.ToLower(c.Server.Transport) != "stdio" {
		return rerrors.ConfigError(fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport), nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
