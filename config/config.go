package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full beacon configuration, loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Query    QueryConfig    `yaml:"query"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Auth     AuthConfig     `yaml:"auth"`
	Archive  ArchiveConfig  `yaml:"archive"`

	// Development enables detailed error responses and debug logging.
	Development bool `yaml:"development"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	MaxBodySize int64  `yaml:"max_body_size"`

	// CORSOrigin is the allowed origin for browser requests.
	// Empty means same-origin only; "*" allows all (development).
	CORSOrigin string `yaml:"cors_origin"`
}

// StorageConfig holds data directory and handle pool settings.
type StorageConfig struct {
	DataDir           string   `yaml:"data_dir"`
	HandleIdleTimeout Duration `yaml:"handle_idle_timeout"`
	EvictInterval     Duration `yaml:"evict_interval"`
}

// QueryConfig holds row caps for range reads.
type QueryConfig struct {
	MaxRows       int `yaml:"max_rows"`
	MaxMetricRows int `yaml:"max_metric_rows"`
	RankLimit     int `yaml:"rank_limit"`
}

// AnalysisConfig holds session and window parameters.
type AnalysisConfig struct {
	SessionLength  Duration `yaml:"session_length"`
	RealtimePeriod Duration `yaml:"realtime_period"`
	HistoryPeriod  Duration `yaml:"history_period"`
}

// AuthConfig holds login session and rate gate settings.
type AuthConfig struct {
	SessionTTL Duration `yaml:"session_ttl"`
	RateLimit  int      `yaml:"rate_limit"`
	RateWindow Duration `yaml:"rate_window"`
}

// ArchiveConfig holds archiver settings.
type ArchiveConfig struct {
	// Enabled turns the background archiver on.
	Enabled   bool     `yaml:"enabled"`
	Retention Duration `yaml:"retention"`
	Interval  Duration `yaml:"interval"`

	// Dir is where parquet archives are written. Defaults to
	// <data_dir>/archive when empty.
	Dir string `yaml:"dir"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      DefaultListenAddress,
			MaxBodySize: DefaultMaxBodySize,
		},
		Storage: StorageConfig{
			DataDir:           DefaultDataDir,
			HandleIdleTimeout: Duration(DefaultHandleIdleTimeout),
			EvictInterval:     Duration(DefaultEvictInterval),
		},
		Query: QueryConfig{
			MaxRows:       DefaultMaxRows,
			MaxMetricRows: DefaultMaxMetricRows,
			RankLimit:     DefaultRankLimit,
		},
		Analysis: AnalysisConfig{
			SessionLength:  Duration(DefaultSessionLength),
			RealtimePeriod: Duration(DefaultRealtimePeriod),
			HistoryPeriod:  Duration(DefaultHistoryPeriod),
		},
		Auth: AuthConfig{
			SessionTTL: Duration(DefaultLoginSessionTTL),
			RateLimit:  DefaultRateLimit,
			RateWindow: Duration(DefaultRateWindow),
		},
		Archive: ArchiveConfig{
			Retention: Duration(DefaultArchiveRetention),
			Interval:  Duration(DefaultArchiveInterval),
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
// A missing file is reported via os.IsNotExist on the returned error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Storage.HandleIdleTimeout <= 0 {
		return fmt.Errorf("storage.handle_idle_timeout must be positive")
	}
	if c.Query.MaxRows <= 0 || c.Query.MaxMetricRows <= 0 {
		return fmt.Errorf("query row caps must be positive")
	}
	if c.Query.RankLimit <= 0 {
		return fmt.Errorf("query.rank_limit must be positive")
	}
	if c.Analysis.SessionLength <= 0 {
		return fmt.Errorf("analysis.session_length must be positive")
	}
	return nil
}

// ControlDBPath returns the control store file path.
func (c *Config) ControlDBPath() string {
	return filepath.Join(c.Storage.DataDir, DefaultControlDBName)
}

// AppDir returns the directory holding per-app store files.
func (c *Config) AppDir() string {
	return filepath.Join(c.Storage.DataDir, DefaultAppDirName)
}

// ArchiveDir returns the directory parquet archives are written to.
func (c *Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.Storage.DataDir, "archive")
}

// EnsureDirectories creates the data directories if they do not exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDir, c.AppDir(), c.ArchiveDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
