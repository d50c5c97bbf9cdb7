package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"zero idle timeout", func(c *Config) { c.Storage.HandleIdleTimeout = 0 }},
		{"zero row cap", func(c *Config) { c.Query.MaxRows = 0 }},
		{"negative metric cap", func(c *Config) { c.Query.MaxMetricRows = -1 }},
		{"zero rank limit", func(c *Config) { c.Query.RankLimit = 0 }},
		{"zero session length", func(c *Config) { c.Analysis.SessionLength = 0 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist, got %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen: ":9999"
analysis:
  session_length: 15m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Listen != ":9999" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Analysis.SessionLength.Duration() != 15*time.Minute {
		t.Errorf("session length = %v", cfg.Analysis.SessionLength)
	}
	// Untouched fields keep their defaults.
	if cfg.Query.MaxRows != DefaultMaxRows {
		t.Errorf("max rows = %d, want default %d", cfg.Query.MaxRows, DefaultMaxRows)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/var/lib/beacon"

	if got := cfg.ControlDBPath(); got != filepath.Join("/var/lib/beacon", DefaultControlDBName) {
		t.Errorf("control db path = %q", got)
	}
	if got := cfg.AppDir(); got != filepath.Join("/var/lib/beacon", DefaultAppDirName) {
		t.Errorf("app dir = %q", got)
	}

	// An explicit archive dir wins over the derived one.
	cfg.Archive.Dir = "/mnt/cold"
	if got := cfg.ArchiveDir(); got != "/mnt/cold" {
		t.Errorf("archive dir = %q", got)
	}
}
