// Package config provides configuration defaults and loading
// for the beacon analytics collector.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:3001"

	// DefaultMaxBodySize limits request body size to prevent OOM.
	// Ingestion payloads are small; 1 MiB leaves generous headroom.
	// Override via config: server.max_body_size
	DefaultMaxBodySize = 1 << 20
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root directory for all persisted data.
	// The control store and per-app stores live beneath it.
	// Override via config: storage.data_dir
	DefaultDataDir = "./data"

	// DefaultControlDBName is the control store file name inside DataDir.
	DefaultControlDBName = "control.duckdb"

	// DefaultAppDirName is the directory inside DataDir holding one
	// DuckDB file per app.
	DefaultAppDirName = "apps"

	// DefaultHandleIdleTimeout is how long an app store handle may sit
	// unused before the manager closes it. Bounds the number of open
	// database files across many tenants.
	// Override via config: storage.handle_idle_timeout
	DefaultHandleIdleTimeout = 5 * time.Minute

	// DefaultEvictInterval is how often the manager sweeps for idle handles.
	DefaultEvictInterval = time.Minute
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultMaxRows caps row counts returned by range reads of hits,
	// logs and feedback. Bounds per-call cost of every aggregation.
	// Override via config: query.max_rows
	DefaultMaxRows = 5000

	// DefaultMaxMetricRows caps row counts returned by metric range reads.
	// Override via config: query.max_metric_rows
	DefaultMaxMetricRows = 500

	// DefaultRankLimit truncates page and referrer rank tables.
	// Override via config: query.rank_limit
	DefaultRankLimit = 100
)

// =============================================================================
// Analysis Defaults
// =============================================================================

const (
	// DefaultSessionLength is the maximum gap between two hits of one
	// client before a new browsing session starts.
	// Override via config: analysis.session_length
	DefaultSessionLength = 30 * time.Minute

	// DefaultRealtimePeriod is the window driving live dashboards.
	// 31 minutes so that 30 whole one-minute buckets plus the partial
	// current one are covered.
	// Override via config: analysis.realtime_period
	DefaultRealtimePeriod = 31 * time.Minute

	// DefaultHistoryPeriod is the window for historical trend views.
	// Override via config: analysis.history_period
	DefaultHistoryPeriod = 31 * 24 * time.Hour
)

// =============================================================================
// Auth Defaults
// =============================================================================

const (
	// DefaultLoginSessionTTL is how long a login session stays valid
	// without activity.
	// Override via config: auth.session_ttl
	DefaultLoginSessionTTL = 30 * 24 * time.Hour

	// DefaultRateLimit is the number of requests allowed per identity
	// and window at each rate gate.
	// Override via config: auth.rate_limit
	DefaultRateLimit = 60

	// DefaultRateWindow is the rate gate counting window.
	// Override via config: auth.rate_window
	DefaultRateWindow = time.Minute
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveRetention is how long events stay in live app stores
	// before the archiver moves them to parquet files.
	// Override via config: archive.retention
	DefaultArchiveRetention = 365 * 24 * time.Hour

	// DefaultArchiveInterval is how often the archiver sweeps.
	// Override via config: archive.interval
	DefaultArchiveInterval = 24 * time.Hour
)
