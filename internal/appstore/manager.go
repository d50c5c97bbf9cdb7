// Package appstore manages the isolated per-app event stores.
//
// Each app's events live in their own DuckDB file. The Manager hands out
// live handles on demand, keeps at most one handle open per app, and closes
// handles that sit idle so the number of open files stays bounded across
// many apps. AppData is the typed read/write surface over one handle.
package appstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/logging"
)

var log = logging.Component("appstore")

// Clock abstracts time for idle-eviction tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// OpenFunc opens and schema-checks one app store file. Injectable so tests
// can count and fake opens.
type OpenFunc func(path string) (*sql.DB, error)

// Limits caps per-call row counts for event reads.
type Limits struct {
	MaxRows       int
	MaxMetricRows int
	RankLimit     int
}

// DefaultLimits returns the documented row caps.
func DefaultLimits() Limits {
	return Limits{MaxRows: 5000, MaxMetricRows: 500, RankLimit: 100}
}

// Config holds Manager configuration.
type Config struct {
	// Dir is the directory holding one DuckDB file per app.
	Dir string

	// IdleTimeout is how long a handle may sit unused before eviction.
	IdleTimeout time.Duration

	// EvictInterval is how often the eviction sweep runs.
	EvictInterval time.Duration

	// Limits caps row counts on the handles this manager hands out.
	Limits Limits

	// Clock overrides the time source. Nil means real time.
	Clock Clock

	// Open overrides the store opener. Nil means the default DuckDB opener.
	Open OpenFunc
}

type handle struct {
	data       *AppData
	lastAccess time.Time
}

// Manager owns the lifecycle of per-app store handles.
//
// The handle table is the only shared mutable state; its mutex is never
// held across storage I/O. Concurrent Acquire calls for one app collapse
// into a single open via singleflight. Manager is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	handles map[int64]*handle

	cfg   Config
	clock Clock
	open  OpenFunc
	group singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a Manager. Call Run to enable background eviction.
func NewManager(cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.EvictInterval <= 0 {
		cfg.EvictInterval = time.Minute
	}
	if cfg.Limits.MaxRows <= 0 {
		cfg.Limits = DefaultLimits()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	open := cfg.Open
	if open == nil {
		open = openChecked
	}

	return &Manager{
		handles: make(map[int64]*handle),
		cfg:     cfg,
		clock:   clock,
		open:    open,
		stop:    make(chan struct{}),
	}
}

// pathFor returns the store file path for an app.
func (m *Manager) pathFor(appID int64) string {
	return filepath.Join(m.cfg.Dir, strconv.FormatInt(appID, 10)+".duckdb")
}

// Acquire returns a live handle for the app's store, opening it on first
// use. Subsequent calls within the idle lifetime return the same handle;
// a handle evicted in the meantime is transparently reopened.
func (m *Manager) Acquire(appID int64) (*AppData, error) {
	m.mu.Lock()
	if h, ok := m.handles[appID]; ok {
		h.lastAccess = m.clock.Now()
		m.mu.Unlock()
		return h.data, nil
	}
	m.mu.Unlock()

	// Collapse concurrent opens for one app into a single underlying open.
	v, err, _ := m.group.Do(strconv.FormatInt(appID, 10), func() (any, error) {
		// A racing call may have inserted the handle already.
		m.mu.Lock()
		if h, ok := m.handles[appID]; ok {
			h.lastAccess = m.clock.Now()
			m.mu.Unlock()
			return h.data, nil
		}
		m.mu.Unlock()

		db, err := m.open(m.pathFor(appID))
		if err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("open app store %d: %w", appID, err))
		}

		data := newAppData(db, appID, m.cfg.Limits, m.clock)

		m.mu.Lock()
		m.handles[appID] = &handle{data: data, lastAccess: m.clock.Now()}
		m.mu.Unlock()

		log.Debug("app store opened", "app", appID)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*AppData), nil
}

// Provision creates the app's store file and applies the schema template.
// Called once at app creation, before any Acquire.
func (m *Manager) Provision(appID int64) error {
	db, err := openDuckDB(m.pathFor(appID))
	if err != nil {
		return errors.StorageUnavailable(fmt.Errorf("provision app store %d: %w", appID, err))
	}
	defer db.Close()

	if err := MigrateTenant(db); err != nil {
		return errors.StorageUnavailable(fmt.Errorf("migrate app store %d: %w", appID, err))
	}

	log.Info("app store provisioned", "app", appID, "schema_version", SchemaVersion)
	return nil
}

// Destroy irreversibly removes an app's persisted data. The caller must
// ensure no other operations are in flight for the app.
func (m *Manager) Destroy(appID int64) error {
	m.mu.Lock()
	h, ok := m.handles[appID]
	delete(m.handles, appID)
	m.mu.Unlock()

	if ok {
		if err := h.data.close(); err != nil {
			log.Warn("close before destroy failed", "app", appID, "error", err)
		}
	}

	path := m.pathFor(appID)
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.StorageUnavailable(fmt.Errorf("remove %s: %w", p, err))
		}
	}

	log.Info("app store destroyed", "app", appID)
	return nil
}

// EvictIdle closes every handle idle for longer than the configured
// timeout. Returns the number of handles closed. Writes are durable before
// a handle becomes idle, so eviction is always safe.
func (m *Manager) EvictIdle() int {
	cutoff := m.clock.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var evict []*handle
	var ids []int64
	for id, h := range m.handles {
		if h.lastAccess.Before(cutoff) {
			evict = append(evict, h)
			ids = append(ids, id)
			delete(m.handles, id)
		}
	}
	m.mu.Unlock()

	for i, h := range evict {
		if err := h.data.close(); err != nil {
			log.Warn("evict close failed", "app", ids[i], "error", err)
		} else {
			log.Debug("idle app store closed", "app", ids[i])
		}
	}

	return len(evict)
}

// OpenHandles returns the number of currently open handles.
func (m *Manager) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Run sweeps for idle handles until Close is called. Meant to run in its
// own goroutine.
func (m *Manager) Run() {
	ticker := time.NewTicker(m.cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.EvictIdle()
		case <-m.stop:
			return
		}
	}
}

// Close stops the eviction loop and closes all open handles.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[int64]*handle)
	m.mu.Unlock()

	var firstErr error
	for id, h := range handles {
		if err := h.data.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close app store %d: %w", id, err)
		}
	}
	return firstErr
}
