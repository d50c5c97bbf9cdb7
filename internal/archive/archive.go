// Package archive ages event data out of the live per-app stores.
//
// A periodic sweep visits every app, exports rows older than the retention
// horizon to compressed parquet files and deletes them from the live store.
// Sweeps run outside request paths; failures are logged and the affected
// app is retried on the next sweep.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/store"
)

var log = logging.Component("archive")

// Config holds archiver settings.
type Config struct {
	// Dir is the root directory for parquet archives.
	Dir string

	// Retention is how long events stay in the live store.
	Retention time.Duration

	// Interval is how often the sweep runs.
	Interval time.Duration
}

// Stats tracks sweep totals since startup.
type Stats struct {
	LastRunTime  time.Time
	RowsArchived int64
	Errors       int64
}

// Service runs the background archive sweep.
type Service struct {
	cfg   Config
	store *store.Store
	apps  *appstore.Manager

	mu    sync.Mutex
	stats Stats

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates an archive service. Call Run to start the sweep loop.
func New(cfg Config, st *store.Store, apps *appstore.Manager) *Service {
	return &Service{
		cfg:   cfg,
		store: st,
		apps:  apps,
		stop:  make(chan struct{}),
	}
}

// Stats returns a copy of the sweep totals.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run sweeps on the configured interval until Close is called.
func (s *Service) Run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Close stops the sweep loop.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Sweep archives aged events for every app. Per-app failures are logged
// and do not stop the sweep.
func (s *Service) Sweep(ctx context.Context) {
	cutoffMs := time.Now().Add(-s.cfg.Retention).UnixMilli()

	apps, err := s.store.ListApps()
	if err != nil {
		log.Error("sweep aborted, cannot list apps", "error", err)
		s.recordError()
		return
	}

	s.mu.Lock()
	s.stats.LastRunTime = time.Now()
	s.mu.Unlock()

	for _, app := range apps {
		rows, err := s.sweepApp(ctx, app.ID, cutoffMs)
		if err != nil {
			log.Error("app sweep failed", "app", app.ID, "error", err)
			s.recordError()
			continue
		}
		if rows > 0 {
			log.Info("app events archived", "app", app.ID, "rows", rows)
		}

		s.mu.Lock()
		s.stats.RowsArchived += rows
		s.mu.Unlock()
	}
}

func (s *Service) recordError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

func (s *Service) sweepApp(ctx context.Context, appID int64, cutoffMs int64) (int64, error) {
	data, err := s.apps.Acquire(appID)
	if err != nil {
		return 0, err
	}

	var total int64

	n, err := s.sweepHits(ctx, data, appID, cutoffMs)
	total += n
	if err != nil {
		return total, err
	}

	for _, kind := range []appstore.LogKind{appstore.ClientLog, appstore.ServerLog} {
		n, err = s.sweepLogs(ctx, data, appID, kind, cutoffMs)
		total += n
		if err != nil {
			return total, err
		}
	}

	n, err = s.sweepMetrics(ctx, data, appID, cutoffMs)
	total += n
	if err != nil {
		return total, err
	}

	n, err = s.sweepFeedback(ctx, data, appID, cutoffMs)
	total += n
	if err != nil {
		return total, err
	}

	if total > 0 {
		if err := data.Checkpoint(ctx); err != nil {
			log.Warn("checkpoint after sweep failed", "app", appID, "error", err)
		}
	}

	return total, nil
}

// archivePath returns the file path for one table's export of this sweep.
func (s *Service) archivePath(appID int64, table string) string {
	now := time.Now()
	name := fmt.Sprintf("%s-%d.parquet", now.Format("2006-01"), now.Unix())
	return filepath.Join(s.cfg.Dir, strconv.FormatInt(appID, 10), table, name)
}

// openWriter creates the parquet file for one export, including its
// directories.
func openWriter[T any](path string) (*os.File, *parquet.GenericWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create archive file: %w", err)
	}

	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Zstd))
	return f, w, nil
}
