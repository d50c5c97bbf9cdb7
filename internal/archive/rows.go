package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/mstefan99/beacon/internal/appstore"
)

// Parquet row shapes. Optional event fields map to optional columns;
// timestamps are the millisecond values the event store exposes.

type hitRow struct {
	ID       int64  `parquet:"id"`
	ClientID string `parquet:"client_id,zstd"`
	UA       string `parquet:"ua,zstd"`
	URL      string `parquet:"url,zstd"`
	Referrer string `parquet:"referrer,optional,zstd"`
	TimeMs   int64  `parquet:"time_ms"`
}

type logRow struct {
	ID      int64  `parquet:"id"`
	TimeMs  int64  `parquet:"time_ms"`
	Tag     string `parquet:"tag,optional,zstd"`
	Message string `parquet:"message,zstd"`
	Level   int32  `parquet:"level"`
}

type metricRow struct {
	ID        int64   `parquet:"id"`
	TimeMs    int64   `parquet:"time_ms"`
	Device    string  `parquet:"device,optional,zstd"`
	CPU       float64 `parquet:"cpu,optional"`
	MemUsed   float64 `parquet:"mem_used,optional"`
	MemTotal  float64 `parquet:"mem_total,optional"`
	NetUp     float64 `parquet:"net_up,optional"`
	NetDown   float64 `parquet:"net_down,optional"`
	DiskUsed  float64 `parquet:"disk_used,optional"`
	DiskTotal float64 `parquet:"disk_total,optional"`
}

type feedbackRow struct {
	ID      int64  `parquet:"id"`
	TimeMs  int64  `parquet:"time_ms"`
	Message string `parquet:"message,zstd"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func hitToRow(h *appstore.Hit) hitRow {
	return hitRow{
		ID:       h.ID,
		ClientID: h.ClientID,
		UA:       h.UA,
		URL:      h.URL,
		Referrer: deref(h.Referrer),
		TimeMs:   h.TimeMs,
	}
}

func logToRow(l *appstore.Log) logRow {
	return logRow{
		ID:      l.ID,
		TimeMs:  l.TimeMs,
		Tag:     deref(l.Tag),
		Message: l.Message,
		Level:   int32(l.Level),
	}
}

func metricToRow(m *appstore.Metric) metricRow {
	return metricRow{
		ID:        m.ID,
		TimeMs:    m.TimeMs,
		Device:    deref(m.Device),
		CPU:       deref(m.CPU),
		MemUsed:   deref(m.MemUsed),
		MemTotal:  deref(m.MemTotal),
		NetUp:     deref(m.NetUp),
		NetDown:   deref(m.NetDown),
		DiskUsed:  deref(m.DiskUsed),
		DiskTotal: deref(m.DiskTotal),
	}
}

func feedbackToRow(f *appstore.Feedback) feedbackRow {
	return feedbackRow{ID: f.ID, TimeMs: f.TimeMs, Message: f.Message}
}

// sweepTable drains one event table into a parquet file in time-ascending
// batches, deleting each exported batch before fetching the next. fetch
// reads the oldest remaining rows below the cutoff in (time, id) order;
// the event store's row cap bounds every batch. Each delete is bounded by
// the last exported row's (time, id), so rows beyond the cap that share
// its second survive for the next batch.
func sweepTable[E any, R any](
	ctx context.Context,
	data *appstore.AppData,
	table, path string,
	cutoffMs int64,
	fetch func(ctx context.Context, startMs, endMs int64) ([]E, error),
	timeOf func(E) int64,
	idOf func(E) int64,
	toRow func(E) R,
) (int64, error) {
	var (
		total int64
		file  *os.File
		w     *parquet.GenericWriter[R]
	)

	defer func() {
		if w != nil {
			w.Close()
		}
		if file != nil {
			file.Close()
			// Nothing was archived; leave no empty file behind.
			if total == 0 {
				os.Remove(path)
			}
		}
	}()

	for {
		events, err := fetch(ctx, 0, cutoffMs)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			break
		}

		if w == nil {
			file, w, err = openWriter[R](path)
			if err != nil {
				return total, err
			}
		}

		rows := make([]R, len(events))
		for i, e := range events {
			rows[i] = toRow(e)
		}
		if _, err := w.Write(rows); err != nil {
			return total, fmt.Errorf("write archive rows: %w", err)
		}
		total += int64(len(events))

		last := events[len(events)-1]
		if _, err := data.DeleteEventsThrough(ctx, table, timeOf(last), idOf(last)); err != nil {
			return total, err
		}
	}

	if w != nil {
		if err := w.Close(); err != nil {
			w = nil
			return total, fmt.Errorf("close archive writer: %w", err)
		}
		w = nil
	}

	return total, nil
}

func (s *Service) sweepHits(ctx context.Context, data *appstore.AppData, appID, cutoffMs int64) (int64, error) {
	return sweepTable(ctx, data, "hits", s.archivePath(appID, "hits"), cutoffMs,
		data.GetHits,
		func(h *appstore.Hit) int64 { return h.TimeMs },
		func(h *appstore.Hit) int64 { return h.ID },
		hitToRow)
}

func (s *Service) sweepLogs(ctx context.Context, data *appstore.AppData, appID int64, kind appstore.LogKind, cutoffMs int64) (int64, error) {
	table := "client_logs"
	if kind == appstore.ServerLog {
		table = "server_logs"
	}

	fetch := func(ctx context.Context, startMs, endMs int64) ([]*appstore.Log, error) {
		return data.GetLogs(ctx, kind, startMs, endMs, 0)
	}

	return sweepTable(ctx, data, table, s.archivePath(appID, table), cutoffMs,
		fetch,
		func(l *appstore.Log) int64 { return l.TimeMs },
		func(l *appstore.Log) int64 { return l.ID },
		logToRow)
}

func (s *Service) sweepMetrics(ctx context.Context, data *appstore.AppData, appID, cutoffMs int64) (int64, error) {
	return sweepTable(ctx, data, "metrics", s.archivePath(appID, "metrics"), cutoffMs,
		data.GetMetrics,
		func(m *appstore.Metric) int64 { return m.TimeMs },
		func(m *appstore.Metric) int64 { return m.ID },
		metricToRow)
}

func (s *Service) sweepFeedback(ctx context.Context, data *appstore.AppData, appID, cutoffMs int64) (int64, error) {
	return sweepTable(ctx, data, "feedback", s.archivePath(appID, "feedback"), cutoffMs,
		data.GetFeedback,
		func(f *appstore.Feedback) int64 { return f.TimeMs },
		func(f *appstore.Feedback) int64 { return f.ID },
		feedbackToRow)
}
