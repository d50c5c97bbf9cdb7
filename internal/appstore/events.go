package appstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mstefan99/beacon/internal/errors"
)

// LogKind selects between browser-origin and server-origin logs.
type LogKind string

const (
	ClientLog LogKind = "client"
	ServerLog LogKind = "server"
)

func (k LogKind) table() string {
	if k == ServerLog {
		return "server_logs"
	}
	return "client_logs"
}

// Client is a browsing agent correlated across hits by an opaque token.
// The token is minted server-side on first contact and echoed back by the
// caller; it is trusted as claimed, never verified.
type Client struct {
	ID     string `json:"id"`
	UA     string `json:"ua"`
	Lang   string `json:"lang"`
	TimeMs int64  `json:"time"`
}

// Hit is one recorded page view. UA is joined in from the client record.
type Hit struct {
	ID       int64   `json:"id"`
	ClientID string  `json:"clientID"`
	UA       string  `json:"ua"`
	URL      string  `json:"url"`
	Referrer *string `json:"referrer"`
	TimeMs   int64   `json:"time"`
}

// Log is one recorded log line, client- or server-origin.
type Log struct {
	ID      int64   `json:"id"`
	TimeMs  int64   `json:"time"`
	Tag     *string `json:"tag"`
	Message string  `json:"message"`
	Level   int     `json:"level"`
}

// Metric is one recorded device metric sample. All fields are optional;
// reporters send what they have.
type Metric struct {
	ID        int64    `json:"id"`
	TimeMs    int64    `json:"time"`
	Device    *string  `json:"device"`
	CPU       *float64 `json:"cpu"`
	MemUsed   *float64 `json:"memUsed"`
	MemTotal  *float64 `json:"memTotal"`
	NetUp     *float64 `json:"netUp"`
	NetDown   *float64 `json:"netDown"`
	DiskUsed  *float64 `json:"diskUsed"`
	DiskTotal *float64 `json:"diskTotal"`
}

// Feedback is one recorded feedback message.
type Feedback struct {
	ID      int64  `json:"id"`
	TimeMs  int64  `json:"time"`
	Message string `json:"message"`
}

// AppData is the typed, bounded read/write surface over one app's store.
// All timestamps crossing this boundary are epoch milliseconds; the
// persisted second resolution never leaks out.
type AppData struct {
	db     *sql.DB
	appID  int64
	limits Limits
	clock  Clock
}

func newAppData(db *sql.DB, appID int64, limits Limits, clock Clock) *AppData {
	return &AppData{db: db, appID: appID, limits: limits, clock: clock}
}

func (a *AppData) close() error { return a.db.Close() }

// AppID returns the id of the app this surface belongs to.
func (a *AppData) AppID() int64 { return a.appID }

// nowS returns the current server timestamp at the persisted resolution.
func (a *AppData) nowS() int64 { return a.clock.Now().UnixMilli() / 1000 }

// =============================================================================
// Clients
// =============================================================================

// CreateClient mints a new client token and records the agent metadata.
func (a *AppData) CreateClient(ctx context.Context, ua, lang string) (*Client, error) {
	c := &Client{
		ID:     uuid.NewString(),
		UA:     ua,
		Lang:   lang,
		TimeMs: a.nowS() * 1000,
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO clients (id, ua, lang, time_s) VALUES (?, ?, ?, ?)
	`, c.ID, c.UA, c.Lang, c.TimeMs/1000)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("insert client: %w", err))
	}

	return c, nil
}

// GetClient returns the client with the given token, or nil when unknown.
// An unknown token is not an error at the ingestion boundary; the caller
// mints a fresh client instead.
func (a *AppData) GetClient(ctx context.Context, id string) (*Client, error) {
	var c Client
	var timeS int64
	err := a.db.QueryRowContext(ctx, `
		SELECT id, ua, lang, time_s FROM clients WHERE id = ?
	`, id).Scan(&c.ID, &c.UA, &c.Lang, &timeS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("scan client: %w", err))
	}

	c.TimeMs = timeS * 1000
	return &c, nil
}

// =============================================================================
// Writes
// =============================================================================

// RecordHit stores a page view for the given client and returns the stored
// record.
func (a *AppData) RecordHit(ctx context.Context, client *Client, url string, referrer *string) (*Hit, error) {
	h := &Hit{
		ClientID: client.ID,
		UA:       client.UA,
		URL:      url,
		Referrer: referrer,
		TimeMs:   a.nowS() * 1000,
	}

	err := a.db.QueryRowContext(ctx, `
		INSERT INTO hits (client_id, url, referrer, time_s)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, h.ClientID, h.URL, h.Referrer, h.TimeMs/1000).Scan(&h.ID)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("insert hit: %w", err))
	}

	return h, nil
}

// RecordLog stores a log line of the given kind and returns the stored
// record.
func (a *AppData) RecordLog(ctx context.Context, kind LogKind, message string, level int, tag *string) (*Log, error) {
	l := &Log{
		TimeMs:  a.nowS() * 1000,
		Tag:     tag,
		Message: message,
		Level:   level,
	}

	err := a.db.QueryRowContext(ctx, `
		INSERT INTO `+kind.table()+` (time_s, tag, message, level)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, l.TimeMs/1000, l.Tag, l.Message, l.Level).Scan(&l.ID)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("insert %s log: %w", kind, err))
	}

	return l, nil
}

// RecordMetric stores a metric sample and returns the stored record.
func (a *AppData) RecordMetric(ctx context.Context, m Metric) (*Metric, error) {
	m.TimeMs = a.nowS() * 1000

	err := a.db.QueryRowContext(ctx, `
		INSERT INTO metrics (time_s, device, cpu, mem_used, mem_total,
		                     net_up, net_down, disk_used, disk_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.TimeMs/1000, m.Device, m.CPU, m.MemUsed, m.MemTotal,
		m.NetUp, m.NetDown, m.DiskUsed, m.DiskTotal).Scan(&m.ID)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("insert metric: %w", err))
	}

	return &m, nil
}

// RecordFeedback stores a feedback message and returns the stored record.
func (a *AppData) RecordFeedback(ctx context.Context, message string) (*Feedback, error) {
	f := &Feedback{
		TimeMs:  a.nowS() * 1000,
		Message: message,
	}

	err := a.db.QueryRowContext(ctx, `
		INSERT INTO feedback (time_s, message)
		VALUES (?, ?)
		RETURNING id
	`, f.TimeMs/1000, f.Message).Scan(&f.ID)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("insert feedback: %w", err))
	}

	return f, nil
}

// =============================================================================
// Range reads
// =============================================================================

// GetHits returns hits in [startMs, endMs) ordered by time ascending,
// capped at the configured row limit.
func (a *AppData) GetHits(ctx context.Context, startMs, endMs int64) ([]*Hit, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT h.id, h.client_id, COALESCE(c.ua, ''), h.url, h.referrer, h.time_s
		FROM hits h
		LEFT JOIN clients c ON c.id = h.client_id
		WHERE h.time_s * 1000 >= ? AND h.time_s * 1000 < ?
		ORDER BY h.time_s, h.id
		LIMIT ?
	`, startMs, endMs, a.limits.MaxRows)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("query hits: %w", err))
	}
	defer rows.Close()

	var hits []*Hit
	for rows.Next() {
		var h Hit
		var timeS int64
		if err := rows.Scan(&h.ID, &h.ClientID, &h.UA, &h.URL, &h.Referrer, &timeS); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan hit: %w", err))
		}
		h.TimeMs = timeS * 1000
		hits = append(hits, &h)
	}

	return hits, rows.Err()
}

// GetLogs returns logs of the given kind with level >= minLevel in
// [startMs, endMs) ordered by time ascending, capped at the row limit.
func (a *AppData) GetLogs(ctx context.Context, kind LogKind, startMs, endMs int64, minLevel int) ([]*Log, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, time_s, tag, message, level
		FROM `+kind.table()+`
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ? AND level >= ?
		ORDER BY time_s, id
		LIMIT ?
	`, startMs, endMs, minLevel, a.limits.MaxRows)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("query %s logs: %w", kind, err))
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		var l Log
		var timeS int64
		if err := rows.Scan(&l.ID, &timeS, &l.Tag, &l.Message, &l.Level); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan log: %w", err))
		}
		l.TimeMs = timeS * 1000
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}

// GetMetrics returns metric samples in [startMs, endMs) ordered by time
// ascending, capped at the metric row limit.
func (a *AppData) GetMetrics(ctx context.Context, startMs, endMs int64) ([]*Metric, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, time_s, device, cpu, mem_used, mem_total,
		       net_up, net_down, disk_used, disk_total
		FROM metrics
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ?
		ORDER BY time_s, id
		LIMIT ?
	`, startMs, endMs, a.limits.MaxMetricRows)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("query metrics: %w", err))
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		var m Metric
		var timeS int64
		err := rows.Scan(&m.ID, &timeS, &m.Device, &m.CPU, &m.MemUsed, &m.MemTotal,
			&m.NetUp, &m.NetDown, &m.DiskUsed, &m.DiskTotal)
		if err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan metric: %w", err))
		}
		m.TimeMs = timeS * 1000
		metrics = append(metrics, &m)
	}

	return metrics, rows.Err()
}

// GetFeedback returns feedback in [startMs, endMs) ordered by time
// ascending, capped at the row limit.
func (a *AppData) GetFeedback(ctx context.Context, startMs, endMs int64) ([]*Feedback, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, time_s, message
		FROM feedback
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ?
		ORDER BY time_s, id
		LIMIT ?
	`, startMs, endMs, a.limits.MaxRows)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("query feedback: %w", err))
	}
	defer rows.Close()

	var feedback []*Feedback
	for rows.Next() {
		var f Feedback
		var timeS int64
		if err := rows.Scan(&f.ID, &timeS, &f.Message); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan feedback: %w", err))
		}
		f.TimeMs = timeS * 1000
		feedback = append(feedback, &f)
	}

	return feedback, rows.Err()
}

// =============================================================================
// Pruning (used by the archiver)
// =============================================================================

// eventTables lists the tables the archiver sweeps, in export order.
var eventTables = []string{"hits", "client_logs", "server_logs", "metrics", "feedback"}

// DeleteEventsThrough removes rows of one event table up to and including
// the row at (lastMs, lastID), in the (time_s, id) order range reads use.
// This lets the archiver delete exactly the rows it exported, even when a
// capped batch ends inside a second holding more rows than the cap.
// Returns the number of rows removed.
func (a *AppData) DeleteEventsThrough(ctx context.Context, table string, lastMs, lastID int64) (int64, error) {
	valid := false
	for _, t := range eventTables {
		if t == table {
			valid = true
			break
		}
	}
	if !valid {
		return 0, fmt.Errorf("unknown event table %q", table)
	}

	res, err := a.db.ExecContext(ctx, `
		DELETE FROM `+table+`
		WHERE time_s * 1000 < ? OR (time_s * 1000 = ? AND id <= ?)
	`, lastMs, lastMs, lastID)
	if err != nil {
		return 0, errors.StorageUnavailable(fmt.Errorf("prune %s: %w", table, err))
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// Checkpoint flushes the WAL so evicted handles leave a clean file behind.
func (a *AppData) Checkpoint(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `CHECKPOINT`)
	if err != nil {
		return errors.StorageUnavailable(fmt.Errorf("checkpoint: %w", err))
	}
	return nil
}
