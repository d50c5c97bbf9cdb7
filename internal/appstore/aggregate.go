package appstore

import (
	"context"
	"fmt"

	"github.com/mstefan99/beacon/internal/errors"
)

// Aggregated reads. Grouping happens inside DuckDB so per-call work stays
// bounded regardless of row counts; the analyzer only reshapes the grouped
// results. Day buckets are local-midnight boundaries in the server's
// timezone, expressed as epoch milliseconds.

// HitDayAggregate is one calendar day of hit activity.
type HitDayAggregate struct {
	DayMs   int64 `json:"time"`
	Views   int64 `json:"views"`
	Clients int64 `json:"clients"`
}

// LogDayAggregate is one (day, level) log count.
type LogDayAggregate struct {
	DayMs int64 `json:"time"`
	Level int   `json:"level"`
	Count int64 `json:"count"`
}

// RankEntry is one row of a top-N rank table.
type RankEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// dayExpr converts a persisted second timestamp to the epoch milliseconds
// of its local calendar day start.
const dayExpr = `CAST(epoch(date_trunc('day', to_timestamp(time_s))) AS BIGINT) * 1000`

// GetHitAggregate returns per-day view totals and distinct client counts
// for hits in [startMs, endMs), ordered by day.
func (a *AppData) GetHitAggregate(ctx context.Context, startMs, endMs int64) ([]*HitDayAggregate, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+dayExpr+` AS day_ms,
		       COUNT(*) AS views,
		       COUNT(DISTINCT client_id) AS clients
		FROM hits
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ?
		GROUP BY day_ms
		ORDER BY day_ms
	`, startMs, endMs)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("aggregate hits: %w", err))
	}
	defer rows.Close()

	var aggs []*HitDayAggregate
	for rows.Next() {
		var agg HitDayAggregate
		if err := rows.Scan(&agg.DayMs, &agg.Views, &agg.Clients); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan hit aggregate: %w", err))
		}
		aggs = append(aggs, &agg)
	}

	return aggs, rows.Err()
}

// GetLogAggregate returns per-(day, level) log counts for logs of the
// given kind with level >= minLevel in [startMs, endMs).
func (a *AppData) GetLogAggregate(ctx context.Context, kind LogKind, startMs, endMs int64, minLevel int) ([]*LogDayAggregate, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+dayExpr+` AS day_ms, level, COUNT(*) AS count
		FROM `+kind.table()+`
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ? AND level >= ?
		GROUP BY day_ms, level
		ORDER BY day_ms, level
	`, startMs, endMs, minLevel)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("aggregate %s logs: %w", kind, err))
	}
	defer rows.Close()

	var aggs []*LogDayAggregate
	for rows.Next() {
		var agg LogDayAggregate
		if err := rows.Scan(&agg.DayMs, &agg.Level, &agg.Count); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan log aggregate: %w", err))
		}
		aggs = append(aggs, &agg)
	}

	return aggs, rows.Err()
}

// GetTopPages returns the most-hit URLs in [startMs, endMs), truncated to
// the configured rank limit. Ties break by insertion order.
func (a *AppData) GetTopPages(ctx context.Context, startMs, endMs int64) ([]*RankEntry, error) {
	return a.rankQuery(ctx, `
		SELECT url, COUNT(*) AS count
		FROM hits
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ?
		GROUP BY url
		ORDER BY count DESC, MIN(id)
		LIMIT ?
	`, startMs, endMs)
}

// GetTopReferrers returns the most common referrers in [startMs, endMs),
// truncated to the configured rank limit. Hits without a referrer are
// excluded. Ties break by insertion order.
func (a *AppData) GetTopReferrers(ctx context.Context, startMs, endMs int64) ([]*RankEntry, error) {
	return a.rankQuery(ctx, `
		SELECT referrer, COUNT(*) AS count
		FROM hits
		WHERE time_s * 1000 >= ? AND time_s * 1000 < ? AND referrer IS NOT NULL
		GROUP BY referrer
		ORDER BY count DESC, MIN(id)
		LIMIT ?
	`, startMs, endMs)
}

func (a *AppData) rankQuery(ctx context.Context, query string, startMs, endMs int64) ([]*RankEntry, error) {
	rows, err := a.db.QueryContext(ctx, query, startMs, endMs, a.limits.RankLimit)
	if err != nil {
		return nil, errors.StorageUnavailable(fmt.Errorf("rank query: %w", err))
	}
	defer rows.Close()

	var entries []*RankEntry
	for rows.Next() {
		var e RankEntry
		if err := rows.Scan(&e.Key, &e.Count); err != nil {
			return nil, errors.StorageUnavailable(fmt.Errorf("scan rank entry: %w", err))
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
