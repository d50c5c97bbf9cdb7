package analyzer

import (
	"context"

	"github.com/mstefan99/beacon/internal/appstore"
)

// AudienceHistory is the historical trend aggregate: calendar-day buckets
// of distinct clients and views. Bucket keys are local-midnight epoch
// milliseconds.
type AudienceHistory struct {
	Users map[int64]int64 `json:"users"`
	Views map[int64]int64 `json:"views"`
}

// LogHistory maps level -> day bucket -> count.
type LogHistory map[int]map[int64]int64

// AudienceHistoryAggregate computes per-day distinct clients and views
// over [startMs, endMs). Grouping happens store-side; this only reshapes.
func AudienceHistoryAggregate(ctx context.Context, src DataSource, startMs, endMs int64) (*AudienceHistory, error) {
	aggs, err := src.GetHitAggregate(ctx, startMs, endMs)
	if err != nil {
		return nil, err
	}

	users := make(map[int64]int64, len(aggs))
	views := make(map[int64]int64, len(aggs))
	for _, agg := range aggs {
		users[agg.DayMs] = agg.Clients
		views[agg.DayMs] = agg.Views
	}

	return &AudienceHistory{Users: users, Views: views}, nil
}

// LogHistoryAggregate computes per-(day, level) log counts of one kind
// over [startMs, endMs), keeping only levels >= minLevel.
func LogHistoryAggregate(ctx context.Context, src DataSource, kind appstore.LogKind, startMs, endMs int64, minLevel int) (LogHistory, error) {
	aggs, err := src.GetLogAggregate(ctx, kind, startMs, endMs, minLevel)
	if err != nil {
		return nil, err
	}

	out := LogHistory{}
	for _, agg := range aggs {
		byDay, ok := out[agg.Level]
		if !ok {
			byDay = map[int64]int64{}
			out[agg.Level] = byDay
		}
		byDay[agg.DayMs] = agg.Count
	}

	return out, nil
}

// PageRanks returns the top pages and referrers over [startMs, endMs) as
// flat rank tables. Truncation and tie order come from the store.
func PageRanks(ctx context.Context, src DataSource, startMs, endMs int64) (pages, referrers []*appstore.RankEntry, err error) {
	pages, err = src.GetTopPages(ctx, startMs, endMs)
	if err != nil {
		return nil, nil, err
	}

	referrers, err = src.GetTopReferrers(ctx, startMs, endMs)
	if err != nil {
		return nil, nil, err
	}

	return pages, referrers, nil
}
