// Package analyzer derives audience and telemetry summaries from raw
// events.
//
// Nothing here is precomputed or cached: every function is a pure
// transformation of one bounded read from an app's event store, recomputed
// per request. Timestamps are epoch milliseconds throughout.
package analyzer

import (
	"context"

	"github.com/mstefan99/beacon/internal/appstore"
)

// bucketLengthMs is the realtime bucket width.
const bucketLengthMs = 60_000

// DataSource is the slice of the event store the analyzer reads from.
// *appstore.AppData implements it; tests substitute fixtures.
type DataSource interface {
	GetHits(ctx context.Context, startMs, endMs int64) ([]*appstore.Hit, error)
	GetLogs(ctx context.Context, kind appstore.LogKind, startMs, endMs int64, minLevel int) ([]*appstore.Log, error)
	GetMetrics(ctx context.Context, startMs, endMs int64) ([]*appstore.Metric, error)
	GetHitAggregate(ctx context.Context, startMs, endMs int64) ([]*appstore.HitDayAggregate, error)
	GetLogAggregate(ctx context.Context, kind appstore.LogKind, startMs, endMs int64, minLevel int) ([]*appstore.LogDayAggregate, error)
	GetTopPages(ctx context.Context, startMs, endMs int64) ([]*appstore.RankEntry, error)
	GetTopReferrers(ctx context.Context, startMs, endMs int64) ([]*appstore.RankEntry, error)
}

var _ DataSource = (*appstore.AppData)(nil)

// bucketKey assigns a timestamp to a fixed-width bucket anchored to now:
// everything less than a minute old shares the bucket keyed at now, the
// minute before that is keyed at now-60s, and so on.
func bucketKey(nowMs, tMs int64) int64 {
	return nowMs - (nowMs-tMs)/bucketLengthMs*bucketLengthMs
}
