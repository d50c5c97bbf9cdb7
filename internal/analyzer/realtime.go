package analyzer

import (
	"context"

	"github.com/mstefan99/beacon/internal/appstore"
)

// Overview is the live dashboard aggregate: one-minute buckets of distinct
// users, views and log volume sharing a single window ending at now.
// Bucket keys are the bucket's anchor timestamp in epoch milliseconds.
type Overview struct {
	Users      map[int64]int64         `json:"users"`
	Views      map[int64]int64         `json:"views"`
	ServerLogs map[int]map[int64]int64 `json:"serverLogs"`
	ClientLogs map[int]map[int64]int64 `json:"clientLogs"`
}

// RealtimeAudience is the live audience aggregate: per-minute distinct
// users and views.
type RealtimeAudience struct {
	Users map[int64]int64 `json:"users"`
	Views map[int64]int64 `json:"views"`
}

// OverviewAggregate computes the live overview for the window
// [nowMs-periodMs, nowMs).
func OverviewAggregate(ctx context.Context, src DataSource, nowMs, periodMs int64) (*Overview, error) {
	startMs := nowMs - periodMs

	hits, err := src.GetHits(ctx, startMs, nowMs)
	if err != nil {
		return nil, err
	}
	serverLogs, err := src.GetLogs(ctx, appstore.ServerLog, startMs, nowMs, 0)
	if err != nil {
		return nil, err
	}
	clientLogs, err := src.GetLogs(ctx, appstore.ClientLog, startMs, nowMs, 0)
	if err != nil {
		return nil, err
	}

	users, views := bucketHits(nowMs, hits)

	return &Overview{
		Users:      users,
		Views:      views,
		ServerLogs: bucketLogs(nowMs, serverLogs),
		ClientLogs: bucketLogs(nowMs, clientLogs),
	}, nil
}

// RealtimeAudienceAggregate computes per-minute distinct users and views
// for the window [nowMs-periodMs, nowMs).
func RealtimeAudienceAggregate(ctx context.Context, src DataSource, nowMs, periodMs int64) (*RealtimeAudience, error) {
	hits, err := src.GetHits(ctx, nowMs-periodMs, nowMs)
	if err != nil {
		return nil, err
	}

	users, views := bucketHits(nowMs, hits)
	return &RealtimeAudience{Users: users, Views: views}, nil
}

// bucketHits folds hits into per-bucket view counts and distinct-client
// counts.
func bucketHits(nowMs int64, hits []*appstore.Hit) (users, views map[int64]int64) {
	userSets := map[int64]map[string]struct{}{}
	views = map[int64]int64{}

	for _, hit := range hits {
		slot := bucketKey(nowMs, hit.TimeMs)

		set, ok := userSets[slot]
		if !ok {
			set = map[string]struct{}{}
			userSets[slot] = set
		}
		set[hit.ClientID] = struct{}{}

		views[slot]++
	}

	users = make(map[int64]int64, len(userSets))
	for slot, set := range userSets {
		users[slot] = int64(len(set))
	}
	return users, views
}

// bucketLogs folds log lines into level -> bucket -> count.
func bucketLogs(nowMs int64, logs []*appstore.Log) map[int]map[int64]int64 {
	out := map[int]map[int64]int64{}

	for _, l := range logs {
		slot := bucketKey(nowMs, l.TimeMs)

		byBucket, ok := out[l.Level]
		if !ok {
			byBucket = map[int64]int64{}
			out[l.Level] = byBucket
		}
		byBucket[slot]++
	}

	return out
}
