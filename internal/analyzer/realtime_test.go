package analyzer

import (
	"context"
	"testing"

	"github.com/mstefan99/beacon/internal/appstore"
)

func TestBucketKey(t *testing.T) {
	now := int64(1_700_000_000_000)

	tests := []struct {
		name string
		tMs  int64
		want int64
	}{
		{"now itself", now, now},
		{"under a minute old", now - 59_000, now},
		{"exactly one bucket old", now - 60_000, now - 60_000},
		{"just over a bucket", now - 61_000, now - 60_000},
		{"five buckets old", now - 5*60_000, now - 5*60_000},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := bucketKey(now, test.tMs); got != test.want {
				t.Errorf("bucketKey(%d, %d) = %d, want %d", now, test.tMs, got, test.want)
			}
		})
	}
}

func TestRealtimeAudienceAggregate(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	now := t0 + 120_000

	src := &fixtureSource{hits: []*appstore.Hit{
		hit("aaa", t0+10_000, "/home"),
		hit("aaa", t0+70_000, "/about"),
		hit("bbb", t0+70_000, "/home"),
	}}

	a, err := RealtimeAudienceAggregate(context.Background(), src, now, 31*60_000)
	if err != nil {
		t.Fatal(err)
	}

	older := bucketKey(now, t0+10_000)
	newer := bucketKey(now, t0+70_000)
	if newer-older != 60_000 {
		t.Fatalf("bucket keys %d and %d are not one bucket apart", older, newer)
	}

	if a.Views[older] != 1 || a.Views[newer] != 2 {
		t.Errorf("views = %v, want %d:1 %d:2", a.Views, older, newer)
	}
	if a.Users[older] != 1 || a.Users[newer] != 2 {
		t.Errorf("users = %v, want %d:1 %d:2", a.Users, older, newer)
	}
	if len(a.Views) != 2 || len(a.Users) != 2 {
		t.Errorf("unexpected extra buckets: views=%v users=%v", a.Views, a.Users)
	}
}

func TestRealtimeDistinctUsersPerBucket(t *testing.T) {
	// The same client hitting twice inside one bucket counts once for
	// users, twice for views.
	now := int64(1_700_000_000_000)

	src := &fixtureSource{hits: []*appstore.Hit{
		hit("aaa", now-10_000, "/a"),
		hit("aaa", now-20_000, "/b"),
	}}

	a, err := RealtimeAudienceAggregate(context.Background(), src, now, 31*60_000)
	if err != nil {
		t.Fatal(err)
	}

	if a.Users[now] != 1 {
		t.Errorf("users[now] = %d, want 1", a.Users[now])
	}
	if a.Views[now] != 2 {
		t.Errorf("views[now] = %d, want 2", a.Views[now])
	}
}

func TestOverviewAggregate(t *testing.T) {
	now := int64(1_700_000_000_000)

	src := &fixtureSource{
		hits: []*appstore.Hit{hit("aaa", now-30_000, "/home")},
		serverLogs: []*appstore.Log{
			{Message: "boom", Level: 3, TimeMs: now - 30_000},
			{Message: "boom again", Level: 3, TimeMs: now - 40_000},
		},
		clientLogs: []*appstore.Log{
			{Message: "render warn", Level: 2, TimeMs: now - 90_000},
		},
	}

	o, err := OverviewAggregate(context.Background(), src, now, 31*60_000)
	if err != nil {
		t.Fatal(err)
	}

	if o.Views[now] != 1 || o.Users[now] != 1 {
		t.Errorf("hits not bucketed at now: views=%v users=%v", o.Views, o.Users)
	}
	if o.ServerLogs[3][now] != 2 {
		t.Errorf("server logs = %v, want level 3 bucket now = 2", o.ServerLogs)
	}
	if o.ClientLogs[2][now-60_000] != 1 {
		t.Errorf("client logs = %v, want level 2 bucket now-60s = 1", o.ClientLogs)
	}
}

func TestAggregatesArePure(t *testing.T) {
	// Repeated calls over identical stored data must produce identical
	// results.
	now := int64(1_700_000_000_000)
	src := &fixtureSource{hits: []*appstore.Hit{
		hit("aaa", now-10_000, "/a"),
		hit("bbb", now-70_000, "/b"),
		hit("aaa", now-70_000, "/c"),
	}}

	first, err := RealtimeAudienceAggregate(context.Background(), src, now, 31*60_000)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		again, err := RealtimeAudienceAggregate(context.Background(), src, now, 31*60_000)
		if err != nil {
			t.Fatal(err)
		}
		for slot, count := range first.Views {
			if again.Views[slot] != count {
				t.Fatalf("views diverged on call %d: %v vs %v", i, first.Views, again.Views)
			}
		}
		for slot, count := range first.Users {
			if again.Users[slot] != count {
				t.Fatalf("users diverged on call %d: %v vs %v", i, first.Users, again.Users)
			}
		}
	}
}
