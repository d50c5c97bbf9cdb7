package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/mstefan99/beacon/internal/appstore"
)

func TestAudienceHistoryAggregate(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local).UnixMilli()
	day2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.Local).UnixMilli()

	src := &fixtureSource{hitAggs: []*appstore.HitDayAggregate{
		{DayMs: day1, Views: 10, Clients: 3},
		{DayMs: day2, Views: 4, Clients: 2},
	}}

	h, err := AudienceHistoryAggregate(context.Background(), src, day1, day2+24*60*60_000)
	if err != nil {
		t.Fatal(err)
	}

	if h.Views[day1] != 10 || h.Views[day2] != 4 {
		t.Errorf("views = %v", h.Views)
	}
	if h.Users[day1] != 3 || h.Users[day2] != 2 {
		t.Errorf("users = %v", h.Users)
	}
}

func TestLogHistoryAggregate(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local).UnixMilli()

	src := &fixtureSource{logAggs: map[appstore.LogKind][]*appstore.LogDayAggregate{
		appstore.ServerLog: {
			{DayMs: day1, Level: 2, Count: 5},
			{DayMs: day1, Level: 3, Count: 1},
		},
	}}

	h, err := LogHistoryAggregate(context.Background(), src, appstore.ServerLog, day1, day1+24*60*60_000, 0)
	if err != nil {
		t.Fatal(err)
	}

	if h[2][day1] != 5 {
		t.Errorf("level 2 = %v", h[2])
	}
	if h[3][day1] != 1 {
		t.Errorf("level 3 = %v", h[3])
	}
	if len(h) != 2 {
		t.Errorf("unexpected levels: %v", h)
	}
}

func TestPageRanks(t *testing.T) {
	src := &fixtureSource{
		topPages: []*appstore.RankEntry{
			{Key: "/home", Count: 12},
			{Key: "/about", Count: 3},
		},
		topRefs: []*appstore.RankEntry{
			{Key: "https://search.example", Count: 7},
		},
	}

	pages, referrers, err := PageRanks(context.Background(), src, 0, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(pages) != 2 || pages[0].Key != "/home" || pages[0].Count != 12 {
		t.Errorf("pages = %v", pages)
	}
	if len(referrers) != 1 || referrers[0].Key != "https://search.example" {
		t.Errorf("referrers = %v", referrers)
	}
}
