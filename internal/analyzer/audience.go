package analyzer

import (
	"context"
	"fmt"
	"sort"
)

// Page is one page view inside a reconstructed session.
type Page struct {
	URL      string  `json:"url"`
	Referrer *string `json:"referrer"`
	TimeMs   int64   `json:"time"`
}

// Session is a maximal run of one client's hits where every consecutive
// gap stays below the session length. Sessions are derived on every query
// and never persisted.
type Session struct {
	ID         string `json:"id"`
	DurationMs int64  `json:"duration"`
	UA         string `json:"ua"`
	Pages      []Page `json:"pages"`
}

// Audience is the detailed audience summary over one time range.
type Audience struct {
	Users         int              `json:"users"`
	Sessions      []*Session       `json:"sessions"`
	BounceRate    float64          `json:"bounceRate"`
	AvgDurationMs float64          `json:"avgDuration"`
	Views         int              `json:"views"`
	Pages         map[string]int64 `json:"pages"`
	Referrers     map[string]int64 `json:"referrers"`
}

// AudienceDetailed reconstructs browsing sessions from all hits in
// [startMs, endMs) and summarizes them.
//
// Reconstruction is strictly per client: the store only guarantees global
// time order, so each client's hits are re-sorted before the gap scan.
// Two clients' sessions may freely interleave in wall-clock time.
func AudienceDetailed(ctx context.Context, src DataSource, sessionLengthMs, startMs, endMs int64) (*Audience, error) {
	hits, err := src.GetHits(ctx, startMs, endMs)
	if err != nil {
		return nil, err
	}

	pages := map[string]int64{}
	referrers := map[string]int64{}

	// Group per client, preserving first-seen order so the output is
	// deterministic for identical inputs.
	byClient := map[string]int{}
	type clientHits struct {
		id   string
		hits []int // indices into hits
	}
	var clients []*clientHits

	for i, hit := range hits {
		pages[hit.URL]++
		if hit.Referrer != nil {
			referrers[*hit.Referrer]++
		}

		idx, ok := byClient[hit.ClientID]
		if !ok {
			idx = len(clients)
			byClient[hit.ClientID] = idx
			clients = append(clients, &clientHits{id: hit.ClientID})
		}
		clients[idx].hits = append(clients[idx].hits, i)
	}

	var sessions []*Session
	sessionCount := 0
	bounced := 0

	for _, c := range clients {
		sort.SliceStable(c.hits, func(i, j int) bool {
			return hits[c.hits[i]].TimeMs < hits[c.hits[j]].TimeMs
		})

		var current *Session
		for _, i := range c.hits {
			hit := hits[i]
			page := Page{URL: hit.URL, Referrer: hit.Referrer, TimeMs: hit.TimeMs}

			if current != nil {
				last := current.Pages[len(current.Pages)-1].TimeMs
				if hit.TimeMs-last <= sessionLengthMs {
					// Unmark the bounce on the session's second page.
					if len(current.Pages) == 1 {
						bounced--
					}
					current.DurationMs = hit.TimeMs - current.Pages[0].TimeMs
					current.Pages = append(current.Pages, page)
					continue
				}
			}

			// First hit of the client, or gap exceeded: open a new
			// session, provisionally a bounce.
			current = &Session{
				ID:    sessionID(c.id, sessionCount),
				UA:    hit.UA,
				Pages: []Page{page},
			}
			sessions = append(sessions, current)
			sessionCount++
			bounced++
		}
	}

	bounceRate := 0.0
	if sessionCount > 0 {
		bounceRate = float64(bounced) / float64(sessionCount)
	}

	// Running mean over session durations; equivalent to the arithmetic
	// mean without retaining all durations twice.
	avg := 0.0
	for i, s := range sessions {
		avg += (float64(s.DurationMs) - avg) / float64(i+1)
	}

	return &Audience{
		Users:         len(clients),
		Sessions:      sessions,
		BounceRate:    bounceRate,
		AvgDurationMs: avg,
		Views:         len(hits),
		Pages:         pages,
		Referrers:     referrers,
	}, nil
}

// sessionID derives a stable, human-scannable session id from the client
// token and the session's ordinal.
func sessionID(clientID string, ordinal int) string {
	prefix := clientID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return fmt.Sprintf("%s%x", prefix, ordinal)
}
