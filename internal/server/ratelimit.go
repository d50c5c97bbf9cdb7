package server

import (
	"sync"
	"time"
)

// Gate is a fixed-window request counter keyed by an arbitrary string,
// typically "<tag>:<client IP>" or "<tag>:<write key>". Every handler sits
// behind a Gate check; requests past the limit are rejected before any
// engine work runs.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
	limit   int
	window  time.Duration
}

type gateEntry struct {
	count     int
	resetTime time.Time
}

// NewGate creates a rate gate allowing limit requests per key per window.
// A non-positive limit disables the gate.
func NewGate(limit int, window time.Duration) *Gate {
	g := &Gate{
		entries: make(map[string]*gateEntry),
		limit:   limit,
		window:  window,
	}

	go g.cleanupLoop()

	return g
}

// Allow records one request for the key and reports whether it is within
// the limit.
func (g *Gate) Allow(key string) bool {
	if g.limit <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	entry, ok := g.entries[key]

	if !ok || now.After(entry.resetTime) {
		g.entries[key] = &gateEntry{count: 1, resetTime: now.Add(g.window)}
		return true
	}

	entry.count++
	return entry.count <= g.limit
}

// Count returns the current request count for a key.
func (g *Gate) Count(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok || time.Now().After(entry.resetTime) {
		return 0
	}
	return entry.count
}

func (g *Gate) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		g.cleanup()
	}
}

func (g *Gate) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, entry := range g.entries {
		if now.After(entry.resetTime) {
			delete(g.entries, key)
		}
	}
}
