package queue

import (
	"sync"
	"time"
)

// Gate keeps backend call starts at least interval apart across every caller
// that shares it, so a batch queue and ad hoc requests stay under one ceiling.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewGate(interval time.Duration) *Gate {
	if interval < 0 {
		interval = 0
	}
	return &Gate{interval: interval}
}

// Reserve books the earliest free slot at or after now and returns how long
// the caller must wait before starting its call.
func (g *Gate) Reserve(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := g.earliest(now)
	g.last = start
	return start.Sub(now)
}

// TryReserve books a slot only when one is free right now.
func (g *Gate) TryReserve(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.earliest(now).After(now) {
		return false
	}
	g.last = now
	return true
}

func (g *Gate) earliest(now time.Time) time.Time {
	if g.last.IsZero() {
		return now
	}
	if next := g.last.Add(g.interval); next.After(now) {
		return next
	}
	return now
}
