package api

import (
	"sync"
	"time"
)

// PollStats tracks the success rate of background polls over a sliding
// time window, for display in the console header.
type PollStats struct {
	mu     sync.Mutex
	window time.Duration
	events []pollEvent
}

type pollEvent struct {
	at time.Time
	ok bool
}

// NewPollStats creates a PollStats with the given sliding window duration.
func NewPollStats(window time.Duration) *PollStats {
	return &PollStats{window: window}
}

// Record records the outcome of one poll.
func (s *PollStats) Record(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, pollEvent{at: time.Now(), ok: ok})
	s.pruneOlderThan(time.Now().Add(-s.window))
}

// SuccessPercent returns the percentage of successful polls over the sliding
// window. Returns -1 if no polls have been recorded.
func (s *PollStats) SuccessPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneOlderThan(time.Now().Add(-s.window))

	if len(s.events) == 0 {
		return -1
	}
	n := 0
	for _, e := range s.events {
		if e.ok {
			n++
		}
	}
	return float64(n) / float64(len(s.events)) * 100
}

// pruneOlderThan removes events before cutoff. Must be called with mu held.
func (s *PollStats) pruneOlderThan(cutoff time.Time) {
	i := 0
	for i < len(s.events) && s.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.events = s.events[i:]
	}
}
