// Package stats tracks conflict-scan counters across monitor runs.
package stats

import (
	"sync/atomic"
	"time"
)

// Stats accumulates scan counters for the lifetime of the monitor process.
// All counters are safe for concurrent increment from the per-booking
// workers.
type Stats struct {
	RunsCompleted    uint64
	BookingsScanned  uint64
	ConflictsFound   uint64
	BookingsCleared  uint64
	BookingsSkipped  uint64
	BookingsErrored  uint64
	OptionsGenerated uint64

	startedAt atomic.Int64 // unix seconds
	lastRunAt atomic.Int64
}

// New creates a new Stats instance
func New() *Stats {
	s := &Stats{}
	s.startedAt.Store(time.Now().Unix())
	return s
}

func (s *Stats) IncrementRuns()          { atomic.AddUint64(&s.RunsCompleted, 1) }
func (s *Stats) IncrementScanned()       { atomic.AddUint64(&s.BookingsScanned, 1) }
func (s *Stats) IncrementConflicts()     { atomic.AddUint64(&s.ConflictsFound, 1) }
func (s *Stats) IncrementCleared()       { atomic.AddUint64(&s.BookingsCleared, 1) }
func (s *Stats) IncrementSkipped()       { atomic.AddUint64(&s.BookingsSkipped, 1) }
func (s *Stats) IncrementErrored()       { atomic.AddUint64(&s.BookingsErrored, 1) }
func (s *Stats) AddOptionsGenerated(n int) {
	atomic.AddUint64(&s.OptionsGenerated, uint64(n))
}

// UpdateLastRunTime stamps the completion of a run.
func (s *Stats) UpdateLastRunTime() {
	s.lastRunAt.Store(time.Now().Unix())
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"runs_completed":    atomic.LoadUint64(&s.RunsCompleted),
		"bookings_scanned":  atomic.LoadUint64(&s.BookingsScanned),
		"conflicts_found":   atomic.LoadUint64(&s.ConflictsFound),
		"bookings_cleared":  atomic.LoadUint64(&s.BookingsCleared),
		"bookings_skipped":  atomic.LoadUint64(&s.BookingsSkipped),
		"bookings_errored":  atomic.LoadUint64(&s.BookingsErrored),
		"options_generated": atomic.LoadUint64(&s.OptionsGenerated),
	}
}

// Uptime returns how long the process has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(time.Unix(s.startedAt.Load(), 0))
}
