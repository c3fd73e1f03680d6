package perception

import (
	"sync"
	"time"

	"github.com/banshee-data/objdetect/internal/monitoring"
)

// Stats counts ingestion work between periodic reports.
type Stats struct {
	mu          sync.Mutex
	frames      int64
	emptyFrames int64
	points      int64
	classes     int64
	failures    int64
	lastReset   time.Time
}

// StatsSnapshot is the counter state returned by GetAndReset.
type StatsSnapshot struct {
	Frames      int64
	EmptyFrames int64
	Points      int64
	Classes     int64
	Failures    int64
	Duration    time.Duration
}

// NewStats creates zeroed counters starting at now.
func NewStats(now time.Time) *Stats {
	return &Stats{lastReset: now}
}

// AddFrame records one processed frame.
func (s *Stats) AddFrame(points, classes int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if points == 0 {
		s.emptyFrames++
	}
	s.points += int64(points)
	s.classes += int64(classes)
	if failed {
		s.failures++
	}
}

// GetAndReset returns the counters accumulated since the last reset.
func (s *Stats) GetAndReset(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Frames:      s.frames,
		EmptyFrames: s.emptyFrames,
		Points:      s.points,
		Classes:     s.classes,
		Failures:    s.failures,
		Duration:    now.Sub(s.lastReset),
	}
	s.frames, s.emptyFrames, s.points, s.classes, s.failures = 0, 0, 0, 0, 0
	s.lastReset = now
	return snap
}

// LogStats reports and resets the counters. Idle intervals are not logged.
func (s *Stats) LogStats(now time.Time) {
	snap := s.GetAndReset(now)
	if snap.Frames == 0 {
		return
	}
	secs := snap.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	monitoring.Logf("Ingest stats (/sec): %.1f frames, %.0f points, %.1f classes/frame, %d empty, %d write failures",
		float64(snap.Frames)/secs, float64(snap.Points)/secs,
		float64(snap.Classes)/float64(snap.Frames), snap.EmptyFrames, snap.Failures)
}
