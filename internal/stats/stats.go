// Package stats aggregates per-platform request counters and a bounded
// recent-error log for the admin surface.
package stats

import (
	"sync"
	"time"

	"mediaresolver/internal/resolver"
)

// recentErrorCap bounds the in-memory error log.
const recentErrorCap = 50

// PlatformStats is the aggregate for one platform.
type PlatformStats struct {
	Requests     int64   `json:"requests"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Platform resolver.Platform `json:"platform"`
	Message  string            `json:"message"`
	At       time.Time         `json:"at"`
}

// Snapshot is the point-in-time view served by the admin API.
type Snapshot struct {
	StartedAt    time.Time                           `json:"started_at"`
	Totals       PlatformStats                       `json:"totals"`
	Platforms    map[resolver.Platform]PlatformStats `json:"platforms"`
	RecentErrors []ErrorEntry                        `json:"recent_errors"`
}

type platformCounters struct {
	requests   int64
	successes  int64
	latencySum time.Duration
}

// Recorder is an in-memory StatsRecorder. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	startedAt time.Time
	clock     resolver.Clock
	platforms map[resolver.Platform]*platformCounters
	// errors is a ring: next points at the slot to overwrite.
	errors []ErrorEntry
	next   int
	filled bool
}

// NewRecorder constructs a Recorder.
func NewRecorder(clock resolver.Clock) *Recorder {
	r := &Recorder{
		clock:     clock,
		platforms: make(map[resolver.Platform]*platformCounters),
		errors:    make([]ErrorEntry, recentErrorCap),
	}
	r.startedAt = clock.Now()
	return r
}

// RecordRequest counts one finished request.
func (r *Recorder) RecordRequest(platform resolver.Platform, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.platforms[platform]
	if c == nil {
		c = &platformCounters{}
		r.platforms[platform] = c
	}
	c.requests++
	if success {
		c.successes++
	}
	c.latencySum += latency
}

// RecordError appends a failure to the recent-error ring.
func (r *Recorder) RecordError(platform resolver.Platform, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[r.next] = ErrorEntry{Platform: platform, Message: message, At: r.clock.Now()}
	r.next++
	if r.next == len(r.errors) {
		r.next = 0
		r.filled = true
	}
}

// Snapshot copies the current aggregates. Recent errors come back newest
// first.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		StartedAt: r.startedAt,
		Platforms: make(map[resolver.Platform]PlatformStats, len(r.platforms)),
	}
	for platform, c := range r.platforms {
		ps := PlatformStats{
			Requests:  c.requests,
			Successes: c.successes,
			Failures:  c.requests - c.successes,
		}
		if c.requests > 0 {
			ps.AvgLatencyMs = float64(c.latencySum.Milliseconds()) / float64(c.requests)
		}
		snap.Platforms[platform] = ps
		snap.Totals.Requests += ps.Requests
		snap.Totals.Successes += ps.Successes
		snap.Totals.Failures += ps.Failures
	}

	count := r.next
	if r.filled {
		count = len(r.errors)
	}
	snap.RecentErrors = make([]ErrorEntry, 0, count)
	for i := 0; i < count; i++ {
		idx := (r.next - 1 - i + len(r.errors)) % len(r.errors)
		snap.RecentErrors = append(snap.RecentErrors, r.errors[idx])
	}
	return snap
}
