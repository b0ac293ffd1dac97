package core

import (
	"sync"

	"netsentry/models"
)

// AggregateCounters are the running totals for the active session. All
// counters are monotonically non-decreasing between resets.
type AggregateCounters struct {
	PacketsCaptured int64 `json:"packets_captured"`
	UrlsDetected    int64 `json:"urls_detected"`
	CriticalCount   int64 `json:"critical_count"`
	HighCount       int64 `json:"high_count"`
	MediumCount     int64 `json:"medium_count"`
}

// Aggregator accumulates per-session statistics. Counter mutation is
// serialized by a mutex so concurrent event delivery never loses updates,
// and a seen-set makes aggregation exactly-once per event uid.
type Aggregator struct {
	mu       sync.Mutex
	counters AggregateCounters
	seen     map[string]struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// OnEvent folds one observed event into the counters. Re-delivery of an
// event uid already counted is a no-op. It reports whether the event was
// counted.
func (a *Aggregator) OnEvent(event *models.ObservedUrlEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[event.EventUID]; dup {
		return false
	}
	a.seen[event.EventUID] = struct{}{}

	a.counters.PacketsCaptured++
	a.counters.UrlsDetected++

	if !event.Suspicious {
		return true
	}
	switch event.ThreatLevel {
	case models.ThreatLevelCritical:
		a.counters.CriticalCount++
	case models.ThreatLevelMedium:
		a.counters.MediumCount++
	default:
		// The binary suspicious flag maps to high when the classifier
		// supplied nothing richer.
		a.counters.HighCount++
	}
	return true
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() AggregateCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

// Reset zeroes the counters and forgets seen event uids. Called only at
// session (re)start.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = AggregateCounters{}
	a.seen = make(map[string]struct{})
}

// Stats converts the counters into the capture stats block persisted with a
// session summary.
func (a *Aggregator) Stats(durationSeconds int64) models.CaptureStats {
	snapshot := a.Snapshot()
	return models.CaptureStats{
		PacketsCaptured:        snapshot.PacketsCaptured,
		CaptureDurationSeconds: durationSeconds,
		UrlsDetected:           snapshot.UrlsDetected,
		CriticalCount:          snapshot.CriticalCount,
		HighCount:              snapshot.HighCount,
		MediumCount:            snapshot.MediumCount,
	}
}
