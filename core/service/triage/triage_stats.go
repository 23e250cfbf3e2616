package triage

import "sync/atomic"

// Stats holds pipeline counters. All fields are updated atomically and
// read via Snapshot.
type Stats struct {
	processed     atomic.Int64
	duplicates    atomic.Int64
	autoResponded atomic.Int64
	drafted       atomic.Int64
	escalated     atomic.Int64
	manualReviews atomic.Int64
	fallbacks     atomic.Int64
	humanActions  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the pipeline counters.
type StatsSnapshot struct {
	Processed     int64 `json:"processed"`
	Duplicates    int64 `json:"duplicates"`
	AutoResponded int64 `json:"auto_responded"`
	Drafted       int64 `json:"drafted"`
	Escalated     int64 `json:"escalated"`
	ManualReviews int64 `json:"manual_reviews"`
	Fallbacks     int64 `json:"fallback_classifications"`
	HumanActions  int64 `json:"human_actions"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:     s.processed.Load(),
		Duplicates:    s.duplicates.Load(),
		AutoResponded: s.autoResponded.Load(),
		Drafted:       s.drafted.Load(),
		Escalated:     s.escalated.Load(),
		ManualReviews: s.manualReviews.Load(),
		Fallbacks:     s.fallbacks.Load(),
		HumanActions:  s.humanActions.Load(),
	}
}
