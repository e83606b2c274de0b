package logic

import "time"

// Stats accumulates counters across sessions and schedules heartbeats.
type Stats struct {
	startTime     time.Time
	counts        EventCounts
	lastHeartbeat time.Time
}

// NewStats creates a Stats. The startTime is used for calculating uptime in
// heartbeat events.
func NewStats(startTime time.Time) *Stats {
	return &Stats{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// RecordSession counts a newly started session and returns its number (1-based).
func (s *Stats) RecordSession() int {
	s.counts.Sessions++
	return s.counts.Sessions
}

// RecordPress counts a confirmed press and whether it was delivered.
func (s *Stats) RecordPress(delivered bool) {
	s.counts.Presses++
	if delivered {
		s.counts.Notified++
	} else {
		s.counts.Suppressed++
	}
}

// RecordSampleFailure counts a failed ADC conversion.
func (s *Stats) RecordSampleFailure() {
	s.counts.SampleFailures++
}

// RecordServiceError counts a soft error from attribute servicing.
func (s *Stats) RecordServiceError() {
	s.counts.ServiceErrors++
}

// Counts returns a copy of the current counters.
func (s *Stats) Counts() EventCounts {
	return s.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (s *Stats) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}

	s.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Counts:    s.counts,
	}
}
