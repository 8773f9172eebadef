package service

import "time"

// Timings carries the timing milestones of one instance. Durations
// are seconds and stay -1 until the matching phase completed once.
type Timings struct {
	InitTime      time.Time `json:"init_time"`
	StartTime     time.Time `json:"start_time,omitzero"`
	StartDuration float64   `json:"start_duration_seconds"`
	StopTime      time.Time `json:"stop_time,omitzero"`
	StopDuration  float64   `json:"stop_duration_seconds"`
	CleanTime     time.Time `json:"clean_time,omitzero"`
}

// Snapshot is a point-in-time view of one instance for reporting.
type Snapshot struct {
	Type      string  `json:"type"`
	Module    string  `json:"module"`
	Lifecycle Timings `json:"lifecycle"`
	ServiceID string  `json:"service_id"`
	// Nodes holds the identifiers captured right after allocation.
	// They survive Free so a post-mortem can still name the machines.
	Nodes []string `json:"nodes"`
}

// Snapshot captures the live state at call time. It never mutates the
// instance.
func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		Type:   s.cfg.Name,
		Module: s.moduleTag,
		Lifecycle: Timings{
			InitTime:      s.initTime,
			StartTime:     s.startTime,
			StartDuration: seconds(s.startDuration),
			StopTime:      s.stopTime,
			StopDuration:  seconds(s.stopDuration),
			CleanTime:     s.cleanTime,
		},
		ServiceID: s.ID(),
		Nodes:     append([]string(nil), s.formerlyAllocated...),
	}
}

// seconds keeps the unset marker intact, -1 stays -1.
func seconds(d time.Duration) float64 {
	if d < 0 {
		return -1
	}
	return d.Seconds()
}
