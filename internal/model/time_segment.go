package model

import "time"

// SegmentStatus is the server-side lifecycle state of a segment.
type SegmentStatus string

const (
	StatusActive    SegmentStatus = "active"
	StatusPaused    SegmentStatus = "paused"
	StatusCompleted SegmentStatus = "completed"
)

// TimeSegment is the server-authoritative span of tracked time.
type TimeSegment struct {
	ID                      string        `json:"id"`
	EmployeeID              string        `json:"employee_id"`
	ProjectID               *string       `json:"project_id"`
	StartedAt               time.Time     `json:"started_at"`
	EndedAt                 *time.Time    `json:"ended_at"`
	DurationMinutesComputed *int          `json:"duration_minutes_computed"`
	SegmentType             SegmentType   `json:"segment_type"`
	Status                  SegmentStatus `json:"status"`
	Description             *string       `json:"description"`
	Notes                   *string       `json:"notes"`
}

// Open reports whether the segment is still running.
func (s TimeSegment) Open() bool {
	return s.EndedAt == nil
}

// ActiveSegment is the identifying view of the currently open segment.
type ActiveSegment struct {
	ID                     string    `json:"id"`
	ProjectID              *string   `json:"project_id"`
	ProjectName            *string   `json:"project_name"`
	CustomerName           *string   `json:"customer_name"`
	SegmentType            string    `json:"segment_type"`
	StartedAt              time.Time `json:"started_at"`
	CurrentDurationMinutes int       `json:"current_duration_minutes"`
	Description            *string   `json:"description"`
}

// ActiveTimeStatus is the server's answer to "is a segment open right now".
type ActiveTimeStatus struct {
	Active  bool           `json:"active"`
	Segment *ActiveSegment `json:"segment,omitempty"`
}
