package model

import "time"

// ActionType is the operation a queued action requests.
type ActionType string

const (
	ActionStart  ActionType = "start"
	ActionStop   ActionType = "stop"
	ActionSwitch ActionType = "switch"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionStart, ActionStop, ActionSwitch:
		return true
	}
	return false
}

// SegmentType categorises tracked time.
type SegmentType string

const (
	SegmentWork  SegmentType = "work"
	SegmentBreak SegmentType = "break"
	SegmentDrive SegmentType = "drive"
)

// Valid reports whether t is one of the known segment types.
func (t SegmentType) Valid() bool {
	switch t {
	case SegmentWork, SegmentBreak, SegmentDrive:
		return true
	}
	return false
}

// Location is the position captured when an action was requested.
type Location struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// TimeAction is a locally queued start/stop/switch intent awaiting remote confirmation.
type TimeAction struct {
	ID              string      `json:"id"`
	Type            ActionType  `json:"type"`
	Timestamp       time.Time   `json:"timestamp"`
	ProjectID       string      `json:"projectId,omitempty"`
	SegmentType     SegmentType `json:"segmentType"`
	Description     string      `json:"description,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Location        *Location   `json:"location,omitempty"`
	DeviceID        string      `json:"deviceId"`
	LocalID         string      `json:"localId"`
	SyncAttempts    int         `json:"syncAttempts"`
	LastSyncAttempt *time.Time  `json:"lastSyncAttempt,omitempty"`

	// Synthesized marks stops created by the conflict resolver. Never persisted.
	Synthesized bool `json:"synthesized,omitempty"`
}

// QueueStats summarises the local action log for display.
type QueueStats struct {
	TotalEntries  int        `json:"totalEntries"`
	PendingSync   int        `json:"pendingSync"`
	Failed        int        `json:"failed"`
	OldestPending *time.Time `json:"oldestPending,omitempty"`
}
