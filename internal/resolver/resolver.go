// Package resolver repairs a raw set of queued time actions into a
// deduplicated, time-ordered sequence that never leaves two segments open.
package resolver

import (
	"sort"
	"time"

	"timesync-agent/internal/model"
)

// RepairPolicy sets where synthesized stops are placed. The offsets are a
// heuristic, not a causal proof: the real end of the earlier segment is unknown.
type RepairPolicy struct {
	// StopBeforeStart is subtracted from a start that follows another start.
	StopBeforeStart time.Duration
	// StopBeforeSwitch is subtracted from a switch that closes an open start.
	StopBeforeSwitch time.Duration
}

// DefaultRepairPolicy places implicit stops 1s before a start and 500ms before a switch.
var DefaultRepairPolicy = RepairPolicy{
	StopBeforeStart:  time.Second,
	StopBeforeSwitch: 500 * time.Millisecond,
}

// Resolver applies a RepairPolicy.
type Resolver struct {
	policy RepairPolicy
}

// New creates a resolver with the given policy.
func New(policy RepairPolicy) *Resolver {
	return &Resolver{policy: policy}
}

// Default returns a resolver using DefaultRepairPolicy.
func Default() *Resolver {
	return New(DefaultRepairPolicy)
}

type lastAction int

const (
	lastNone lastAction = iota
	lastStart
	lastStop
)

// Resolve sorts actions by timestamp, drops duplicates sharing (timestamp, type, projectId),
// discards stops with nothing open and inserts a stop before any start or switch that
// would otherwise open a second segment. The input is not modified.
func (r *Resolver) Resolve(actions []model.TimeAction) []model.TimeAction {
	sorted := sortByTimestamp(actions)
	deduped := dedupe(sorted)

	validated := make([]model.TimeAction, 0, len(deduped)+1)
	last := lastNone

	for _, action := range deduped {
		switch action.Type {
		case model.ActionStart:
			if last == lastStart {
				validated = append(validated, implicitStop(action, r.policy.StopBeforeStart))
			}
			validated = append(validated, action)
			last = lastStart
		case model.ActionStop:
			// A stop with no open start cannot correspond to any segment.
			if last == lastStart {
				validated = append(validated, action)
				last = lastStop
			}
		case model.ActionSwitch:
			if last == lastStart {
				validated = append(validated, implicitStop(action, r.policy.StopBeforeSwitch))
			}
			validated = append(validated, action)
			last = lastStart
		}
	}
	return validated
}

// OpenAction returns the action that leaves a segment open at the end of a resolved
// sequence, or nil when the sequence ends closed.
func OpenAction(resolved []model.TimeAction) *model.TimeAction {
	for i := len(resolved) - 1; i >= 0; i-- {
		switch resolved[i].Type {
		case model.ActionStop:
			return nil
		case model.ActionStart, model.ActionSwitch:
			open := resolved[i]
			return &open
		}
	}
	return nil
}

func implicitStop(next model.TimeAction, offset time.Duration) model.TimeAction {
	stop := next
	stop.ID = "implicit_stop_" + next.ID
	stop.Type = model.ActionStop
	stop.Timestamp = next.Timestamp.Add(-offset)
	stop.ProjectID = ""
	stop.Description = ""
	stop.Synthesized = true
	return stop
}

type dedupeKey struct {
	timestamp int64
	actionTyp model.ActionType
	projectID string
}

func dedupe(sorted []model.TimeAction) []model.TimeAction {
	seen := make(map[dedupeKey]struct{}, len(sorted))
	out := make([]model.TimeAction, 0, len(sorted))
	for _, a := range sorted {
		key := dedupeKey{timestamp: a.Timestamp.UnixNano(), actionTyp: a.Type, projectID: a.ProjectID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func sortByTimestamp(actions []model.TimeAction) []model.TimeAction {
	sorted := make([]model.TimeAction, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
