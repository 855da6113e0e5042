package actionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"timesync-agent/internal/model"
	"timesync-agent/internal/store"
)

// PersistenceError reports that the in-memory log could not be written durably.
// The in-memory state remains authoritative for the current session.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("action log %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DeviceIdentity supplies the stable id stamped on every appended action.
type DeviceIdentity interface {
	DeviceID(ctx context.Context) (string, error)
}

// Log is the durable on-device queue of pending time actions.
// The whole collection is read-modify-written on every mutation.
type Log struct {
	mu          sync.Mutex
	store       store.Store
	device      DeviceIdentity
	maxAttempts int
	now         func() time.Time

	actions []model.TimeAction
	stats   model.QueueStats
}

// New creates a log over s. maxAttempts is the abandon threshold used for statistics.
func New(s store.Store, device DeviceIdentity, maxAttempts int) *Log {
	return &Log{
		store:       s,
		device:      device,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Load reads the persisted collection into memory. A missing key is an empty log.
func (l *Log) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.store.Get(ctx, store.KeyActionQueue)
	if errors.Is(err, store.ErrNotFound) {
		l.setLocked(nil)
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}

	var actions []model.TimeAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return &PersistenceError{Op: "decode", Err: err}
	}
	l.setLocked(actions)
	log.Printf("Loaded %d queued time actions", len(actions))
	return nil
}

// Append assigns id, deviceId, localId and a zero attempt count, then persists the log.
// The returned action is in the log even when the error is a *PersistenceError.
func (l *Log) Append(ctx context.Context, action model.TimeAction) (model.TimeAction, error) {
	deviceID, err := l.device.DeviceID(ctx)
	if err != nil {
		log.Printf("Warning: device id lookup failed (using %q): %v", deviceID, err)
	}

	now := l.now()
	action.ID = NewID("offline", now)
	action.DeviceID = deviceID
	if action.LocalID == "" {
		action.LocalID = fmt.Sprintf("local_%d", now.UnixMilli())
	}
	action.SyncAttempts = 0
	action.LastSyncAttempt = nil
	action.Synthesized = false
	if action.Timestamp.IsZero() {
		action.Timestamp = now
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := append(cloneActions(l.actions), action)
	l.setLocked(next)
	log.Printf("Added to offline queue: %s %s (local %s)", action.Type, action.ID, action.LocalID)
	return action, l.persistLocked(ctx, "append")
}

// LoadAll returns a copy of the collection in log order. Callers sort by timestamp.
func (l *Log) LoadAll() []model.TimeAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneActions(l.actions)
}

// Replace atomically overwrites the collection.
func (l *Log) Replace(ctx context.Context, actions []model.TimeAction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setLocked(cloneActions(actions))
	return l.persistLocked(ctx, "replace")
}

// Update applies fn to the current collection and persists the result while holding
// the log lock, so actions appended concurrently are never overwritten by a stale copy.
func (l *Log) Update(ctx context.Context, fn func([]model.TimeAction) []model.TimeAction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setLocked(fn(cloneActions(l.actions)))
	return l.persistLocked(ctx, "update")
}

// Clear empties the log. Administrative use only.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setLocked(nil)
	if err := l.store.Delete(ctx, store.KeyActionQueue); err != nil {
		log.Printf("Error clearing offline queue: %v", err)
		return &PersistenceError{Op: "clear", Err: err}
	}
	log.Println("Offline queue cleared")
	return nil
}

// Len returns the number of queued actions.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Stats returns the summary computed at the last mutation.
func (l *Log) Stats() model.QueueStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// HasRetryable reports whether any action is still below the attempt ceiling.
func (l *Log) HasRetryable() bool {
	return l.Stats().PendingSync > 0
}

// MaxAttempts is the abandon threshold.
func (l *Log) MaxAttempts() int {
	return l.maxAttempts
}

func (l *Log) setLocked(actions []model.TimeAction) {
	l.actions = actions
	l.stats = ComputeStats(actions, l.maxAttempts)
}

func (l *Log) persistLocked(ctx context.Context, op string) error {
	data, err := json.Marshal(persistable(l.actions))
	if err != nil {
		log.Printf("Error encoding offline queue: %v", err)
		return &PersistenceError{Op: op, Err: err}
	}
	if err := l.store.Put(ctx, store.KeyActionQueue, string(data)); err != nil {
		log.Printf("Error saving offline queue: %v", err)
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

// ComputeStats summarises actions against the attempt ceiling.
func ComputeStats(actions []model.TimeAction, maxAttempts int) model.QueueStats {
	stats := model.QueueStats{TotalEntries: len(actions)}
	for _, a := range actions {
		if a.SyncAttempts >= maxAttempts {
			stats.Failed++
			continue
		}
		stats.PendingSync++
		if stats.OldestPending == nil || a.Timestamp.Before(*stats.OldestPending) {
			ts := a.Timestamp
			stats.OldestPending = &ts
		}
	}
	return stats
}

// SortByTimestamp returns a copy of actions ordered by timestamp, keeping log order for ties.
func SortByTimestamp(actions []model.TimeAction) []model.TimeAction {
	sorted := cloneActions(actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// NewID returns "<prefix>_<unix millis>_<9 random chars>".
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}

func persistable(actions []model.TimeAction) []model.TimeAction {
	out := make([]model.TimeAction, 0, len(actions))
	for _, a := range actions {
		a.Synthesized = false
		out = append(out, a)
	}
	return out
}

func cloneActions(actions []model.TimeAction) []model.TimeAction {
	if actions == nil {
		return nil
	}
	out := make([]model.TimeAction, len(actions))
	copy(out, actions)
	return out
}
