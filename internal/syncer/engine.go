// Package syncer replays the local action log against the backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"timesync-agent/internal/actionlog"
	"timesync-agent/internal/model"
	"timesync-agent/internal/notification"
	"timesync-agent/internal/remote"
)

// ErrUnsupportedAction is returned for an action type the backend has no endpoint for.
var ErrUnsupportedAction = errors.New("unsupported action type")

// Connectivity reports whether the backend is believed reachable.
type Connectivity interface {
	Online() bool
}

// Refresher re-reads the server's view of the open segment.
type Refresher interface {
	FetchActiveTime(ctx context.Context) model.ActiveTimeStatus
}

// Deps are the collaborators of an Engine. Notifier and Session may be nil.
type Deps struct {
	Log      *actionlog.Log
	API      remote.API
	Online   Connectivity
	Notifier notification.Notifier
	Session  Refresher
}

// Result summarises one sync pass.
type Result struct {
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Abandoned int  `json:"abandoned"`
	Deferred  int  `json:"deferred"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped"`

	// Errors holds the failure of each action that did not sync, by action id.
	Errors map[string]error `json:"-"`
}

// Engine drains the action log. At most one pass runs at a time.
type Engine struct {
	log        *actionlog.Log
	api        remote.API
	online     Connectivity
	notifier   notification.Notifier
	session    Refresher
	employeeID string
	now        func() time.Time

	syncing atomic.Bool

	mu sync.Mutex
	// segments maps a start's localId to the server segment it opened.
	segments map[string]string
}

// NewEngine creates a sync engine. Periodic retries are driven by connectivity.Monitor.
func NewEngine(employeeID string, deps Deps) *Engine {
	return &Engine{
		log:        deps.Log,
		api:        deps.API,
		online:     deps.Online,
		notifier:   deps.Notifier,
		session:    deps.Session,
		employeeID: employeeID,
		now:        func() time.Time { return time.Now().UTC() },
		segments:   make(map[string]string),
	}
}

// Syncing reports whether a pass is in flight.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// HasPending reports whether any action is still below the attempt ceiling.
func (e *Engine) HasPending() bool {
	return e.log.HasRetryable()
}

type outcome struct {
	synced   bool
	attempts int
	at       time.Time
}

// SyncQueue runs one pass over the log in log order. It is a no-op when offline,
// when another pass is running or when the log is empty. Once an action is left
// unsynced, later actions with the same localId are deferred to a later pass
// without spending an attempt.
func (e *Engine) SyncQueue(ctx context.Context) Result {
	if e.online != nil && !e.online.Online() {
		return Result{Skipped: true, Remaining: e.log.Len()}
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{Skipped: true, Remaining: e.log.Len()}
	}
	defer e.syncing.Store(false)

	snapshot := e.log.LoadAll()
	if len(snapshot) == 0 {
		return Result{}
	}

	maxAttempts := e.log.MaxAttempts()
	outcomes := make(map[string]outcome, len(snapshot))
	// blocked holds the localIds of actions still unsynced in this pass.
	blocked := make(map[string]bool)
	var res Result

	for _, action := range snapshot {
		if action.SyncAttempts >= maxAttempts {
			block(blocked, action.LocalID)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if blocked[action.LocalID] {
			res.Deferred++
			log.Printf("Deferring %s %s until earlier actions for %s sync", action.Type, action.ID, action.LocalID)
			continue
		}

		err := e.apply(ctx, action)
		if err == nil {
			outcomes[action.ID] = outcome{synced: true}
			res.Synced++
			continue
		}

		if res.Errors == nil {
			res.Errors = make(map[string]error)
		}
		res.Errors[action.ID] = err
		block(blocked, action.LocalID)

		attempts := action.SyncAttempts + 1
		if isPermanent(err) {
			attempts = maxAttempts
		}
		outcomes[action.ID] = outcome{attempts: attempts, at: e.now()}
		if attempts >= maxAttempts {
			res.Abandoned++
			log.Printf("Giving up on %s %s after %d attempts: %v", action.Type, action.ID, attempts, err)
		} else {
			res.Failed++
			log.Printf("Sync of %s %s failed (attempt %d/%d): %v", action.Type, action.ID, attempts, maxAttempts, err)
		}
	}

	if err := e.log.Update(ctx, func(current []model.TimeAction) []model.TimeAction {
		return mergeOutcomes(current, outcomes)
	}); err != nil {
		log.Printf("Error saving sync results: %v", err)
	}
	res.Remaining = e.log.Len()

	if res.Synced > 0 {
		log.Printf("Sync pass finished: %d synced, %d failed, %d abandoned, %d deferred, %d remaining",
			res.Synced, res.Failed, res.Abandoned, res.Deferred, res.Remaining)
		if e.notifier != nil {
			e.notifier.Notify(ctx, notification.Notice{
				Title: "Time tracking",
				Body:  fmt.Sprintf("%d synced", res.Synced),
			})
		}
		if e.session != nil {
			e.session.FetchActiveTime(ctx)
		}
	}
	return res
}

// RetryFailed resets the attempt count of every abandoned action so the next pass retries it.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	maxAttempts := e.log.MaxAttempts()
	reset := 0
	err := e.log.Update(ctx, func(current []model.TimeAction) []model.TimeAction {
		for i := range current {
			if current[i].SyncAttempts >= maxAttempts {
				current[i].SyncAttempts = 0
				current[i].LastSyncAttempt = nil
				reset++
			}
		}
		return current
	})
	if reset > 0 {
		log.Printf("Reset %d abandoned actions for retry", reset)
	}
	return reset, err
}

// mergeOutcomes applies pass results to the current log contents. Actions the pass
// never saw, such as ones appended while it ran, are kept untouched.
func mergeOutcomes(current []model.TimeAction, outcomes map[string]outcome) []model.TimeAction {
	kept := make([]model.TimeAction, 0, len(current))
	for _, a := range current {
		o, seen := outcomes[a.ID]
		if !seen {
			kept = append(kept, a)
			continue
		}
		if o.synced {
			continue
		}
		at := o.at
		a.SyncAttempts = o.attempts
		a.LastSyncAttempt = &at
		kept = append(kept, a)
	}
	return kept
}

func block(blocked map[string]bool, localID string) {
	if localID != "" {
		blocked[localID] = true
	}
}

func isPermanent(err error) bool {
	return remote.IsPermanent(err) || errors.Is(err, ErrUnsupportedAction)
}

func (e *Engine) apply(ctx context.Context, a model.TimeAction) error {
	switch a.Type {
	case model.ActionStart:
		return e.start(ctx, a)
	case model.ActionStop:
		return e.stop(ctx, a)
	case model.ActionSwitch:
		return e.switchSegment(ctx, a)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, a.Type)
	}
}

func (e *Engine) start(ctx context.Context, a model.TimeAction) error {
	req := remote.StartRequest{
		EmployeeID:  e.employeeID,
		ProjectID:   a.ProjectID,
		SegmentType: a.SegmentType,
		Description: optional(a.Description),
		StartedAt:   a.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	req.LocationLat, req.LocationLng = coordinates(a.Location)

	seg, err := e.api.StartTimeSegment(ctx, req)
	if remote.IsAlreadyActive(err) {
		id, lookupErr := e.activeSegmentID(ctx)
		switch {
		case lookupErr != nil:
			log.Printf("Start %s already applied on the server; open segment unknown: %v", a.ID, lookupErr)
		case id == "":
			log.Printf("Start %s already applied on the server; no open segment reported", a.ID)
		default:
			log.Printf("Start %s already applied on the server; adopting open segment %s for %s", a.ID, id, a.LocalID)
			e.link(a.LocalID, id)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if seg != nil && seg.ID != "" {
		e.link(a.LocalID, seg.ID)
	}
	return nil
}

func (e *Engine) stop(ctx context.Context, a model.TimeAction) error {
	segmentID, err := e.segmentFor(ctx, a.LocalID)
	if err != nil {
		return err
	}
	if segmentID == "" {
		log.Printf("No open segment for stop %s; treating as applied", a.ID)
		return nil
	}

	req := remote.StopRequest{
		SegmentID: segmentID,
		Notes:     optional(a.Notes),
		EndedAt:   a.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	req.LocationLat, req.LocationLng = coordinates(a.Location)

	if _, err := e.api.StopTimeSegment(ctx, req); err != nil {
		return err
	}
	e.unlink(a.LocalID)
	return nil
}

func (e *Engine) switchSegment(ctx context.Context, a model.TimeAction) error {
	segmentID, err := e.segmentFor(ctx, a.LocalID)
	if err != nil {
		return err
	}
	if segmentID == "" {
		log.Printf("No open segment for switch %s; starting a new one", a.ID)
		return e.start(ctx, a)
	}

	req := remote.SwitchRequest{
		FromSegmentID: segmentID,
		ProjectID:     a.ProjectID,
		SegmentType:   a.SegmentType,
		Description:   optional(a.Description),
		Notes:         optional(a.Notes),
		SwitchedAt:    a.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	req.LocationLat, req.LocationLng = coordinates(a.Location)

	res, err := e.api.SwitchTimeSegment(ctx, req)
	if err != nil {
		return err
	}
	e.unlink(a.LocalID)
	if res != nil && res.Started != nil && res.Started.ID != "" {
		e.link(a.LocalID, res.Started.ID)
	}
	return nil
}

// segmentFor resolves the server segment a stop or switch closes. An empty id
// means the server has nothing open.
func (e *Engine) segmentFor(ctx context.Context, localID string) (string, error) {
	e.mu.Lock()
	id, ok := e.segments[localID]
	e.mu.Unlock()
	if ok {
		return id, nil
	}
	return e.activeSegmentID(ctx)
}

func (e *Engine) activeSegmentID(ctx context.Context) (string, error) {
	status, err := e.api.GetActiveTimeSegment(ctx, e.employeeID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve open segment: %w", err)
	}
	if status == nil || !status.Active || status.Segment == nil {
		return "", nil
	}
	return status.Segment.ID, nil
}

func (e *Engine) link(localID, segmentID string) {
	if localID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.segments[localID] = segmentID
}

func (e *Engine) unlink(localID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.segments, localID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func coordinates(loc *model.Location) (*float64, *float64) {
	if loc == nil {
		return nil, nil
	}
	lat, lng := loc.Lat, loc.Lng
	return &lat, &lng
}
