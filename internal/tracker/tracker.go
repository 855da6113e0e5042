// Package tracker is the interactive entry point for clock-in, clock-out and project switches.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"timesync-agent/internal/actionlog"
	"timesync-agent/internal/model"
	"timesync-agent/internal/resolver"
	"timesync-agent/internal/syncer"
)

// ErrInvalidInput is returned when a request cannot become a time action.
var ErrInvalidInput = errors.New("invalid input")

// Status tells the caller where an interactive action ended up.
type Status string

const (
	// StatusSynced means the backend accepted the action.
	StatusSynced Status = "synced"
	// StatusSavedOffline means the device is offline and the action waits in the local log.
	StatusSavedOffline Status = "saved_offline"
	// StatusQueued means an online sync attempt did not complete; the action stays queued.
	StatusQueued Status = "queued"
)

// Syncer runs sync passes.
type Syncer interface {
	SyncQueue(ctx context.Context) syncer.Result
	Syncing() bool
}

// Connectivity reports whether the backend is believed reachable.
type Connectivity interface {
	Online() bool
}

// SessionView exposes the last server-confirmed status.
type SessionView interface {
	Current() model.ActiveTimeStatus
}

// StartInput is a clock-in request.
type StartInput struct {
	ProjectID   string
	SegmentType model.SegmentType
	Description string
	Location    *model.Location
	Timestamp   time.Time
}

// StopInput is a clock-out request.
type StopInput struct {
	Notes     string
	Location  *model.Location
	Timestamp time.Time
}

// SwitchInput moves the open segment to another project.
type SwitchInput struct {
	ProjectID   string
	SegmentType model.SegmentType
	Description string
	Notes       string
	Location    *model.Location
	Timestamp   time.Time
}

// Outcome is the result of an interactive action. Err is set when the action was
// recorded but could not be synced or durably saved.
type Outcome struct {
	Action model.TimeAction `json:"action"`
	Status Status           `json:"status"`
	Err    error            `json:"-"`
}

// StatusView is the combined local and server state shown to the user.
type StatusView struct {
	Online    bool                   `json:"online"`
	Syncing   bool                   `json:"syncing"`
	Server    model.ActiveTimeStatus `json:"server"`
	LocalOpen *model.TimeAction      `json:"localOpen,omitempty"`
	Stats     model.QueueStats       `json:"stats"`
}

// Service records actions in the local log and syncs them when online.
type Service struct {
	log      *actionlog.Log
	syncer   Syncer
	online   Connectivity
	session  SessionView
	resolver *resolver.Resolver
}

// NewService creates a tracker service.
func NewService(l *actionlog.Log, s Syncer, online Connectivity, session SessionView, r *resolver.Resolver) *Service {
	if r == nil {
		r = resolver.Default()
	}
	return &Service{log: l, syncer: s, online: online, session: session, resolver: r}
}

// Start clocks in on a project.
func (s *Service) Start(ctx context.Context, in StartInput) (Outcome, error) {
	segmentType, err := validate(in.ProjectID, in.SegmentType)
	if err != nil {
		return Outcome{}, err
	}
	return s.record(ctx, model.TimeAction{
		Type:        model.ActionStart,
		Timestamp:   in.Timestamp,
		ProjectID:   strings.TrimSpace(in.ProjectID),
		SegmentType: segmentType,
		Description: in.Description,
		Location:    in.Location,
	}), nil
}

// Stop clocks out of the open segment.
func (s *Service) Stop(ctx context.Context, in StopInput) (Outcome, error) {
	action := model.TimeAction{
		Type:        model.ActionStop,
		Timestamp:   in.Timestamp,
		SegmentType: model.SegmentWork,
		Notes:       in.Notes,
		Location:    in.Location,
	}
	if open := s.localOpen(); open != nil {
		action.LocalID = open.LocalID
		action.SegmentType = open.SegmentType
	}
	return s.record(ctx, action), nil
}

// Switch closes the open segment and opens one on another project.
func (s *Service) Switch(ctx context.Context, in SwitchInput) (Outcome, error) {
	segmentType, err := validate(in.ProjectID, in.SegmentType)
	if err != nil {
		return Outcome{}, err
	}
	action := model.TimeAction{
		Type:        model.ActionSwitch,
		Timestamp:   in.Timestamp,
		ProjectID:   strings.TrimSpace(in.ProjectID),
		SegmentType: segmentType,
		Description: in.Description,
		Notes:       in.Notes,
		Location:    in.Location,
	}
	if open := s.localOpen(); open != nil {
		action.LocalID = open.LocalID
	}
	return s.record(ctx, action), nil
}

// Status returns connectivity, the server's confirmed status and the local provisional view.
func (s *Service) Status() StatusView {
	view := StatusView{
		Online:    s.online == nil || s.online.Online(),
		LocalOpen: s.localOpen(),
		Stats:     s.log.Stats(),
	}
	if s.syncer != nil {
		view.Syncing = s.syncer.Syncing()
	}
	if s.session != nil {
		view.Server = s.session.Current()
	}
	return view
}

// Pending returns the queued actions, either in log order or as the resolver repairs them.
func (s *Service) Pending(resolved bool) []model.TimeAction {
	actions := s.log.LoadAll()
	if resolved {
		return s.resolver.Resolve(actions)
	}
	return actions
}

func (s *Service) localOpen() *model.TimeAction {
	return resolver.OpenAction(s.resolver.Resolve(s.log.LoadAll()))
}

func (s *Service) record(ctx context.Context, action model.TimeAction) Outcome {
	appended, err := s.log.Append(ctx, action)
	out := Outcome{Action: appended, Status: StatusSavedOffline, Err: err}

	if s.online != nil && !s.online.Online() {
		log.Printf("Offline: %s %s saved locally", appended.Type, appended.ID)
		return out
	}
	if s.syncer == nil {
		out.Status = StatusQueued
		return out
	}

	res := s.syncer.SyncQueue(ctx)
	out.Status = StatusQueued
	if syncErr, failed := res.Errors[appended.ID]; failed {
		out.Err = fmt.Errorf("sync %s: %w", appended.Type, syncErr)
		return out
	}
	if !res.Skipped && !s.inLog(appended.ID) {
		out.Status = StatusSynced
	}
	return out
}

func (s *Service) inLog(id string) bool {
	for _, a := range s.log.LoadAll() {
		if a.ID == id {
			return true
		}
	}
	return false
}

func validate(projectID string, segmentType model.SegmentType) (model.SegmentType, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if segmentType == "" {
		return model.SegmentWork, nil
	}
	if !segmentType.Valid() {
		return "", fmt.Errorf("%w: unknown segment type %q", ErrInvalidInput, segmentType)
	}
	return segmentType, nil
}
