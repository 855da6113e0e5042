package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"timesync-agent/internal/model"
	"timesync-agent/internal/store"
	"timesync-agent/internal/syncer"
	"timesync-agent/internal/tracker"
)

// TimeTracker records interactive actions.
type TimeTracker interface {
	Start(ctx context.Context, in tracker.StartInput) (tracker.Outcome, error)
	Stop(ctx context.Context, in tracker.StopInput) (tracker.Outcome, error)
	Switch(ctx context.Context, in tracker.SwitchInput) (tracker.Outcome, error)
	Status() tracker.StatusView
	Pending(resolved bool) []model.TimeAction
}

// QueueRunner runs and resets sync passes.
type QueueRunner interface {
	SyncQueue(ctx context.Context) syncer.Result
	RetryFailed(ctx context.Context) (int, error)
}

// QueueLog is the administrative view of the action log.
type QueueLog interface {
	Stats() model.QueueStats
	Clear(ctx context.Context) error
}

// Connectivity accepts platform online/offline signals.
type Connectivity interface {
	SetOnline(online bool)
	Online() bool
}

// Deps are the collaborators of the API handlers.
type Deps struct {
	Store        store.Store
	Tracker      TimeTracker
	Queue        QueueRunner
	Log          QueueLog
	Connectivity Connectivity
	WebPush      *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	tracker      TimeTracker
	queue        QueueRunner
	log          QueueLog
	connectivity Connectivity
	webpush      *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:        d.Store,
		tracker:      d.Tracker,
		queue:        d.Queue,
		log:          d.Log,
		connectivity: d.Connectivity,
		webpush:      d.WebPush,
	}
}
