// Package session keeps the local view of the open segment aligned with the server.
package session

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"timesync-agent/config"
	"timesync-agent/internal/model"
)

const statusKey = "active_time_status"

// ActiveFetcher reads the server's open segment.
type ActiveFetcher interface {
	GetActiveTimeSegment(ctx context.Context, employeeID string) (*model.ActiveTimeStatus, error)
}

// Reconciler holds the last server-confirmed ActiveTimeStatus. The status expires
// after two poll intervals without a successful fetch.
type Reconciler struct {
	api        ActiveFetcher
	employeeID string
	poll       time.Duration
	cache      *cache.Cache
}

// New creates a reconciler polling at cfg.Poll.
func New(cfg *config.SessionConfig, employeeID string, api ActiveFetcher) *Reconciler {
	poll := cfg.Poll
	if poll <= 0 {
		poll = 30 * time.Second
	}
	ttl := 2 * poll
	return &Reconciler{
		api:        api,
		employeeID: employeeID,
		poll:       poll,
		cache:      cache.New(ttl, ttl),
	}
}

// FetchActiveTime replaces the local status with the server's. Any failure
// leaves the status inactive.
func (r *Reconciler) FetchActiveTime(ctx context.Context) model.ActiveTimeStatus {
	status, err := r.api.GetActiveTimeSegment(ctx, r.employeeID)
	if err != nil {
		log.Printf("Error fetching active time segment: %v", err)
		r.cache.Delete(statusKey)
		return model.ActiveTimeStatus{Active: false}
	}
	if status == nil {
		status = &model.ActiveTimeStatus{}
	}
	r.cache.SetDefault(statusKey, *status)
	return *status
}

// Current returns the last confirmed status, or inactive when none is fresh.
func (r *Reconciler) Current() model.ActiveTimeStatus {
	if v, ok := r.cache.Get(statusKey); ok {
		return v.(model.ActiveTimeStatus)
	}
	return model.ActiveTimeStatus{Active: false}
}

// Run fetches immediately and then on every poll interval.
func (r *Reconciler) Run(ctx context.Context) {
	log.Println("Starting active-session reconciler...")
	r.FetchActiveTime(ctx)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Active-session reconciler shutting down.")
			return
		case <-ticker.C:
			r.FetchActiveTime(ctx)
		}
	}
}
