// Package connectivity turns online/offline signals into sync passes.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"

	"timesync-agent/config"
	"timesync-agent/internal/syncer"
)

const probeTimeout = 10 * time.Second

// Prober checks whether the backend answers.
type Prober interface {
	Ping(ctx context.Context) error
}

// Syncer is the pass runner the monitor drives.
type Syncer interface {
	SyncQueue(ctx context.Context) syncer.Result
	HasPending() bool
}

// Monitor tracks connectivity and triggers sync passes.
type Monitor struct {
	mu       sync.Mutex
	online   bool
	debounce time.Duration
	interval time.Duration
	probe    bool
	prober   Prober
	syncer   Syncer
	pending  *time.Timer
	ctx      context.Context
}

// New creates a monitor starting in the given state. prober may be nil.
func New(cfg *config.SyncConfig, initial bool, prober Prober) *Monitor {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		online:   initial,
		debounce: debounce,
		interval: interval,
		probe:    cfg.ProbeConnectivity && prober != nil,
		prober:   prober,
		ctx:      context.Background(),
	}
}

// Attach sets the syncer triggered by the monitor.
func (m *Monitor) Attach(s Syncer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncer = s
}

// Online reports the current connectivity belief.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform signal. Going online schedules one pass after the
// debounce window; repeated signals inside the window coalesce.
func (m *Monitor) SetOnline(online bool) {
	m.set(online)
}

func (m *Monitor) set(online bool) (cameOnline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if online == m.online {
		return false
	}
	m.online = online

	if !online {
		log.Println("Connectivity lost; queueing actions locally")
		if m.pending != nil {
			m.pending.Stop()
			m.pending = nil
		}
		return false
	}

	log.Printf("Connectivity restored; syncing in %s", m.debounce)
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.debounce, m.fire)
	return true
}

func (m *Monitor) fire() {
	m.mu.Lock()
	m.pending = nil
	online, s, ctx := m.online, m.syncer, m.ctx
	m.mu.Unlock()

	if !online || s == nil || ctx.Err() != nil {
		return
	}
	s.SyncQueue(ctx)
}

// Run ticks on the sync interval: it probes the backend when configured and
// triggers a pass while online with retryable actions pending.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	log.Println("Starting connectivity monitor...")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.pending != nil {
				m.pending.Stop()
				m.pending = nil
			}
			m.mu.Unlock()
			log.Println("Connectivity monitor shutting down.")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if m.probe {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := m.prober.Ping(probeCtx)
		cancel()
		if err != nil {
			log.Printf("Connectivity probe failed: %v", err)
		}
		if m.set(err == nil) {
			// The debounced trigger covers this transition.
			return
		}
	}

	m.mu.Lock()
	online, s := m.online, m.syncer
	m.mu.Unlock()

	if online && s != nil && s.HasPending() {
		s.SyncQueue(ctx)
	}
}
