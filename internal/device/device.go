package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"timesync-agent/internal/store"
)

// Provider returns the stable identifier of this device, generating it once.
type Provider struct {
	mu       sync.Mutex
	store    store.Store
	override string
	cached   string
	now      func() time.Time
}

// NewProvider creates a provider backed by s. A non-empty override is used as-is.
func NewProvider(s store.Store, override string) *Provider {
	return &Provider{
		store:    s,
		override: strings.TrimSpace(override),
		now:      time.Now,
	}
}

// DeviceID returns the persisted id, generating and storing "device_<millis>_<suffix>" on first use.
// If the id cannot be persisted it is still returned and reused for the life of the process.
func (p *Provider) DeviceID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.override != "" {
		return p.override, nil
	}
	if p.cached != "" {
		return p.cached, nil
	}

	id, err := p.store.Get(ctx, store.KeyDeviceID)
	if err == nil && id != "" {
		p.cached = id
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = generate(p.now())
	p.cached = id
	if err := p.store.Put(ctx, store.KeyDeviceID, id); err != nil {
		log.Printf("Warning: could not persist device id %s: %v", id, err)
		return id, fmt.Errorf("failed to persist device id: %w", err)
	}
	log.Printf("Generated device id %s", id)
	return id, nil
}

func generate(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("device_%d_%s", now.UnixMilli(), suffix)
}
