package health

import (
	"context"
	"sync"
	"time"

	"paygateway/src/domain"

	"go.uber.org/zap"
)

type prober interface {
	ProbeAll(ctx context.Context) []domain.ProcessorHealth
}

// Cache memoizes the aggregate probe result behind a TTL so a burst of
// requests shares one round of probes. The snapshot is replaced wholesale
// under the lock; readers see either the old or the new one, never a mix.
type Cache struct {
	prober prober
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *domain.HealthSnapshot
}

func NewCache(p prober, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{prober: p, ttl: ttl, logger: logger}
}

// Snapshot returns the cached snapshot while it is fresh, probing all
// processors and replacing it otherwise.
func (c *Cache) Snapshot(ctx context.Context) domain.HealthSnapshot {
	c.mu.RLock()
	cached := c.snapshot
	c.mu.RUnlock()

	if cached != nil && cached.Age() < c.ttl {
		return *cached
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have refreshed while we waited for the lock.
	if c.snapshot != nil && c.snapshot.Age() < c.ttl {
		return *c.snapshot
	}

	results := c.prober.ProbeAll(ctx)
	fresh := &domain.HealthSnapshot{
		Processors: results,
		CachedAt:   time.Now().UTC(),
	}
	c.snapshot = fresh
	c.logger.Debug("health snapshot refreshed", zap.Int("processors", len(results)))
	return *fresh
}

// Invalidate expires the cached snapshot so the next read re-probes. Used
// after repeated execution failures, when the cached view is suspect.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}
