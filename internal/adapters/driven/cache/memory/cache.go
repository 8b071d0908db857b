// Package memory provides the in-memory read cache reconciled by the cache
// coherence signals of the write path.
package memory

import (
	"sync"

	busmem "github.com/custodia-labs/eventvault/internal/adapters/driven/bus/memory"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
	"github.com/custodia-labs/eventvault/internal/core/services"
)

// Cache holds authoritative post-write record shapes keyed by identifier.
// It is mutated only through bus signals, so an entry never reflects a
// shape the storage layer did not confirm committed. Applying the same
// signal twice is a no-op.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.Record
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]domain.Record)}
}

// Attach subscribes the cache to a bus so update and remove signals are
// applied as they are emitted.
func (c *Cache) Attach(bus *busmem.Bus) {
	bus.Subscribe(driven.EventRecordsUpdated, func(_ string, payload any) {
		if p, ok := payload.(services.UpdatePayload); ok {
			c.ApplyUpdate(p.Records)
		}
	})
	bus.Subscribe(driven.EventRecordsRemoved, func(_ string, payload any) {
		if p, ok := payload.(services.RemovePayload); ok {
			c.ApplyRemove(p.Identifiers)
		}
	})
}

// ApplyUpdate stores the committed shapes.
func (c *Cache) ApplyUpdate(records []domain.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		if rec.Identifier == "" {
			continue
		}
		c.entries[rec.Identifier] = rec
	}
}

// ApplyRemove drops entries for soft- or hard-deleted records.
func (c *Cache) ApplyRemove(identifiers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range identifiers {
		delete(c.entries, id)
	}
}

// Get returns the cached record for an identifier.
func (c *Cache) Get(identifier string) (domain.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[identifier]
	return rec, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
