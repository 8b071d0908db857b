// Package memory provides an in-process event bus for cache coherence
// signals.
package memory

import (
	"sync"

	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

// Handler receives one emitted event.
type Handler func(event string, payload any)

// Bus fans emitted events out to subscribed handlers synchronously.
// Handlers must be fast; the write path blocks on them.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a new in-process bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event name.
func (b *Bus) Subscribe(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

// Emit delivers the payload to every handler subscribed to the event.
// Fire-and-forget: there is no acknowledgment and no error.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	handlers := b.handlers[event]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event, payload)
	}
}
