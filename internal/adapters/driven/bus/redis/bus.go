// Package redis publishes cache coherence signals over Redis pub/sub so
// cache instances in other processes can apply them.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
	"github.com/custodia-labs/eventvault/internal/logger"
)

// Ensure Bus implements the interface.
var _ driven.EventBus = (*Bus)(nil)

// Publisher abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

const publishTimeout = 2 * time.Second

// Bus publishes JSON-encoded event payloads on channels named
// <prefix>.<event>.
type Bus struct {
	client Publisher
	prefix string
}

// NewBus creates a bus publishing through the given client. An empty prefix
// defaults to "eventvault".
func NewBus(client Publisher, prefix string) *Bus {
	if prefix == "" {
		prefix = "eventvault"
	}
	return &Bus{client: client, prefix: prefix}
}

// Emit publishes the payload. Fire-and-forget: failures are logged, never
// surfaced, so a flaky bus cannot fail a committed write.
func (b *Bus) Emit(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("bus: encoding %s payload: %v", event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	channel := b.prefix + "." + event
	if err := b.client.Publish(ctx, channel, raw).Err(); err != nil {
		logger.Error("bus: publishing %s: %v", channel, err)
	}
}
