package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channels []string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *goredis.IntCmd {
	f.channels = append(f.channels, channel)
	if raw, ok := message.([]byte); ok {
		f.messages = append(f.messages, raw)
	}
	return goredis.NewIntResult(1, f.err)
}

func TestBus_Emit(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBus(pub, "")

	bus.Emit("records.updated", map[string]any{"op": "insert"})

	require.Len(t, pub.channels, 1)
	assert.Equal(t, "eventvault.records.updated", pub.channels[0])
	require.Len(t, pub.messages, 1)
	assert.JSONEq(t, `{"op":"insert"}`, string(pub.messages[0]))
}

func TestBus_CustomPrefix(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBus(pub, "staging")

	bus.Emit("batch.received", nil)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, "staging.batch.received", pub.channels[0])
}

func TestBus_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	bus := NewBus(pub, "")

	assert.NotPanics(t, func() {
		bus.Emit("records.updated", map[string]any{"op": "insert"})
	})
}

func TestBus_UnencodablePayloadSkipsPublish(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBus(pub, "")

	bus.Emit("records.updated", make(chan int))

	assert.Empty(t, pub.channels)
}
