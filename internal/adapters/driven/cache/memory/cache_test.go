package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busmem "github.com/custodia-labs/eventvault/internal/adapters/driven/bus/memory"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
	"github.com/custodia-labs/eventvault/internal/core/services"
)

func cachedRecord(identifier string) domain.Record {
	r := domain.NewRecord()
	r.ID = "row-" + identifier
	r.Identifier = identifier
	r.Device = "meter-1"
	return r
}

func TestCache_ApplyUpdate(t *testing.T) {
	c := NewCache()
	c.ApplyUpdate([]domain.Record{cachedRecord("a"), cachedRecord("b")})

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "row-a", got.ID)
}

func TestCache_ApplyUpdate_Idempotent(t *testing.T) {
	c := NewCache()
	rec := cachedRecord("a")

	c.ApplyUpdate([]domain.Record{rec})
	c.ApplyUpdate([]domain.Record{rec})

	assert.Equal(t, 1, c.Len())
}

func TestCache_ApplyUpdate_SkipsBlankIdentifier(t *testing.T) {
	c := NewCache()
	c.ApplyUpdate([]domain.Record{{ID: "row-x"}})

	assert.Zero(t, c.Len())
}

func TestCache_ApplyRemove(t *testing.T) {
	c := NewCache()
	c.ApplyUpdate([]domain.Record{cachedRecord("a"), cachedRecord("b")})

	c.ApplyRemove([]string{"a", "never-cached"})

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_Attach(t *testing.T) {
	bus := busmem.NewBus()
	c := NewCache()
	c.Attach(bus)

	bus.Emit(driven.EventRecordsUpdated, services.UpdatePayload{
		Op:      domain.OpInsert,
		Records: []domain.Record{cachedRecord("a")},
	})
	assert.Equal(t, 1, c.Len())

	bus.Emit(driven.EventRecordsRemoved, services.RemovePayload{Identifiers: []string{"a"}})
	assert.Zero(t, c.Len())

	// Unknown payload shapes are ignored, not panicked on.
	assert.NotPanics(t, func() {
		bus.Emit(driven.EventRecordsUpdated, "not a payload")
	})
}
