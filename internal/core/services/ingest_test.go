package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/eventvault/internal/adapters/driven/auth"
	"github.com/custodia-labs/eventvault/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// capturingBus records every emitted event for assertions.
type capturingBus struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	name    string
	payload any
}

func (b *capturingBus) Emit(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, capturedEvent{name: event, payload: payload})
}

func (b *capturingBus) byName(name string) []capturedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []capturedEvent
	for _, e := range b.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func (b *capturingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func fullCaller() domain.Caller {
	return domain.Caller{Subject: "svc", Capabilities: domain.CapCreate | domain.CapUpdate}
}

func newRecord(device string, date int64, eventType string) domain.Record {
	r := domain.NewRecord()
	r.Device = device
	r.Date = date
	r.EventType = eventType
	r.App = "uploader"
	return r
}

func newTestService(store driven.RecordStore) (*IngestService, *capturingBus) {
	bus := &capturingBus{}
	svc := NewIngestService(store, auth.NewAuthorizer(), bus)
	svc.now = func() time.Time { return time.UnixMilli(1700000100000) }
	return svc, bus
}

func TestProcessBatch_EmptyBatch(t *testing.T) {
	svc, bus := newTestService(memory.NewRecordStore())

	_, err := svc.ProcessBatch(context.Background(), fullCaller(), nil)

	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
	assert.Zero(t, bus.count())
}

func TestProcessBatch_AllNewRecords(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)

	batch := []domain.Record{
		newRecord("meter-1", 1700000000000, "reading"),
		newRecord("meter-1", 1700000001000, "reading"),
		newRecord("meter-2", 1700000000000, "bolus"),
	}

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), batch)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 3, res.InsertedCount)
	assert.Zero(t, res.ReplacedCount)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, store.Len())

	updated := bus.byName(driven.EventRecordsUpdated)
	require.Len(t, updated, 1)
	payload, ok := updated[0].payload.(UpdatePayload)
	require.True(t, ok)
	assert.Equal(t, domain.OpInsert, payload.Op)
	require.Len(t, payload.Records, 3)
	for _, rec := range payload.Records {
		require.NotEmpty(t, rec.ID)
		stored, found := store.GetByIdentifier(rec.Identifier)
		require.True(t, found)
		assert.Equal(t, stored.ID, rec.ID)
		assert.Equal(t, "svc", rec.Subject)
		assert.Equal(t, int64(1700000100000), rec.SrvCreated)
	}

	received := bus.byName(driven.EventBatchReceived)
	require.Len(t, received, 1)
	assert.Equal(t, ReceivedPayload{InsertedCount: 3}, received[0].payload)
}

func TestProcessBatch_InsertThenReplace(t *testing.T) {
	store := memory.NewRecordStore()
	svc, _ := newTestService(store)
	caller := fullCaller()

	first := newRecord("meter-1", 1700000000000, "reading")
	first.Extra = map[string]any{"glucose": 100}

	res, err := svc.ProcessBatch(context.Background(), caller, []domain.Record{first})
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)

	ident := ComputeIdentifier(first)
	stored, ok := store.GetByIdentifier(ident)
	require.True(t, ok)
	originalID := stored.ID
	originalCreated := stored.SrvCreated

	// Same identity key resubmitted with corrected data classifies as a
	// replace of the stored row, not a second insert.
	svc.now = func() time.Time { return time.UnixMilli(1700000200000) }
	second := newRecord("meter-1", 1700000000000, "reading")
	second.Extra = map[string]any{"glucose": 105}

	res, err = svc.ProcessBatch(context.Background(), caller, []domain.Record{second})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Zero(t, res.InsertedCount)
	assert.Equal(t, 1, res.ReplacedCount)
	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, store.Len())

	stored, ok = store.GetByIdentifier(ident)
	require.True(t, ok)
	assert.Equal(t, originalID, stored.ID)
	assert.Equal(t, originalCreated, stored.SrvCreated)
	assert.Equal(t, int64(1700000200000), stored.SrvModified)
	assert.Equal(t, 105, stored.Extra["glucose"])
}

func TestProcessBatch_ReadOnlyTarget(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)

	locked := newRecord("meter-1", 1700000000000, "reading")
	locked.Identifier = ComputeIdentifier(locked)
	locked.IsReadOnly = true
	store.Seed(locked)

	batch := []domain.Record{
		newRecord("meter-2", 1700000000000, "reading"),
		newRecord("meter-1", 1700000000000, "reading"),
	}

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), batch)
	require.NoError(t, err)

	assert.Equal(t, http.StatusMultiStatus, res.Status)
	assert.Equal(t, 1, res.InsertedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Errors[0].Status)
	assert.Equal(t, domain.OpReplace, res.Errors[0].Op)
	assert.Contains(t, res.Errors[0].Message, "read-only")

	// Only the committed insert signals the cache.
	updated := bus.byName(driven.EventRecordsUpdated)
	require.Len(t, updated, 1)
	payload := updated[0].payload.(UpdatePayload)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "meter-2", payload.Records[0].Device)
}

func TestProcessBatch_PermissionDenied(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)
	caller := domain.Caller{Subject: "readonly-client", Capabilities: domain.CapNone}

	res, err := svc.ProcessBatch(context.Background(), caller,
		[]domain.Record{newRecord("meter-1", 1700000000000, "reading")})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusForbidden, res.Errors[0].Status)
	assert.Contains(t, res.Errors[0].Message, "permission denied")
	assert.Zero(t, store.Len())
	assert.Zero(t, bus.count())
}

func TestProcessBatch_UpdateWithoutCapability(t *testing.T) {
	store := memory.NewRecordStore()
	svc, _ := newTestService(store)

	existing := newRecord("meter-1", 1700000000000, "reading")
	existing.Identifier = ComputeIdentifier(existing)
	store.Seed(existing)

	caller := domain.Caller{Subject: "create-only", Capabilities: domain.CapCreate}

	res, err := svc.ProcessBatch(context.Background(), caller,
		[]domain.Record{newRecord("meter-1", 1700000000000, "reading")})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusForbidden, res.Errors[0].Status)
	assert.Equal(t, domain.OpReplace, res.Errors[0].Op)
}

func TestProcessBatch_ValidationFailure(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)

	bad := newRecord("meter-1", 100, "reading")

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), []domain.Record{bad})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusBadRequest, res.Errors[0].Status)
	assert.Contains(t, res.Errors[0].Message, "minimum epoch guard")
	assert.Zero(t, bus.count())
}

func TestProcessBatch_ImmutableFieldOnReplace(t *testing.T) {
	store := memory.NewRecordStore()
	svc, _ := newTestService(store)

	existing := newRecord("meter-1", 1700000000000, "reading")
	existing.Identifier = ComputeIdentifier(existing)
	store.Seed(existing)

	incoming := newRecord("meter-1", 1700000000000, "reading")
	incoming.App = "different-uploader"

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), []domain.Record{incoming})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusBadRequest, res.Errors[0].Status)
	assert.Contains(t, res.Errors[0].Message, "cannot be modified")
}

func TestProcessBatch_Precondition(t *testing.T) {
	store := memory.NewRecordStore()
	svc, _ := newTestService(store)

	existing := newRecord("meter-1", 1700000000000, "reading")
	existing.Identifier = ComputeIdentifier(existing)
	existing.SrvModified = 1700000050000
	store.Seed(existing)

	incoming := newRecord("meter-1", 1700000000000, "reading")

	t.Run("stale bound fails", func(t *testing.T) {
		bound := time.UnixMilli(1700000040000)
		caller := fullCaller()
		caller.IfUnmodifiedSince = &bound

		res, err := svc.ProcessBatch(context.Background(), caller, []domain.Record{incoming})
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, res.Status)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, http.StatusPreconditionFailed, res.Errors[0].Status)
	})

	t.Run("same second passes", func(t *testing.T) {
		// Stored stamp and bound land in the same second; sub-second
		// drift must not fail the write.
		bound := time.UnixMilli(1700000050900)
		caller := fullCaller()
		caller.IfUnmodifiedSince = &bound

		res, err := svc.ProcessBatch(context.Background(), caller, []domain.Record{incoming})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, res.Status)
		assert.Equal(t, 1, res.ReplacedCount)
	})
}

func TestProcessBatch_BulkFailure(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)
	store.FailWith(errors.New("connection reset by peer"))

	batch := []domain.Record{
		newRecord("meter-1", 1700000000000, "reading"),
		newRecord("meter-2", 100, "reading"), // fails preparation
	}

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), batch)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, res.Message, "connection reset")
	// Preparation errors are still reported so the caller knows those
	// records never reached storage at all.
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	// Nothing committed, so no cache signal may fire.
	assert.Zero(t, bus.count())
}

// racingStore simulates a concurrent writer landing between classification
// and commit: the dedup lookup sees nothing, then the unique identifier
// index rejects the insert at bulk time.
type racingStore struct {
	*memory.RecordStore
}

func (s *racingStore) FindOne(context.Context, domain.Filter) (*domain.Record, error) {
	return nil, domain.ErrNotFound
}

func TestProcessBatch_IdentifierRaceSurfacesAsConflict(t *testing.T) {
	inner := memory.NewRecordStore()
	svc, bus := newTestService(&racingStore{RecordStore: inner})

	taken := newRecord("meter-1", 1700000000000, "reading")
	taken.Identifier = ComputeIdentifier(taken)
	inner.Seed(taken)

	batch := []domain.Record{
		newRecord("meter-1", 1700000000000, "reading"), // loses the race
		newRecord("meter-2", 1700000000000, "reading"),
	}

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), batch)
	require.NoError(t, err)

	assert.Equal(t, http.StatusMultiStatus, res.Status)
	assert.Equal(t, 1, res.InsertedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Equal(t, http.StatusConflict, res.Errors[0].Status)
	assert.Contains(t, res.Errors[0].Message, "11000")

	// Every input is accounted for exactly once.
	assert.Equal(t, len(batch), res.InsertedCount+res.ReplacedCount+len(res.Errors))

	updated := bus.byName(driven.EventRecordsUpdated)
	require.Len(t, updated, 1)
	payload := updated[0].payload.(UpdatePayload)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "meter-2", payload.Records[0].Device)
}

func TestProcessBatch_SoftDeleteSignalsRemove(t *testing.T) {
	store := memory.NewRecordStore()
	svc, bus := newTestService(store)

	existing := newRecord("meter-1", 1700000000000, "reading")
	existing.Identifier = ComputeIdentifier(existing)
	store.Seed(existing)

	tombstone := newRecord("meter-1", 1700000000000, "reading")
	tombstone.IsValid = false

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), []domain.Record{tombstone})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, res.ReplacedCount)

	assert.Empty(t, bus.byName(driven.EventRecordsUpdated))
	removed := bus.byName(driven.EventRecordsRemoved)
	require.Len(t, removed, 1)
	payload := removed[0].payload.(RemovePayload)
	assert.Equal(t, []string{existing.Identifier}, payload.Identifiers)
	assert.Len(t, bus.byName(driven.EventBatchReceived), 1)
}

func TestProcessBatch_ErrorsSortedByInputIndex(t *testing.T) {
	store := memory.NewRecordStore()
	svc, _ := newTestService(store)

	locked := newRecord("meter-3", 1700000000000, "reading")
	locked.Identifier = ComputeIdentifier(locked)
	locked.IsReadOnly = true
	store.Seed(locked)

	invalid := newRecord("meter-1", 1700000000000, "reading")
	invalid.App = ""

	batch := []domain.Record{
		invalid,
		newRecord("meter-2", 1700000000000, "reading"),
		newRecord("meter-3", 1700000000000, "reading"),
	}

	res, err := svc.ProcessBatch(context.Background(), fullCaller(), batch)
	require.NoError(t, err)

	assert.Equal(t, http.StatusMultiStatus, res.Status)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Equal(t, 2, res.Errors[1].Index)
	assert.Equal(t, len(batch), res.InsertedCount+res.ReplacedCount+len(res.Errors))
}

func TestReconcile(t *testing.T) {
	intents := []domain.WriteIntent{
		{Op: domain.OpInsert, Record: domain.Record{Identifier: "a"}, InputIndex: 5},
		{Op: domain.OpReplace, Record: domain.Record{Identifier: "b"}, InputIndex: 7},
	}

	t.Run("assigns storage ids", func(t *testing.T) {
		res := &domain.BulkResult{
			InsertedIDs: map[int]string{0: "id-a"},
			UpsertedIDs: map[int]string{1: "id-b"},
		}

		inserted, replaced, writeErrs := reconcile(intents, res)

		require.Len(t, inserted, 1)
		assert.Equal(t, "id-a", inserted[0].ID)
		require.Len(t, replaced, 1)
		assert.Equal(t, "id-b", replaced[0].ID)
		assert.Empty(t, writeErrs)
	})

	t.Run("maps failures back to input positions", func(t *testing.T) {
		res := &domain.BulkResult{
			UpsertedIDs: map[int]string{1: "id-b"},
			WriteErrors: []domain.WriteError{{Index: 0, Code: domain.DuplicateKeyCode, Message: "dup"}},
		}

		inserted, replaced, writeErrs := reconcile(intents, res)

		assert.Empty(t, inserted)
		require.Len(t, replaced, 1)
		require.Len(t, writeErrs, 1)
		assert.Equal(t, 5, writeErrs[0].Index)
		assert.Equal(t, "a", writeErrs[0].Identifier)
		assert.Equal(t, http.StatusConflict, writeErrs[0].Status)
	})
}

func TestNotifier_NilBus(t *testing.T) {
	n := &notifier{}
	assert.NotPanics(t, func() {
		n.publish([]domain.Record{{Identifier: "a", IsValid: true}}, nil)
	})
}
