package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(identifier, device string, date int64) domain.Record {
	r := domain.NewRecord()
	r.Identifier = identifier
	r.Device = device
	r.Date = date
	r.EventType = "reading"
	r.App = "uploader"
	r.SrvCreated = 1700000001000
	r.SrvModified = 1700000001000
	return r
}

func TestNewStore_Migrates(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening applies no migration twice and keeps the data readable.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.FindOne(context.Background(), domain.Filter{Identifier: "none"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_InsertAndFindOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("ident-a", "meter-1", 1700000000000)
	rec.Extra = map[string]any{"glucose": 100}

	res, err := store.BulkWrite(ctx, []domain.WriteIntent{{Op: domain.OpInsert, Record: rec}})
	require.NoError(t, err)
	require.Equal(t, 1, res.InsertedCount)
	require.Empty(t, res.WriteErrors)
	require.Len(t, res.InsertedIDs, 1)

	got, err := store.FindOne(ctx, domain.Filter{Identifier: "ident-a"})
	require.NoError(t, err)
	assert.Equal(t, res.InsertedIDs[0], got.ID)
	assert.Equal(t, "meter-1", got.Device)
	assert.True(t, got.IsValid)
	// JSON round-trips numbers as float64.
	assert.Equal(t, float64(100), got.Extra["glucose"])
}

func TestStore_FindOne_NearDuplicateFallback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("legacy-id", "meter-1", 1700000000000)
	_, err := store.BulkWrite(ctx, []domain.WriteIntent{{Op: domain.OpInsert, Record: rec}})
	require.NoError(t, err)

	got, err := store.FindOne(ctx, domain.Filter{
		Identifier: "computed-hash",
		Device:     "meter-1",
		Date:       1700000000000,
		EventType:  "reading",
	})
	require.NoError(t, err)
	assert.Equal(t, "legacy-id", got.Identifier)
}

func TestStore_DuplicateIdentifier(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.BulkWrite(ctx, []domain.WriteIntent{
		{Op: domain.OpInsert, Record: testRecord("ident-a", "meter-1", 1700000000000)},
		{Op: domain.OpInsert, Record: testRecord("ident-a", "meter-2", 1700000000000)},
		{Op: domain.OpInsert, Record: testRecord("ident-b", "meter-3", 1700000000000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.InsertedCount)
	require.Len(t, res.WriteErrors, 1)
	assert.Equal(t, 1, res.WriteErrors[0].Index)
	assert.Equal(t, domain.DuplicateKeyCode, res.WriteErrors[0].Code)
}

func TestStore_Replace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("ident-a", "meter-1", 1700000000000)
	res, err := store.BulkWrite(ctx, []domain.WriteIntent{{Op: domain.OpInsert, Record: rec}})
	require.NoError(t, err)
	originalID := res.InsertedIDs[0]

	updated := testRecord("ident-a", "meter-1", 1700000000000)
	updated.SrvModified = 1700000002000
	updated.Extra = map[string]any{"glucose": 105}

	res, err = store.BulkWrite(ctx, []domain.WriteIntent{
		{Op: domain.OpReplace, Filter: domain.Filter{Identifier: "ident-a"}, Record: updated},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, res.ReplacedCount)
	assert.Zero(t, res.UpsertedCount)

	got, err := store.FindOne(ctx, domain.Filter{Identifier: "ident-a"})
	require.NoError(t, err)
	assert.Equal(t, originalID, got.ID)
	assert.Equal(t, int64(1700000002000), got.SrvModified)
	assert.Equal(t, float64(105), got.Extra["glucose"])
}

func TestStore_ReplaceUpsertPromotion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.BulkWrite(ctx, []domain.WriteIntent{
		{Op: domain.OpReplace, Filter: domain.Filter{Identifier: "gone"}, Record: testRecord("gone", "meter-1", 1700000000000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpsertedCount)
	assert.Zero(t, res.MatchedCount)
	require.Len(t, res.UpsertedIDs, 1)

	got, err := store.FindOne(ctx, domain.Filter{Identifier: "gone"})
	require.NoError(t, err)
	assert.Equal(t, res.UpsertedIDs[0], got.ID)
}

func TestStore_SoftDeleteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("ident-a", "meter-1", 1700000000000)
	rec.IsValid = false
	rec.IsReadOnly = true

	_, err := store.BulkWrite(ctx, []domain.WriteIntent{{Op: domain.OpInsert, Record: rec}})
	require.NoError(t, err)

	got, err := store.FindOne(ctx, domain.Filter{Identifier: "ident-a"})
	require.NoError(t, err)
	assert.False(t, got.IsValid)
	assert.True(t, got.IsReadOnly)
}
