package driven

import (
	"context"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

// RecordStore persists device event records.
// Implementations enforce a unique index on the record identifier; that
// index, not the engine, arbitrates concurrent inserts racing on the same
// identity.
type RecordStore interface {
	// FindOne returns at most one record matching the identifying filter,
	// or domain.ErrNotFound.
	FindOne(ctx context.Context, filter domain.Filter) (*domain.Record, error)

	// BulkWrite submits all intents as one unordered bulk operation.
	// Per-intent failures are reported inside the BulkResult by intent
	// index; the returned error is non-nil only when the operation failed
	// wholesale and nothing can be assumed committed.
	BulkWrite(ctx context.Context, intents []domain.WriteIntent) (*domain.BulkResult, error)
}
