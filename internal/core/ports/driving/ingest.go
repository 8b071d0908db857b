package driving

import (
	"context"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

// BatchResult is the aggregated outcome of one ingest batch.
// Status is an HTTP-style code chosen deterministically from the per-item
// outcomes; see IngestService.ProcessBatch.
type BatchResult struct {
	Status        int                `json:"status"`
	InsertedCount int                `json:"insertedCount"`
	ReplacedCount int                `json:"replacedCount"`
	MatchedCount  int                `json:"matchedCount"`
	UpsertedCount int                `json:"upsertedCount"`
	Errors        []domain.ItemError `json:"errors"`
	Message       string             `json:"message,omitempty"`
}

// IngestService is the single entry point of the write path.
type IngestService interface {
	// ProcessBatch decides insert-or-replace per record, executes all
	// decided operations as one partial-failure-tolerant bulk write, and
	// reconciles the cache bus with the authoritative outcome.
	//
	// Status selection, in order:
	//   - no intents, errors present            -> 400
	//   - no intents, no errors                 -> 200 (informational)
	//   - errors present, >=1 write committed   -> 207
	//   - errors present, nothing committed     -> 400
	//   - no errors                             -> 200
	//   - bulk call itself failed               -> 500
	//
	// An empty batch returns domain.ErrEmptyBatch; boundaries reject it
	// before calling.
	ProcessBatch(ctx context.Context, caller domain.Caller, records []domain.Record) (*BatchResult, error)
}
