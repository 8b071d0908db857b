package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
	"github.com/custodia-labs/eventvault/internal/core/ports/driving"
	"github.com/custodia-labs/eventvault/internal/logger"
	"github.com/custodia-labs/eventvault/internal/telemetry"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService is the deduplicating write path: per-record preparation with
// maximal parallelism, one unordered bulk write, and cache reconciliation
// against the authoritative bulk outcome.
type IngestService struct {
	store driven.RecordStore
	authz driven.Authorizer
	bus   driven.EventBus

	// now is swappable for tests.
	now func() time.Time
}

// NewIngestService creates a new ingest service. The bus may be nil, which
// disables cache coherence signaling.
func NewIngestService(store driven.RecordStore, authz driven.Authorizer, bus driven.EventBus) *IngestService {
	return &IngestService{
		store: store,
		authz: authz,
		bus:   bus,
		now:   time.Now,
	}
}

// ProcessBatch implements driving.IngestService.
func (s *IngestService) ProcessBatch(ctx context.Context, caller domain.Caller, records []domain.Record) (*driving.BatchResult, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	outcomes := s.prepareAll(ctx, caller, records)

	// Intents keep input order for traceability; the intent list position
	// and the input batch position are two distinct index spaces, joined
	// through WriteIntent.InputIndex.
	var intents []domain.WriteIntent
	itemErrs := make([]domain.ItemError, 0)
	for _, o := range outcomes {
		switch {
		case o.intent != nil:
			intents = append(intents, *o.intent)
		case o.itemErr != nil:
			itemErrs = append(itemErrs, *o.itemErr)
		}
	}

	telemetry.ObserveBatch(len(intents))
	telemetry.ObservePrepareErrors(len(itemErrs))

	if len(intents) == 0 {
		if len(itemErrs) > 0 {
			return &driving.BatchResult{Status: http.StatusBadRequest, Errors: itemErrs}, nil
		}
		return &driving.BatchResult{
			Status:  http.StatusOK,
			Errors:  itemErrs,
			Message: "no records required writing",
		}, nil
	}

	res, err := s.store.BulkWrite(ctx, intents)
	if err != nil {
		// Wholesale failure: nothing can be assumed committed, so no
		// cache signal may fire. Pre-check errors are still reported so
		// the caller knows which records never reached storage at all.
		telemetry.ObserveBatchFailure()
		logger.Error("bulk write failed: %v", err)
		return &driving.BatchResult{
			Status:  http.StatusInternalServerError,
			Errors:  itemErrs,
			Message: fmt.Sprintf("bulk write failed: %v", err),
		}, nil
	}

	inserted, replaced, writeErrs := reconcile(intents, res)
	telemetry.ObserveCommits(len(inserted), len(replaced))
	telemetry.ObserveWriteErrors(len(writeErrs))

	(&notifier{bus: s.bus}).publish(inserted, replaced)

	itemErrs = append(itemErrs, writeErrs...)
	sort.Slice(itemErrs, func(i, j int) bool { return itemErrs[i].Index < itemErrs[j].Index })

	committed := len(inserted) + len(replaced)
	status := http.StatusOK
	if len(itemErrs) > 0 {
		if committed > 0 {
			status = http.StatusMultiStatus
		} else {
			status = http.StatusBadRequest
		}
	}

	logger.Info("batch complete: %d inserted, %d replaced, %d errors",
		res.InsertedCount+res.UpsertedCount, res.ReplacedCount, len(itemErrs))

	return &driving.BatchResult{
		Status:        status,
		InsertedCount: res.InsertedCount,
		ReplacedCount: res.ReplacedCount,
		MatchedCount:  res.MatchedCount,
		UpsertedCount: res.UpsertedCount,
		Errors:        itemErrs,
	}, nil
}

// prepareAll fans out one preparation task per record and waits for all of
// them to settle. A task's failure never blocks or aborts a sibling; each
// slot receives exactly one outcome.
func (s *IngestService) prepareAll(ctx context.Context, caller domain.Caller, records []domain.Record) []prepared {
	p := &preparer{store: s.store, authz: s.authz, now: s.now}

	outcomes := make([]prepared, len(records))
	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = p.prepare(ctx, caller, records[i], i)
		}(i)
	}
	wg.Wait()
	return outcomes
}

// reconcile maps the bulk result back onto the submitted intents by
// positional index, partitioning every intent into exactly one of
// committed-insert, committed-replace or failed.
//
// Committed records carry the storage-assigned id: inserts from the
// inserted-id assignments, upsert-promoted replaces from the upserted-id
// assignments. A plain replace keeps the id already resolved from the
// stored record during preparation.
func reconcile(intents []domain.WriteIntent, res *domain.BulkResult) (inserted, replaced []domain.Record, writeErrs []domain.ItemError) {
	errByIndex := make(map[int]domain.WriteError, len(res.WriteErrors))
	for _, we := range res.WriteErrors {
		errByIndex[we.Index] = we
	}

	for i, intent := range intents {
		if we, failed := errByIndex[i]; failed {
			writeErrs = append(writeErrs, domain.ItemError{
				Index:      intent.InputIndex,
				Identifier: intent.BestIdentifier(),
				Message:    fmt.Sprintf("write failed (code %d): %s", we.Code, we.Message),
				Status:     http.StatusConflict,
				Op:         intent.Op,
			})
			continue
		}

		rec := intent.Record
		switch intent.Op {
		case domain.OpInsert:
			if id, ok := res.InsertedIDs[i]; ok {
				rec.ID = id
			}
			inserted = append(inserted, rec)
		case domain.OpReplace:
			if id, ok := res.UpsertedIDs[i]; ok {
				rec.ID = id
			}
			replaced = append(replaced, rec)
		}
	}
	return inserted, replaced, writeErrs
}
