package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// classification is the dedup decision for one record.
type classification struct {
	op     domain.Op
	filter domain.Filter

	// existing is the stored record when op is OpReplace.
	existing *domain.Record
}

// IdentifyingFilter builds the lookup filter for a record: exact identifier
// match as the primary key, with the near-duplicate fields as fallback so an
// equivalent legacy record without a content-hash identity still matches.
func IdentifyingFilter(r domain.Record) domain.Filter {
	return domain.Filter{
		Identifier: r.Identifier,
		Device:     r.Device,
		Date:       r.Date,
		EventType:  r.EventType,
	}
}

// classify looks up an existing stored record and decides insert or replace.
//
// This is read-then-decide, not transactional: concurrent requests racing on
// the same identifier can both observe not-found and both attempt an insert.
// The store's unique identifier index resolves that race; the loser surfaces
// as a per-index write error downstream.
func classify(ctx context.Context, store driven.RecordStore, r domain.Record) (classification, error) {
	filter := IdentifyingFilter(r)

	existing, err := store.FindOne(ctx, filter)
	if errors.Is(err, domain.ErrNotFound) {
		return classification{op: domain.OpInsert, filter: filter}, nil
	}
	if err != nil {
		return classification{}, fmt.Errorf("dedup lookup: %w", err)
	}

	return classification{op: domain.OpReplace, filter: filter, existing: existing}, nil
}
