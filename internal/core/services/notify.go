package services

import (
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// UpdatePayload is the body of an EventRecordsUpdated signal: the full
// authoritative post-write shapes for one operation kind. Inserts and
// replaces are signaled separately because downstream consumers may treat
// new and corrected records differently.
type UpdatePayload struct {
	Op      domain.Op       `json:"op"`
	Records []domain.Record `json:"records"`
}

// RemovePayload is the body of an EventRecordsRemoved signal.
type RemovePayload struct {
	Identifiers []string `json:"identifiers"`
}

// ReceivedPayload is the body of an EventBatchReceived signal.
type ReceivedPayload struct {
	InsertedCount int `json:"insertedCount"`
	ReplacedCount int `json:"replacedCount"`
}

// notifier reconciles the cache bus with committed writes. It must only
// ever see records confirmed committed by the bulk result; the speculative
// pre-write shapes never reach it.
type notifier struct {
	bus driven.EventBus
}

// publish emits the coherence signals for one batch of committed records.
// Soft-deleted records (IsValid false) are diverted to the remove signal:
// a logically deleted record must leave the cache, not update it.
func (n *notifier) publish(inserted, replaced []domain.Record) {
	if n.bus == nil {
		return
	}

	liveInserted, removed := splitSoftDeleted(inserted)
	liveReplaced, removedReplaced := splitSoftDeleted(replaced)
	removed = append(removed, removedReplaced...)

	if len(liveInserted) > 0 {
		n.bus.Emit(driven.EventRecordsUpdated, UpdatePayload{Op: domain.OpInsert, Records: liveInserted})
	}
	if len(liveReplaced) > 0 {
		n.bus.Emit(driven.EventRecordsUpdated, UpdatePayload{Op: domain.OpReplace, Records: liveReplaced})
	}
	if len(removed) > 0 {
		n.bus.Emit(driven.EventRecordsRemoved, RemovePayload{Identifiers: removed})
	}
	if len(inserted)+len(replaced) > 0 {
		n.bus.Emit(driven.EventBatchReceived, ReceivedPayload{
			InsertedCount: len(inserted),
			ReplacedCount: len(replaced),
		})
	}
}

func splitSoftDeleted(records []domain.Record) (live []domain.Record, removedIdentifiers []string) {
	for _, r := range records {
		if r.IsValid {
			live = append(live, r)
		} else {
			removedIdentifiers = append(removedIdentifiers, r.Identifier)
		}
	}
	return live, removedIdentifiers
}
