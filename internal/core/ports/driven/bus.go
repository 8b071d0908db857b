package driven

// Cache coherence event names. Payload shapes are defined by the services
// package that emits them.
const (
	// EventRecordsUpdated carries committed post-write record shapes,
	// emitted once per batch for inserts and once for replaces.
	EventRecordsUpdated = "records.updated"

	// EventRecordsRemoved carries identifiers of soft-deleted records.
	EventRecordsRemoved = "records.removed"

	// EventBatchReceived fires once per batch when at least one write
	// committed, so downstream aggregation runs once per batch.
	EventBatchReceived = "batch.received"
)

// EventBus publishes cache coherence signals.
// Emit is fire-and-forget: no acknowledgment, no error. Implementations
// must not block the write path.
type EventBus interface {
	Emit(event string, payload any)
}
