package domain

// WriteError is one per-index failure reported by a bulk write.
// Index refers to the position within the submitted intent list, never the
// original input batch.
type WriteError struct {
	Index   int
	Code    int
	Message string
}

// DuplicateKeyCode is the storage error code for a unique-identifier
// conflict, reported when two concurrent inserts race on the same identity.
const DuplicateKeyCode = 11000

// BulkResult is the authoritative outcome of one unordered bulk write.
// All indices refer to the submitted intent list.
type BulkResult struct {
	InsertedCount int
	ReplacedCount int
	MatchedCount  int
	UpsertedCount int

	// WriteErrors lists per-index failures. Intents absent from this list
	// committed.
	WriteErrors []WriteError

	// InsertedIDs maps intent index to the assigned id for inserts.
	InsertedIDs map[int]string

	// UpsertedIDs maps intent index to the assigned id for replace intents
	// that were realized as physical inserts.
	UpsertedIDs map[int]string
}

// FailedIndexSet returns the set of intent indices that failed.
func (b *BulkResult) FailedIndexSet() map[int]bool {
	failed := make(map[int]bool, len(b.WriteErrors))
	for _, we := range b.WriteErrors {
		failed[we.Index] = true
	}
	return failed
}

// ItemError reports one failed input record. Index is the position within
// the original input batch. Status is the HTTP-style code for the failure
// class.
type ItemError struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier,omitempty"`
	Message    string `json:"message"`
	Status     int    `json:"status"`
	Op         Op     `json:"op,omitempty"`
}
