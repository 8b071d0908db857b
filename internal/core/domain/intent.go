package domain

// Op is the decided storage operation for one prepared record.
type Op string

const (
	// OpInsert writes a brand-new record.
	OpInsert Op = "insert"

	// OpReplace overwrites an existing record matched by a filter.
	OpReplace Op = "replace"
)

// Filter identifies at most one existing record. Identifier is the primary
// key; Device/Date/EventType form the near-duplicate fallback so equivalent
// legacy records without a content-hash identity still match.
type Filter struct {
	Identifier string
	Device     string
	Date       int64
	EventType  string
}

// Matches reports whether the filter identifies the given record, either by
// identifier or by the near-duplicate fallback fields.
func (f Filter) Matches(r Record) bool {
	if f.Identifier != "" && f.Identifier == r.Identifier {
		return true
	}
	if f.Device == "" || f.Date == 0 {
		return false
	}
	return f.Device == r.Device && f.Date == r.Date && f.EventType == r.EventType
}

// WriteIntent is one decided storage write. It carries the original batch
// position so bulk outcomes can be reported against the caller's input, and
// no knowledge of storage-internal row identifiers beyond what the record
// already holds.
type WriteIntent struct {
	// Op is OpInsert or OpReplace.
	Op Op

	// Filter identifies the record to replace. Zero value for inserts.
	Filter Filter

	// Record is the full post-preparation document shape.
	Record Record

	// InputIndex is the record's position in the original input batch.
	InputIndex int
}

// BestIdentifier recovers the most specific identity available for error
// reporting: the record's identifier, falling back to the filter's.
func (w WriteIntent) BestIdentifier() string {
	if w.Record.Identifier != "" {
		return w.Record.Identifier
	}
	return w.Filter.Identifier
}
