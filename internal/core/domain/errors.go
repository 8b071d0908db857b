package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyBatch indicates an ingest request carried no records.
	// Rejected at the boundary before any storage call.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrPermissionDenied indicates the caller lacks the capability for
	// the attempted operation on a specific record.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrReadOnlyRecord indicates the target record is immutable.
	ErrReadOnlyRecord = errors.New("record is read-only")

	// ErrPreconditionFailed indicates a stale write attempt: the stored
	// record was modified after the caller's not-modified-since bound.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidRecord indicates a record failed field validation.
	ErrInvalidRecord = errors.New("invalid record")
)
