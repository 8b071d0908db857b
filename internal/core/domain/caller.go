package domain

import (
	"strings"
	"time"
)

// Capability represents what a caller is allowed to do.
// This is a bitfield allowing callers to hold multiple capabilities.
type Capability uint8

const (
	// CapNone grants nothing.
	CapNone Capability = 0
	// CapCreate allows inserting new records.
	CapCreate Capability = 1 << 0
	// CapUpdate allows replacing existing records.
	CapUpdate Capability = 1 << 1
)

// CanCreate returns true if record creation is allowed.
func (c Capability) CanCreate() bool {
	return c&CapCreate != 0
}

// CanUpdate returns true if record replacement is allowed.
func (c Capability) CanUpdate() bool {
	return c&CapUpdate != 0
}

// String returns a human-readable representation.
func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	if c.CanCreate() {
		parts = append(parts, "create")
	}
	if c.CanUpdate() {
		parts = append(parts, "update")
	}
	return strings.Join(parts, ",")
}

// Caller is the authenticated-caller context for one ingest request.
type Caller struct {
	// Subject names the actor; stamped onto written records when present.
	Subject string

	// Capabilities is what the caller may do.
	Capabilities Capability

	// IfUnmodifiedSince, when set, makes replace attempts fail with a
	// precondition error if the stored record was modified after this
	// time. Compared at second granularity.
	IfUnmodifiedSince *time.Time
}
