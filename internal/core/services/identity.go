package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/logger"
)

// ComputeIdentifier derives the stable content-based identifier for a
// record from its identity-key fields. EventType is omitted when absent so
// records identified before the field existed keep their identity.
func ComputeIdentifier(r domain.Record) string {
	key := fmt.Sprintf("%s|%d", r.Device, r.Date)
	if r.EventType != "" {
		key += "|" + r.EventType
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ResolveIdentity fills in or verifies the record identifier.
//
// A caller-supplied identifier that disagrees with the computed value is
// kept: externally-identified records predate content hashing and rejecting
// them would strand their history. The mismatch is logged as a warning only.
func ResolveIdentity(r domain.Record) domain.Record {
	computed := ComputeIdentifier(r)
	if r.Identifier == "" {
		r.Identifier = computed
		return r
	}
	if r.Identifier != computed {
		logger.Warn("identifier mismatch for device=%s date=%d: supplied %s, computed %s; keeping supplied",
			r.Device, r.Date, r.Identifier, computed)
	}
	return r
}
