package driven

import (
	"context"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

// Action names a mutating operation checked against the authorizer.
type Action string

const (
	// ActionCreate is inserting a new record.
	ActionCreate Action = "create"

	// ActionUpdate is replacing an existing record.
	ActionUpdate Action = "update"
)

// Authorizer answers yes/no capability checks.
// The engine calls this before every mutating action; a refusal aborts that
// single record's preparation, never the batch.
type Authorizer interface {
	// Allowed reports whether the caller may perform the action.
	// For updates, target is the stored record being replaced; for
	// creates it is nil.
	Allowed(ctx context.Context, caller domain.Caller, action Action, target *domain.Record) bool
}
