package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// prepared is the outcome of preparing one input record: exactly one of
// intent or itemErr is set.
type prepared struct {
	intent  *domain.WriteIntent
	itemErr *domain.ItemError
}

// preparer runs the per-record pipeline: identity resolution, dedup
// classification, authorization, validation and timestamp stamping.
// It never lets a failure escape past its boundary; every failure becomes a
// per-item error so sibling records in the batch are unaffected.
type preparer struct {
	store driven.RecordStore
	authz driven.Authorizer
	now   func() time.Time
}

// prepare produces one write intent or one per-item error for the record at
// the given input index.
func (p *preparer) prepare(ctx context.Context, caller domain.Caller, r domain.Record, index int) prepared {
	r = ResolveIdentity(r)

	cls, err := classify(ctx, p.store, r)
	if err != nil {
		return itemFailure(index, r.Identifier, "", http.StatusInternalServerError, err.Error())
	}

	if cls.op == domain.OpReplace {
		return p.prepareReplace(ctx, caller, r, cls, index)
	}
	return p.prepareInsert(ctx, caller, r, cls, index)
}

func (p *preparer) prepareInsert(ctx context.Context, caller domain.Caller, r domain.Record, cls classification, index int) prepared {
	if !p.authz.Allowed(ctx, caller, driven.ActionCreate, nil) {
		return itemFailure(index, r.Identifier, domain.OpInsert, http.StatusForbidden,
			domain.ErrPermissionDenied.Error())
	}

	if err := validateCreate(r); err != nil {
		return itemFailure(index, r.Identifier, domain.OpInsert, http.StatusBadRequest, err.Error())
	}

	now := p.now().UnixMilli()
	r.SrvCreated = now
	r.SrvModified = now
	if caller.Subject != "" {
		r.Subject = caller.Subject
	}

	return prepared{intent: &domain.WriteIntent{
		Op:         domain.OpInsert,
		Record:     r,
		InputIndex: index,
	}}
}

func (p *preparer) prepareReplace(ctx context.Context, caller domain.Caller, r domain.Record, cls classification, index int) prepared {
	stored := *cls.existing

	if !p.authz.Allowed(ctx, caller, driven.ActionUpdate, cls.existing) {
		return itemFailure(index, r.Identifier, domain.OpReplace, http.StatusForbidden,
			domain.ErrPermissionDenied.Error())
	}

	if stored.IsReadOnly {
		return itemFailure(index, r.Identifier, domain.OpReplace, http.StatusUnprocessableEntity,
			domain.ErrReadOnlyRecord.Error())
	}

	if err := validateUpdate(r, stored); err != nil {
		return itemFailure(index, r.Identifier, domain.OpReplace, http.StatusBadRequest, err.Error())
	}
	if err := validateCommon(r); err != nil {
		return itemFailure(index, r.Identifier, domain.OpReplace, http.StatusBadRequest, err.Error())
	}

	if caller.IfUnmodifiedSince != nil {
		// Second granularity: sub-second drift between client clocks and
		// stored millisecond stamps must not fail the write.
		storedMod := stored.ModifiedTime().Truncate(time.Second)
		bound := caller.IfUnmodifiedSince.Truncate(time.Second)
		if storedMod.After(bound) {
			return itemFailure(index, r.Identifier, domain.OpReplace, http.StatusPreconditionFailed,
				fmt.Sprintf("%s: record modified at %s", domain.ErrPreconditionFailed, storedMod.UTC().Format(time.RFC3339)))
		}
	}

	r.ID = stored.ID
	r.SrvCreated = stored.SrvCreated
	r.SrvModified = p.now().UnixMilli()
	if caller.Subject != "" {
		r.Subject = caller.Subject
	}

	return prepared{intent: &domain.WriteIntent{
		Op:         domain.OpReplace,
		Filter:     cls.filter,
		Record:     r,
		InputIndex: index,
	}}
}

func itemFailure(index int, identifier string, op domain.Op, status int, message string) prepared {
	return prepared{itemErr: &domain.ItemError{
		Index:      index,
		Identifier: identifier,
		Message:    message,
		Status:     status,
		Op:         op,
	}}
}
