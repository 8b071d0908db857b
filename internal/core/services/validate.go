package services

import (
	"fmt"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

const (
	// minDateMillis guards against pre-epoch and seconds-instead-of-millis
	// dates: 2000-01-01T00:00:00Z in unix milliseconds.
	minDateMillis = 946684800000

	// maxUTCOffsetMinutes bounds the device timezone offset (24h).
	maxUTCOffsetMinutes = 1440
)

// immutableFields may not change once set on a stored record. Identifier is
// handled separately: it is exempt during dedup-driven replace because the
// match itself proves identity equivalence.
var immutableFields = []string{
	domain.FieldDate,
	domain.FieldDevice,
	domain.FieldEventType,
	domain.FieldApp,
	domain.FieldSrvCreated,
	domain.FieldSubject,
}

// validateCreate checks the field rules for a brand-new record.
func validateCreate(r domain.Record) error {
	if r.Identifier == "" {
		return fmt.Errorf("%w: identifier must not be blank", domain.ErrInvalidRecord)
	}
	if err := validateCommon(r); err != nil {
		return err
	}
	return nil
}

// validateCommon checks field validity shared by create and update.
func validateCommon(r domain.Record) error {
	if r.Date < minDateMillis {
		return fmt.Errorf("%w: date %d is below the minimum epoch guard", domain.ErrInvalidRecord, r.Date)
	}
	if r.UTCOffset < -maxUTCOffsetMinutes || r.UTCOffset > maxUTCOffsetMinutes {
		return fmt.Errorf("%w: utcOffset %d out of range", domain.ErrInvalidRecord, r.UTCOffset)
	}
	if r.App == "" {
		return fmt.Errorf("%w: app must not be blank", domain.ErrInvalidRecord)
	}
	return nil
}

// validateUpdate enforces the immutability rules for a replace: a fixed set
// of fields may not change once set on the stored record. Incoming blank
// values are treated as not-supplied, not as a change.
func validateUpdate(incoming, stored domain.Record) error {
	for _, field := range immutableFields {
		in, ok := fieldValue(incoming, field)
		if !ok {
			continue
		}
		st, set := fieldValue(stored, field)
		if !set {
			continue
		}
		if in != st {
			return fmt.Errorf("%w: field %s cannot be modified", domain.ErrInvalidRecord, field)
		}
	}
	return nil
}

// fieldValue extracts a comparable value for one immutable field.
// The bool result reports whether the field is set at all.
func fieldValue(r domain.Record, field string) (any, bool) {
	switch field {
	case domain.FieldDate:
		return r.Date, r.Date != 0
	case domain.FieldDevice:
		return r.Device, r.Device != ""
	case domain.FieldEventType:
		return r.EventType, r.EventType != ""
	case domain.FieldApp:
		return r.App, r.App != ""
	case domain.FieldSrvCreated:
		return r.SrvCreated, r.SrvCreated != 0
	case domain.FieldSubject:
		return r.Subject, r.Subject != ""
	default:
		return nil, false
	}
}
