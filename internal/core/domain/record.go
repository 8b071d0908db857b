package domain

import (
	"encoding/json"
	"time"
)

// Field names shared by the wire format, the storage adapters and the
// validation rules. A record is a fixed set of known fields plus an open
// extension map for caller-supplied data.
const (
	FieldID          = "_id"
	FieldIdentifier  = "identifier"
	FieldDate        = "date"
	FieldDevice      = "device"
	FieldEventType   = "eventType"
	FieldApp         = "app"
	FieldSubject     = "subject"
	FieldSrvCreated  = "srvCreated"
	FieldSrvModified = "srvModified"
	FieldUTCOffset   = "utcOffset"
	FieldIsValid     = "isValid"
	FieldIsReadOnly  = "isReadOnly"
)

// Record represents one device event record.
// Identifier is a stable content hash unique per logical record; ID is
// assigned by the storage layer and is empty until a write commits.
type Record struct {
	// ID is the storage-assigned row identifier.
	ID string

	// Identifier is the stable content-based identity of the record.
	Identifier string

	// Date is the event time in unix milliseconds.
	Date int64

	// Device is the reporting device name.
	Device string

	// EventType categorises the event. May be empty.
	EventType string

	// App is the uploading application name.
	App string

	// Subject is the authenticated actor who wrote the record.
	Subject string

	// SrvCreated and SrvModified are server-assigned unix millisecond
	// timestamps. SrvCreated never changes after creation.
	SrvCreated  int64
	SrvModified int64

	// UTCOffset is the device timezone offset in minutes.
	UTCOffset int

	// IsValid is the soft-delete marker: false means logically deleted
	// but physically present.
	IsValid bool

	// IsReadOnly marks a record that may never be modified again.
	IsReadOnly bool

	// Extra holds caller-supplied fields outside the fixed set.
	Extra map[string]any
}

// NewRecord returns a Record with defaults applied (IsValid true).
func NewRecord() Record {
	return Record{IsValid: true}
}

// ModifiedTime resolves the record's modification time: SrvModified when
// set, otherwise SrvCreated. Zero when the record was never stamped.
func (r Record) ModifiedTime() time.Time {
	ms := r.SrvModified
	if ms == 0 {
		ms = r.SrvCreated
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToMap flattens the record into a field map. Extra fields are laid out
// alongside the fixed fields; fixed fields win on collision. Zero-valued
// optional fields are omitted so stored shapes stay compact.
func (r Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.Extra)+12)
	for k, v := range r.Extra {
		m[k] = v
	}
	if r.ID != "" {
		m[FieldID] = r.ID
	}
	m[FieldIdentifier] = r.Identifier
	m[FieldDate] = r.Date
	m[FieldDevice] = r.Device
	if r.EventType != "" {
		m[FieldEventType] = r.EventType
	}
	if r.App != "" {
		m[FieldApp] = r.App
	}
	if r.Subject != "" {
		m[FieldSubject] = r.Subject
	}
	if r.SrvCreated != 0 {
		m[FieldSrvCreated] = r.SrvCreated
	}
	if r.SrvModified != 0 {
		m[FieldSrvModified] = r.SrvModified
	}
	if r.UTCOffset != 0 {
		m[FieldUTCOffset] = r.UTCOffset
	}
	m[FieldIsValid] = r.IsValid
	if r.IsReadOnly {
		m[FieldIsReadOnly] = true
	}
	return m
}

// RecordFromMap rebuilds a Record from a flattened field map.
// Unknown keys land in Extra.
func RecordFromMap(m map[string]any) Record {
	r := NewRecord()
	for k, v := range m {
		switch k {
		case FieldID:
			r.ID = asString(v)
		case FieldIdentifier:
			r.Identifier = asString(v)
		case FieldDate:
			r.Date = asInt64(v)
		case FieldDevice:
			r.Device = asString(v)
		case FieldEventType:
			r.EventType = asString(v)
		case FieldApp:
			r.App = asString(v)
		case FieldSubject:
			r.Subject = asString(v)
		case FieldSrvCreated:
			r.SrvCreated = asInt64(v)
		case FieldSrvModified:
			r.SrvModified = asInt64(v)
		case FieldUTCOffset:
			r.UTCOffset = int(asInt64(v))
		case FieldIsValid:
			if b, ok := v.(bool); ok {
				r.IsValid = b
			}
		case FieldIsReadOnly:
			if b, ok := v.(bool); ok {
				r.IsReadOnly = b
			}
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[k] = v
		}
	}
	return r
}

// MarshalJSON flattens Extra alongside the fixed fields.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON accepts the flattened wire shape.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	// Wire payloads that omit isValid mean a live record.
	if _, ok := m[FieldIsValid]; !ok {
		m[FieldIsValid] = true
	}
	*r = RecordFromMap(m)
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
