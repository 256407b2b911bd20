package types

import "time"

// Record is a dynamic entity instance validated against a declared
// EntityType. An empty ID means the record has not been persisted yet;
// backends assign a UUID v7 on first Set.
type Record struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// NewRecord builds an unsaved record of the given type with no fields set.
// Prefer EntityType.NewRecord when the schema is at hand; it initializes
// declared defaults.
func NewRecord(typeName string) *Record {
	return &Record{Type: typeName, Fields: make(map[string]any)}
}

// Persisted reports whether the record has an identity.
func (r *Record) Persisted() bool {
	return r.ID != ""
}

// Get returns the raw value of a field.
func (r *Record) Get(field string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

// Set stores a raw field value.
func (r *Record) Set(field string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[field] = value
}

// Text returns the value of a text field, or "" when unset.
func (r *Record) Text(field string) string {
	s, _ := r.Get(field).(string)
	return s
}

// Int returns the value of an integer field, or 0 when unset. JSON-decoded
// values arrive as float64 and are converted.
func (r *Record) Int(field string) int64 {
	switch v := r.Get(field).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Bool returns the value of a boolean field, or false when unset.
func (r *Record) Bool(field string) bool {
	b, _ := r.Get(field).(bool)
	return b
}

// Time returns the value of a timestamp field, or the zero time when unset.
// String values are parsed as RFC 3339.
func (r *Record) Time(field string) time.Time {
	switch v := r.Get(field).(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Ref returns the identity stored in a to-one reference field, or "" when
// the reference is unset.
func (r *Record) Ref(field string) string {
	s, _ := r.Get(field).(string)
	return s
}

// SetRef stores an identity in a to-one reference field.
func (r *Record) SetRef(field, id string) {
	r.Set(field, id)
}

// RefSet returns the identities stored in a reference-set field. The
// returned slice is the stored one; callers must not mutate it directly.
// JSON-decoded values arrive as []any and are converted in place.
func (r *Record) RefSet(field string) []string {
	switch v := r.Get(field).(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
		r.Set(field, ids)
		return ids
	default:
		return nil
	}
}

// AddRef adds an identity to a reference-set field. Idempotent: adding an
// identity already in the set is a no-op.
func (r *Record) AddRef(field, id string) {
	ids := r.RefSet(field)
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	r.Set(field, append(ids, id))
}

// RemoveRef removes an identity from a reference-set field if present.
func (r *Record) RemoveRef(field, id string) {
	ids := r.RefSet(field)
	for i, existing := range ids {
		if existing == id {
			r.Set(field, append(ids[:i:i], ids[i+1:]...))
			return
		}
	}
}

// HasRef reports whether a reference-set field contains the identity.
func (r *Record) HasRef(field, id string) bool {
	for _, existing := range r.RefSet(field) {
		if existing == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record. Reference-set slices are copied;
// scalar values are shared (they are immutable).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := &Record{ID: r.ID, Type: r.Type, Fields: make(map[string]any, len(r.Fields))}
	for k, v := range r.Fields {
		if ids, ok := v.([]string); ok {
			dup := make([]string, len(ids))
			copy(dup, ids)
			cp.Fields[k] = dup
			continue
		}
		cp.Fields[k] = v
	}
	return cp
}

// ContainsRecord reports whether the set holds a record with the same
// identity. Unsaved records (empty ID) are never members of a fetched set.
func ContainsRecord(set []*Record, rec *Record) bool {
	if rec == nil || rec.ID == "" {
		return false
	}
	for _, member := range set {
		if member.ID == rec.ID {
			return true
		}
	}
	return false
}
