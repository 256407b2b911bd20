package types

import "errors"

// Store defines the interface for backend-agnostic record storage.
// Callers attach to a backend, access tables by entity type name, and
// detach when done.
type Store interface {
	// Table returns the Table for the given entity type name.
	// Returns ErrUnknownType if the name is not declared in the schema.
	Table(typeName string) (Table, error)

	// Attach connects the Store to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls
	// succeed. After Detach, table operations return ErrStoreDetached.
	Detach() error
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrUnknownType     = errors.New("unknown entity type")
)

// Filter selects records by field value. Semantics:
//
//   - a scalar field matches when the stored value equals the filter value;
//   - a refset field matches when the stored set contains the filter value
//     (which must be a string identity);
//   - the reserved key "id" matches the record identity; an []string value
//     matches any identity in the slice.
type Filter map[string]any

// FilterID is the reserved Filter key matching the record identity.
const FilterID = "id"

// Table provides uniform operations over records of one entity type.
type Table interface {
	// Get returns the single record matching the filter.
	// Returns ErrNotFound when nothing matches and ErrAmbiguous when more
	// than one record matches.
	Get(filter Filter) (*Record, error)

	// Fetch returns all records matching the filter, ordered by the entity
	// type's declared ordering (record ID ascending when none is declared).
	// An empty filter returns every record. The result is never nil.
	Fetch(filter Filter) ([]*Record, error)

	// Set creates or updates a record. When the record is unsaved a UUID v7
	// identity is assigned in place, so the caller's pointer observes the
	// new identity. Returns the stored record.
	Set(rec *Record) (*Record, error)

	// Delete removes the record with the given identity.
	// Returns ErrNotFound if no such record exists.
	Delete(id string) error
}

// Table operation errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrAmbiguous    = errors.New("filter matched more than one record")
	ErrInvalidID    = errors.New("invalid record ID")
	ErrTypeMismatch = errors.New("record type does not match table")
	ErrInvalidField = errors.New("field is not declared for the entity type")
)
