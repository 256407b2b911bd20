// Package memory implements the in-memory storage backend. Records are
// cloned on the way in and out, so store state never aliases caller-held
// records; the only in-place mutation is identity assignment on create,
// which the Store contract requires.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/cascade/internal/lifecycle"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Compile-time interface checks.
var (
	_ types.Store    = (*Store)(nil)
	_ types.Notifier = (*Store)(nil)
	_ types.Table    = (*table)(nil)
)

// Store implements types.Store and types.Notifier over per-type maps.
type Store struct {
	*lifecycle.Dispatcher

	mu       sync.RWMutex
	schema   *types.Schema
	attached bool
	tables   map[string]*table
}

// NewStore creates a memory store for the declared schema. The store is not
// attached; call Attach with a Config to initialize.
func NewStore(schema *types.Schema) *Store {
	return &Store{
		Dispatcher: lifecycle.NewDispatcher(),
		schema:     schema,
		tables:     make(map[string]*table),
	}
}

// Table returns the table for the given entity type name.
func (s *Store) Table(typeName string) (types.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return nil, types.ErrStoreDetached
	}
	t, ok := s.tables[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownType, typeName)
	}
	return t, nil
}

// Attach initializes one table per declared entity type.
// Returns ErrAlreadyAttached if already attached.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	for _, etype := range s.schema.Types() {
		s.tables[etype.Name] = &table{store: s, etype: etype, recs: make(map[string]*types.Record)}
	}
	s.attached = true
	return nil
}

// Detach drops all tables. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.tables = make(map[string]*table)
	return nil
}

// table implements types.Table for one entity type.
type table struct {
	store *Store
	etype *types.EntityType
	recs  map[string]*types.Record
}

// Get returns the single record matching the filter.
func (t *table) Get(filter types.Filter) (*types.Record, error) {
	matches, err := t.Fetch(filter)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s %v", types.ErrNotFound, t.etype.Name, filter)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s %v", types.ErrAmbiguous, t.etype.Name, filter)
	}
}

// Fetch returns clones of all matching records, ordered by the entity
// type's ordering rule with record ID ascending as the stable fallback.
func (t *table) Fetch(filter types.Filter) ([]*types.Record, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if !t.store.attached {
		return nil, types.ErrStoreDetached
	}

	results := []*types.Record{}
	for _, rec := range t.recs {
		ok, err := t.matches(rec, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, rec.Clone())
		}
	}
	t.sortRecords(results)
	return results, nil
}

// Set creates or updates a record. An unsaved record gains a UUID v7
// identity in place.
func (t *table) Set(rec *types.Record) (*types.Record, error) {
	if rec == nil {
		return nil, types.ErrInvalidID
	}
	if rec.Type != t.etype.Name {
		return nil, fmt.Errorf("%w: %s in %s table", types.ErrTypeMismatch, rec.Type, t.etype.Name)
	}
	for name := range rec.Fields {
		if _, ok := t.etype.Field(name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", types.ErrInvalidField, t.etype.Name, name)
		}
	}

	t.store.mu.Lock()
	if !t.store.attached {
		t.store.mu.Unlock()
		return nil, types.ErrStoreDetached
	}

	created := rec.ID == ""
	if created {
		id, err := uuid.NewV7()
		if err != nil {
			t.store.mu.Unlock()
			return nil, fmt.Errorf("generating UUID v7: %w", err)
		}
		rec.ID = id.String()
	}
	t.recs[rec.ID] = rec.Clone()
	t.store.mu.Unlock()

	// Deliver after the write, outside the lock, with the caller's pointer.
	t.store.EmitSaved(rec, created)
	return rec, nil
}

// Delete removes the record, delivering the before-delete event while the
// record is still fetchable.
func (t *table) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	t.store.mu.RLock()
	if !t.store.attached {
		t.store.mu.RUnlock()
		return types.ErrStoreDetached
	}
	rec, ok := t.recs[id]
	t.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s %s", types.ErrNotFound, t.etype.Name, id)
	}

	t.store.EmitBeforeDelete(rec.Clone())

	t.store.mu.Lock()
	delete(t.recs, id)
	t.store.mu.Unlock()
	return nil
}

// matches applies Filter semantics: equality on scalar fields, set-contains
// on refset fields, and identity matching on the reserved "id" key.
func (t *table) matches(rec *types.Record, filter types.Filter) (bool, error) {
	for key, want := range filter {
		if key == types.FilterID {
			switch w := want.(type) {
			case string:
				if rec.ID != w {
					return false, nil
				}
			case []string:
				found := false
				for _, id := range w {
					if rec.ID == id {
						found = true
						break
					}
				}
				if !found {
					return false, nil
				}
			default:
				return false, fmt.Errorf("%w: id filter must be string or []string", types.ErrInvalidID)
			}
			continue
		}

		field, ok := t.etype.Field(key)
		if !ok {
			return false, fmt.Errorf("%w: %s.%s", types.ErrInvalidField, t.etype.Name, key)
		}
		if field.Type == types.FieldRefSet {
			id, ok := want.(string)
			if !ok {
				return false, fmt.Errorf("%w: refset filter on %s must be a string identity", types.ErrInvalidField, key)
			}
			if !rec.HasRef(key, id) {
				return false, nil
			}
			continue
		}
		if compareValues(rec.Get(key), want) != 0 {
			return false, nil
		}
	}
	return true, nil
}

// sortRecords orders records per the entity type's OrderBy fields, then by
// ID ascending.
func (t *table) sortRecords(recs []*types.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, field := range t.etype.OrderBy {
			if c := compareValues(recs[i].Get(field), recs[j].Get(field)); c != 0 {
				return c < 0
			}
		}
		return recs[i].ID < recs[j].ID
	})
}

// compareValues imposes a total order over the value kinds a field can
// hold. Numbers compare numerically across int and float representations
// (JSON decodes integers as float64); nil sorts first.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 1
		}
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 1
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	default:
		return 1
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
