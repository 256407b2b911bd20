// This file implements the per-entity-type table accessor for the SQLite
// backend: filter compilation, row hydration, and snapshot persistence.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

var _ types.Table = (*table)(nil)

// table implements the Table interface for one declared entity type.
type table struct {
	backend *Backend
	etype   *types.EntityType
}

// scalarFields returns the declared fields stored as columns, in
// declaration order.
func (t *table) scalarFields() []types.Field {
	var fields []types.Field
	for _, f := range t.etype.Fields {
		if f.Type != types.FieldRefSet {
			fields = append(fields, f)
		}
	}
	return fields
}

// refSetFields returns the declared fields stored in junction tables.
func (t *table) refSetFields() []types.Field {
	var fields []types.Field
	for _, f := range t.etype.Fields {
		if f.Type == types.FieldRefSet {
			fields = append(fields, f)
		}
	}
	return fields
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

// Fetch returns all records matching the filter, ordered by the entity
// type's declared ordering with record ID ascending as the stable fallback.
func (t *table) Fetch(filter types.Filter) ([]*types.Record, error) {
	t.backend.mu.RLock()
	if !t.backend.attached {
		t.backend.mu.RUnlock()
		return nil, types.ErrStoreDetached
	}
	db := t.backend.db
	t.backend.mu.RUnlock()

	query, args, err := t.buildSelect(filter)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", t.etype.Name, err)
	}
	defer rows.Close()

	results := []*types.Record{}
	for rows.Next() {
		rec, err := t.hydrate(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating %s: %w", t.etype.Name, err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", t.etype.Name, err)
	}

	for _, rec := range results {
		if err := t.hydrateRefSets(db, rec); err != nil {
			return nil, fmt.Errorf("hydrating %s reference sets: %w", t.etype.Name, err)
		}
	}
	return results, nil
}

// Set creates or updates a record. An unsaved record gains a UUID v7
// identity in place. The JSONL snapshot is rewritten and the saved event
// delivered after the transaction commits.
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

	t.backend.mu.RLock()
	if !t.backend.attached {
		t.backend.mu.RUnlock()
		return nil, types.ErrStoreDetached
	}
	db := t.backend.db
	t.backend.mu.RUnlock()

	created := rec.ID == ""
	if created {
		newID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating UUID v7: %w", err)
		}
		rec.ID = newID.String()
	}

	if err := t.upsert(db, rec); err != nil {
		return nil, err
	}
	if err := t.persistSnapshot(); err != nil {
		return nil, fmt.Errorf("persisting %s snapshot: %w", t.etype.Name, err)
	}

	t.backend.EmitSaved(rec, created)
	return rec, nil
}

// upsert writes the record's scalar columns and junction rows in one
// transaction.
func (t *table) upsert(db *sql.DB, rec *types.Record) error {
	var exists bool
	err := db.QueryRow(fmt.Sprintf("SELECT 1 FROM %q WHERE id = ?", t.etype.Name), rec.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("checking %s existence: %w", t.etype.Name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	scalars := t.scalarFields()
	args := make([]any, 0, len(scalars)+1)
	for _, f := range scalars {
		v, err := toColumn(f, rec.Get(f.Name))
		if err != nil {
			return fmt.Errorf("converting %s.%s: %w", t.etype.Name, f.Name, err)
		}
		args = append(args, v)
	}

	if exists {
		var sets []string
		for _, f := range scalars {
			sets = append(sets, fmt.Sprintf("%q = ?", f.Name))
		}
		query := fmt.Sprintf("UPDATE %q SET %s WHERE id = ?", t.etype.Name, strings.Join(sets, ", "))
		if len(sets) == 0 {
			query = "" // nothing to update besides junctions
		}
		if query != "" {
			if _, err := tx.Exec(query, append(args, rec.ID)...); err != nil {
				return fmt.Errorf("updating %s: %w", t.etype.Name, err)
			}
		}
	} else {
		cols := []string{"id"}
		marks := []string{"?"}
		for _, f := range scalars {
			cols = append(cols, fmt.Sprintf("%q", f.Name))
			marks = append(marks, "?")
		}
		query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
			t.etype.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.Exec(query, append([]any{rec.ID}, args...)...); err != nil {
			return fmt.Errorf("inserting %s: %w", t.etype.Name, err)
		}
	}

	for _, f := range t.refSetFields() {
		junction := junctionName(t.etype.Name, f.Name)
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q WHERE from_id = ?", junction), rec.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", junction, err)
		}
		for _, id := range rec.RefSet(f.Name) {
			if _, err := tx.Exec(
				fmt.Sprintf("INSERT INTO %q (from_id, to_id) VALUES (?, ?)", junction), rec.ID, id); err != nil {
				return fmt.Errorf("writing %s: %w", junction, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", t.etype.Name, err)
	}
	return nil
}

// insertSnapshot inserts a replayed snapshot record inside the attach
// transaction, bypassing lifecycle events.
func (t *table) insertSnapshot(tx *sql.Tx, rec *types.Record) error {
	scalars := t.scalarFields()
	cols := []string{"id"}
	marks := []string{"?"}
	args := []any{rec.ID}
	for _, f := range scalars {
		v, err := toColumn(f, rec.Get(f.Name))
		if err != nil {
			return fmt.Errorf("converting %s.%s: %w", t.etype.Name, f.Name, err)
		}
		cols = append(cols, fmt.Sprintf("%q", f.Name))
		marks = append(marks, "?")
		args = append(args, v)
	}
	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		t.etype.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("inserting %s: %w", t.etype.Name, err)
	}
	for _, f := range t.refSetFields() {
		junction := junctionName(t.etype.Name, f.Name)
		for _, id := range rec.RefSet(f.Name) {
			if _, err := tx.Exec(
				fmt.Sprintf("INSERT INTO %q (from_id, to_id) VALUES (?, ?)", junction), rec.ID, id); err != nil {
				return fmt.Errorf("writing %s: %w", junction, err)
			}
		}
	}
	return nil
}

// Delete removes a record, delivering the before-delete event while the
// record is still fetchable, then cleans up junction rows on both sides of
// every reference set involving it.
func (t *table) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	rec, err := t.Get(types.Filter{types.FilterID: id})
	if err != nil {
		return err
	}

	t.backend.EmitBeforeDelete(rec)

	t.backend.mu.RLock()
	if !t.backend.attached {
		t.backend.mu.RUnlock()
		return types.ErrStoreDetached
	}
	db := t.backend.db
	t.backend.mu.RUnlock()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Own junction rows.
	for _, f := range t.refSetFields() {
		junction := junctionName(t.etype.Name, f.Name)
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q WHERE from_id = ?", junction), id); err != nil {
			return fmt.Errorf("clearing %s: %w", junction, err)
		}
	}
	// Junction rows on other types referencing this record.
	affected := []string{t.etype.Name}
	for _, other := range t.backend.schema.Types() {
		for _, f := range other.Fields {
			if f.Type == types.FieldRefSet && f.Target == t.etype.Name {
				junction := junctionName(other.Name, f.Name)
				if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q WHERE to_id = ?", junction), id); err != nil {
					return fmt.Errorf("clearing %s: %w", junction, err)
				}
				affected = append(affected, other.Name)
			}
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q WHERE id = ?", t.etype.Name), id); err != nil {
		return fmt.Errorf("deleting %s: %w", t.etype.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s deletion: %w", t.etype.Name, err)
	}

	seen := map[string]bool{}
	for _, name := range affected {
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := t.backend.tableSnapshot(name); err != nil {
			return fmt.Errorf("persisting %s snapshot: %w", name, err)
		}
	}
	return nil
}

// buildSelect compiles a Filter into a SELECT over the entity table.
func (t *table) buildSelect(filter types.Filter) (string, []any, error) {
	cols := []string{fmt.Sprintf("%q.id", t.etype.Name)}
	for _, f := range t.scalarFields() {
		cols = append(cols, fmt.Sprintf("%q.%q", t.etype.Name, f.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %q", strings.Join(cols, ", "), t.etype.Name)

	var conditions []string
	var args []any

	for key, want := range filter {
		if key == types.FilterID {
			switch w := want.(type) {
			case string:
				conditions = append(conditions, fmt.Sprintf("%q.id = ?", t.etype.Name))
				args = append(args, w)
			case []string:
				if len(w) == 0 {
					conditions = append(conditions, "1 = 0")
					continue
				}
				marks := strings.TrimRight(strings.Repeat("?, ", len(w)), ", ")
				conditions = append(conditions, fmt.Sprintf("%q.id IN (%s)", t.etype.Name, marks))
				for _, id := range w {
					args = append(args, id)
				}
			default:
				return "", nil, fmt.Errorf("%w: id filter must be string or []string", types.ErrInvalidID)
			}
			continue
		}

		field, ok := t.etype.Field(key)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s.%s", types.ErrInvalidField, t.etype.Name, key)
		}
		if field.Type == types.FieldRefSet {
			id, ok := want.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: refset filter on %s must be a string identity", types.ErrInvalidField, key)
			}
			junction := junctionName(t.etype.Name, field.Name)
			conditions = append(conditions, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM %q WHERE %q.from_id = %q.id AND %q.to_id = ?)",
				junction, junction, t.etype.Name, junction))
			args = append(args, id)
			continue
		}
		v, err := toColumn(field, want)
		if err != nil {
			return "", nil, fmt.Errorf("converting filter %s.%s: %w", t.etype.Name, key, err)
		}
		conditions = append(conditions, fmt.Sprintf("%q.%q = ?", t.etype.Name, field.Name))
		args = append(args, v)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var order []string
	for _, name := range t.etype.OrderBy {
		order = append(order, fmt.Sprintf("%q.%q ASC", t.etype.Name, name))
	}
	order = append(order, fmt.Sprintf("%q.id ASC", t.etype.Name))
	query += " ORDER BY " + strings.Join(order, ", ")

	return query, args, nil
}

// hydrate converts the current row into a Record.
func (t *table) hydrate(rows *sql.Rows) (*types.Record, error) {
	scalars := t.scalarFields()
	var id string
	dests := make([]any, 0, len(scalars)+1)
	dests = append(dests, &id)
	holders := make([]any, len(scalars))
	for i, f := range scalars {
		switch f.Type {
		case types.FieldInteger, types.FieldBoolean:
			holders[i] = new(sql.NullInt64)
		default:
			holders[i] = new(sql.NullString)
		}
		dests = append(dests, holders[i])
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}

	rec := &types.Record{ID: id, Type: t.etype.Name, Fields: make(map[string]any, len(t.etype.Fields))}
	for i, f := range scalars {
		rec.Set(f.Name, fromColumn(f, holders[i]))
	}
	return rec, nil
}

// hydrateRefSets loads junction rows into the record's reference-set
// fields, ordered by target identity for determinism.
func (t *table) hydrateRefSets(db *sql.DB, rec *types.Record) error {
	for _, f := range t.refSetFields() {
		junction := junctionName(t.etype.Name, f.Name)
		rows, err := db.Query(
			fmt.Sprintf("SELECT to_id FROM %q WHERE from_id = ? ORDER BY to_id ASC", junction), rec.ID)
		if err != nil {
			return fmt.Errorf("querying %s: %w", junction, err)
		}
		ids := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning %s: %w", junction, err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating %s: %w", junction, err)
		}
		rec.Set(f.Name, ids)
	}
	return nil
}

// toColumn converts a record field value to its column representation.
func toColumn(f types.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case types.FieldText, types.FieldRef:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s value %T is not a string", f.Type, v)
		}
		return s, nil
	case types.FieldInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		default:
			return nil, fmt.Errorf("integer value %T is not numeric", v)
		}
	case types.FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("boolean value %T is not a bool", v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case types.FieldTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.Format(time.RFC3339), nil
		case string:
			return ts, nil
		default:
			return nil, fmt.Errorf("timestamp value %T is not a time", v)
		}
	default:
		return nil, fmt.Errorf("%w: column for field type %s", types.ErrInvalidField, f.Type)
	}
}

// fromColumn converts a scanned column back to the record representation.
func fromColumn(f types.Field, holder any) any {
	switch f.Type {
	case types.FieldInteger:
		n := holder.(*sql.NullInt64)
		if !n.Valid {
			return int64(0)
		}
		return n.Int64
	case types.FieldBoolean:
		n := holder.(*sql.NullInt64)
		return n.Valid && n.Int64 != 0
	case types.FieldTimestamp:
		s := holder.(*sql.NullString)
		if !s.Valid || s.String == "" {
			return nil
		}
		return s.String
	default:
		s := holder.(*sql.NullString)
		if !s.Valid {
			return ""
		}
		return s.String
	}
}
