package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

func testSchema(t *testing.T) *types.Schema {
	t.Helper()
	schema, err := types.NewSchema(
		&types.EntityType{
			Name:    "author",
			OrderBy: []string{"name"},
			Fields: []types.Field{
				{Name: "name", Type: types.FieldText},
			},
		},
		&types.EntityType{
			Name:    "book",
			OrderBy: []string{"year", "title"},
			Fields: []types.Field{
				{Name: "title", Type: types.FieldText},
				{Name: "year", Type: types.FieldInteger},
				{Name: "in_print", Type: types.FieldBoolean},
				{Name: "released", Type: types.FieldTimestamp},
				{Name: "authors", Type: types.FieldRefSet, Target: "author"},
			},
		},
	)
	require.NoError(t, err)
	return schema
}

func setupBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	dataDir := t.TempDir()
	b := NewBackend(testSchema(t))
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}))
	t.Cleanup(func() { b.Detach() })
	return b, dataDir
}

func mustSet(t *testing.T, b *Backend, typeName string, fields map[string]any) *types.Record {
	t.Helper()
	table, err := b.Table(typeName)
	require.NoError(t, err)
	rec := types.NewRecord(typeName)
	for k, v := range fields {
		rec.Set(k, v)
	}
	stored, err := table.Set(rec)
	require.NoError(t, err)
	return stored
}

func TestAttachCreatesDatabase(t *testing.T) {
	_, dataDir := setupBackend(t)
	_, err := os.Stat(filepath.Join(dataDir, dbFileName))
	assert.NoError(t, err)
}

func TestAttachLifecycle(t *testing.T) {
	b := NewBackend(testSchema(t))
	dataDir := t.TempDir()

	_, err := b.Table("book")
	assert.ErrorIs(t, err, types.ErrStoreDetached)

	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}))
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dataDir}),
		types.ErrAlreadyAttached)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach()) // idempotent
}

func TestAttachRejectsInvalidIdentifiers(t *testing.T) {
	schema, err := types.NewSchema(
		&types.EntityType{Name: "bad name", Fields: []types.Field{{Name: "x", Type: types.FieldText}}},
	)
	require.NoError(t, err)

	b := NewBackend(schema)
	err = b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrUnknownType)
}

func TestRoundTrip(t *testing.T) {
	b, _ := setupBackend(t)
	ann := mustSet(t, b, "author", map[string]any{"name": "Ann"})
	bob := mustSet(t, b, "author", map[string]any{"name": "Bob"})

	book := mustSet(t, b, "book", map[string]any{
		"title":    "Alpha",
		"year":     int64(2001),
		"in_print": true,
		"released": "2001-06-01T00:00:00Z",
		"authors":  []string{ann.ID, bob.ID},
	})
	require.True(t, book.Persisted())

	table, err := b.Table("book")
	require.NoError(t, err)
	got, err := table.Get(types.Filter{types.FilterID: book.ID})
	require.NoError(t, err)

	assert.Equal(t, "Alpha", got.Text("title"))
	assert.Equal(t, int64(2001), got.Int("year"))
	assert.True(t, got.Bool("in_print"))
	assert.Equal(t, 2001, got.Time("released").Year())
	assert.ElementsMatch(t, []string{ann.ID, bob.ID}, got.RefSet("authors"))
}

func TestFetchOrderingAndFilters(t *testing.T) {
	b, _ := setupBackend(t)
	ann := mustSet(t, b, "author", map[string]any{"name": "Ann"})
	bob := mustSet(t, b, "author", map[string]any{"name": "Bob"})
	b1 := mustSet(t, b, "book", map[string]any{"title": "Beta", "year": int64(2001), "authors": []string{ann.ID}})
	b2 := mustSet(t, b, "book", map[string]any{"title": "Alpha", "year": int64(2001), "authors": []string{ann.ID, bob.ID}})
	b3 := mustSet(t, b, "book", map[string]any{"title": "Gamma", "year": int64(1999), "authors": []string{bob.ID}})

	books, err := b.Table("book")
	require.NoError(t, err)

	t.Run("declared ordering applies", func(t *testing.T) {
		all, err := books.Fetch(nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{b3.ID, b2.ID, b1.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("scalar equality", func(t *testing.T) {
		got, err := books.Fetch(types.Filter{"year": int64(2001)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("refset set-contains via junction", func(t *testing.T) {
		got, err := books.Fetch(types.Filter{"authors": bob.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, b3.ID, got[0].ID)
		assert.Equal(t, b2.ID, got[1].ID)
	})

	t.Run("id set filter", func(t *testing.T) {
		got, err := books.Fetch(types.Filter{types.FilterID: []string{b1.ID, b3.ID}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("empty id set matches nothing", func(t *testing.T) {
		got, err := books.Fetch(types.Filter{types.FilterID: []string{}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("undeclared filter field rejected", func(t *testing.T) {
		_, err := books.Fetch(types.Filter{"publisher": "x"})
		assert.ErrorIs(t, err, types.ErrInvalidField)
	})
}

func TestUpdateReplacesJunctionRows(t *testing.T) {
	b, _ := setupBackend(t)
	ann := mustSet(t, b, "author", map[string]any{"name": "Ann"})
	bob := mustSet(t, b, "author", map[string]any{"name": "Bob"})
	book := mustSet(t, b, "book", map[string]any{"title": "Alpha", "authors": []string{ann.ID}})

	book.Set("authors", []string{bob.ID})
	table, err := b.Table("book")
	require.NoError(t, err)
	_, err = table.Set(book)
	require.NoError(t, err)

	got, err := table.Get(types.Filter{types.FilterID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, got.RefSet("authors"))
}

func TestDeleteCleansJunctionRows(t *testing.T) {
	b, _ := setupBackend(t)
	ann := mustSet(t, b, "author", map[string]any{"name": "Ann"})
	book := mustSet(t, b, "book", map[string]any{"title": "Alpha", "authors": []string{ann.ID}})

	authors, err := b.Table("author")
	require.NoError(t, err)
	books, err := b.Table("book")
	require.NoError(t, err)

	t.Run("deleting the referencing side", func(t *testing.T) {
		require.NoError(t, books.Delete(book.ID))
		_, err := books.Get(types.Filter{types.FilterID: book.ID})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("deleting the referenced side", func(t *testing.T) {
		book2 := mustSet(t, b, "book", map[string]any{"title": "Beta", "authors": []string{ann.ID}})
		require.NoError(t, authors.Delete(ann.ID))

		got, err := books.Get(types.Filter{types.FilterID: book2.ID})
		require.NoError(t, err)
		assert.Empty(t, got.RefSet("authors"), "junction rows referencing a deleted record are removed")
	})
}

func TestLifecycleEvents(t *testing.T) {
	b, _ := setupBackend(t)
	table, err := b.Table("author")
	require.NoError(t, err)

	var created []bool
	var sameRecord bool
	rec := types.NewRecord("author")
	rec.Set("name", "Ann")
	cancel := b.OnSaved("author", func(got *types.Record, c bool) {
		created = append(created, c)
		sameRecord = got == rec
	})
	defer cancel()

	_, err = table.Set(rec)
	require.NoError(t, err)
	assert.True(t, sameRecord, "saved event delivers the caller's pointer")

	_, err = table.Set(rec)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, created)

	var fetchableDuringDelete bool
	cancelDel := b.OnBeforeDelete("author", func(got *types.Record) {
		_, err := table.Get(types.Filter{types.FilterID: got.ID})
		fetchableDuringDelete = err == nil
	})
	defer cancelDel()

	require.NoError(t, table.Delete(rec.ID))
	assert.True(t, fetchableDuringDelete)
}
