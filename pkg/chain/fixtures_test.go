package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cascade/pkg/memory"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

// librarySchema declares the author -> book -> chapter fixture: a
// many-to-many between authors and books, a plain reference from chapter to
// book.
func librarySchema(t *testing.T) *types.Schema {
	t.Helper()
	schema, err := types.NewSchema(
		&types.EntityType{
			Name:    "author",
			OrderBy: []string{"name"},
			Fields: []types.Field{
				{Name: "name", Type: types.FieldText, Required: true},
			},
		},
		&types.EntityType{
			Name:    "book",
			OrderBy: []string{"title"},
			Fields: []types.Field{
				{Name: "title", Type: types.FieldText, Required: true},
				{Name: "authors", Type: types.FieldRefSet, Target: "author"},
			},
		},
		&types.EntityType{
			Name:    "chapter",
			OrderBy: []string{"number"},
			Fields: []types.Field{
				{Name: "title", Type: types.FieldText},
				{Name: "number", Type: types.FieldInteger},
				{Name: "book", Type: types.FieldRef, Target: "book"},
			},
		},
	)
	require.NoError(t, err)
	return schema
}

// libFixture holds the seeded records by name for assertions.
type libFixture struct {
	schema *types.Schema
	store  memory.Store

	ann, bob           *types.Record
	alpha, beta, gamma *types.Record
	one, two, three    *types.Record
}

// seedLibrary attaches a memory store and seeds it:
//
//	author Ann  -> books Alpha, Beta
//	author Bob  -> book Gamma
//	book Alpha  -> chapters One (1), Two (2)
//	book Beta   -> chapter Three (1)
//	book Gamma  -> no chapters
func seedLibrary(t *testing.T) *libFixture {
	t.Helper()
	schema := librarySchema(t)
	store := memory.NewStore(schema)
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendMemory}))
	t.Cleanup(func() { store.Detach() })

	f := &libFixture{schema: schema, store: store}
	f.ann = f.save(t, record("author", map[string]any{"name": "Ann"}))
	f.bob = f.save(t, record("author", map[string]any{"name": "Bob"}))

	f.alpha = f.save(t, record("book", map[string]any{"title": "Alpha", "authors": []string{f.ann.ID}}))
	f.beta = f.save(t, record("book", map[string]any{"title": "Beta", "authors": []string{f.ann.ID}}))
	f.gamma = f.save(t, record("book", map[string]any{"title": "Gamma", "authors": []string{f.bob.ID}}))

	f.one = f.save(t, record("chapter", map[string]any{"title": "One", "number": int64(1), "book": f.alpha.ID}))
	f.two = f.save(t, record("chapter", map[string]any{"title": "Two", "number": int64(2), "book": f.alpha.ID}))
	f.three = f.save(t, record("chapter", map[string]any{"title": "Three", "number": int64(1), "book": f.beta.ID}))
	return f
}

func record(typeName string, fields map[string]any) *types.Record {
	rec := types.NewRecord(typeName)
	for k, v := range fields {
		rec.Set(k, v)
	}
	return rec
}

func (f *libFixture) save(t *testing.T, rec *types.Record) *types.Record {
	t.Helper()
	table, err := f.store.Table(rec.Type)
	require.NoError(t, err)
	stored, err := table.Set(rec)
	require.NoError(t, err)
	return stored
}

// newChain builds the standard three-level chain over the fixture store.
func (f *libFixture) newChain(t *testing.T, opts Options) *Chain {
	t.Helper()
	c, err := New(f.schema, f.store, f.store, opts,
		Level{Type: "author"},
		Level{Type: "book"},
		Level{Type: "chapter"},
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// selections returns the selected record IDs per level, "" for empty slots
// and "new" for unsaved selections.
func selections(c *Chain) []string {
	ids := make([]string, 0, c.Len())
	for _, link := range c.Links() {
		switch {
		case link.Selected() == nil:
			ids = append(ids, "")
		case !link.IsPersisted():
			ids = append(ids, "new")
		default:
			ids = append(ids, link.Selected().ID)
		}
	}
	return ids
}
