package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

func TestNewChain(t *testing.T) {
	f := seedLibrary(t)

	t.Run("builds links and performs initial selection", func(t *testing.T) {
		c := f.newChain(t, Options{})
		assert.Equal(t, 3, c.Len())
		assert.Equal(t, "author", c.Head().Type().Name)
		assert.Equal(t, "chapter", c.Tail().Type().Name)
		assert.Equal(t, []string{f.ann.ID, f.alpha.ID, f.one.ID}, selections(c))
	})

	t.Run("no levels", func(t *testing.T) {
		_, err := New(f.schema, f.store, f.store, Options{})
		assert.ErrorIs(t, err, ErrNoLevels)
	})

	t.Run("duplicate level type", func(t *testing.T) {
		_, err := New(f.schema, f.store, f.store, Options{},
			Level{Type: "author"}, Level{Type: "author"})
		assert.ErrorIs(t, err, ErrDuplicateLevel)
	})

	t.Run("undeclared level type", func(t *testing.T) {
		_, err := New(f.schema, f.store, f.store, Options{},
			Level{Type: "publisher"})
		assert.ErrorIs(t, err, types.ErrUnknownType)
	})

	t.Run("unrelated adjacent levels", func(t *testing.T) {
		_, err := New(f.schema, f.store, f.store, Options{},
			Level{Type: "author"}, Level{Type: "chapter"})
		assert.ErrorIs(t, err, ErrNoRelation)
	})

	t.Run("explicit relation override must connect", func(t *testing.T) {
		_, err := New(f.schema, f.store, f.store, Options{},
			Level{Type: "author"}, Level{Type: "book", Relation: "title"})
		assert.ErrorIs(t, err, ErrNotARelation)
	})
}

func TestLinkFor(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	link, err := c.LinkFor("book")
	require.NoError(t, err)
	assert.Equal(t, "book", link.Type().Name)
	assert.Equal(t, "author", link.Parent().Type().Name)
	assert.Equal(t, "chapter", link.Child().Type().Name)

	_, err = c.LinkFor("publisher")
	assert.ErrorIs(t, err, types.ErrUnknownType)
}

func TestSettledHookFiresOncePerOperation(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	settled := 0
	c.OnSelectionSettled(func(*Chain) { settled++ })

	book, err := c.LinkFor("book")
	require.NoError(t, err)

	// One top-level selection cascades through two other levels but settles
	// exactly once.
	require.NoError(t, book.SelectBy(types.Filter{"title": "Gamma"}))
	assert.Equal(t, 1, settled)
	assert.Equal(t, []string{f.bob.ID, f.gamma.ID, ""}, selections(c))

	// Re-selecting still counts as one settled operation.
	require.NoError(t, book.SelectFirst())
	assert.Equal(t, 2, settled)
}

func TestChainClose(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	require.Equal(t, []string{f.ann.ID, f.alpha.ID, f.one.ID}, selections(c))

	c.Close()
	c.Close() // idempotent

	// The chain no longer reacts to store events.
	table, err := f.store.Table("chapter")
	require.NoError(t, err)
	require.NoError(t, table.Delete(f.one.ID))
	assert.Equal(t, f.one.ID, c.Tail().Selected().ID)
}
