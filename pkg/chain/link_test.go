package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// requireConsistent asserts that every selected, persisted child is a member
// of its parent's children set.
func requireConsistent(t *testing.T, c *Chain) {
	t.Helper()
	for _, link := range c.Links() {
		parent := link.Parent()
		if parent == nil || !parent.IsPersisted() || !link.IsPersisted() {
			continue
		}
		kids, err := parent.Children()
		require.NoError(t, err)
		assert.True(t, types.ContainsRecord(kids, link.Selected()),
			"%s selection %s not among %s children", link.Type().Name, link.Selected().ID, parent.Type().Name)
	}
}

func TestSelectCascadesDownward(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	// Beta is Ann's book; the author level holds, the chapter level follows.
	require.NoError(t, book.SelectBy(types.Filter{"title": "Beta"}))
	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.three.ID}, selections(c))
	requireConsistent(t, c)
}

func TestSelectCascadesUpward(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	// Three belongs to Beta; selecting it re-parents both levels above.
	require.NoError(t, chapter.SelectBy(types.Filter{"title": "Three"}))
	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.three.ID}, selections(c))

	// Gamma belongs to Bob; the head moves too.
	book, err := c.LinkFor("book")
	require.NoError(t, err)
	require.NoError(t, book.SelectBy(types.Filter{"title": "Gamma"}))
	assert.Equal(t, []string{f.bob.ID, f.gamma.ID, ""}, selections(c))
	requireConsistent(t, c)
}

func TestSelectNextSiblingChangesOnlyLowerLevels(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	require.NoError(t, book.SelectNextSibling())
	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.three.ID}, selections(c))

	// Past the end of Ann's books the slot empties, and so do the levels
	// below.
	require.NoError(t, book.SelectNextSibling())
	assert.Equal(t, []string{f.ann.ID, "", ""}, selections(c))
}

func TestSelectPreviousSibling(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	require.NoError(t, chapter.SelectNextSibling())
	assert.Equal(t, f.two.ID, chapter.Selected().ID)
	require.NoError(t, chapter.SelectPreviousSibling())
	assert.Equal(t, f.one.ID, chapter.Selected().ID)
	// Past the start the slot empties.
	require.NoError(t, chapter.SelectPreviousSibling())
	assert.Nil(t, chapter.Selected())
}

func TestSelectLast(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	require.NoError(t, chapter.SelectLast())
	assert.Equal(t, []string{f.ann.ID, f.alpha.ID, f.two.ID}, selections(c))
}

func TestSelectIdempotent(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	require.NoError(t, book.SelectBy(types.Filter{"title": "Beta"}))
	before := selections(c)
	require.NoError(t, book.SelectBy(types.Filter{"title": "Beta"}))
	assert.Equal(t, before, selections(c))
}

func TestSelectNilClearsDescendants(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	require.NoError(t, c.Head().Select(nil))
	assert.Equal(t, []string{"", "", ""}, selections(c))
}

func TestSelectRejectsWrongType(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	err := c.Head().Select(f.alpha)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestUnsavedSelectRejectedUnderUnselectedParent(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	require.NoError(t, c.Head().Select(nil))
	before := selections(c)

	bookType, err := f.schema.Type("book")
	require.NoError(t, err)
	err = book.Select(bookType.NewRecord())
	assert.ErrorIs(t, err, ErrUnlinkedParent)
	assert.Equal(t, before, selections(c), "failed select must not mutate chain state")
}

func TestNewBookAttachesToAuthorOnSave(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	require.NoError(t, c.Head().SelectBy(types.Filter{"name": "Bob"}))

	bookType, err := f.schema.Type("book")
	require.NoError(t, err)
	draft := bookType.NewRecord()
	draft.Set("title", "Delta")
	require.NoError(t, book.Select(draft))

	// The reference set is not staged; attachment happens on save.
	assert.Empty(t, draft.RefSet("authors"))

	require.NoError(t, book.Save())
	assert.True(t, draft.Persisted())
	assert.Equal(t, []string{f.bob.ID}, draft.RefSet("authors"))

	// The stored record carries the attachment.
	table, err := f.store.Table("book")
	require.NoError(t, err)
	stored, err := table.Get(types.Filter{types.FilterID: draft.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{f.bob.ID}, stored.RefSet("authors"))

	requireConsistent(t, c)
}

func TestNewChapterStagesBookRef(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	chapterType, err := f.schema.Type("chapter")
	require.NoError(t, err)
	draft := chapterType.NewRecord()
	draft.Set("title", "Four")
	draft.Set("number", int64(3))
	require.NoError(t, chapter.Select(draft))

	// A child-held reference is staged at select time.
	assert.Equal(t, f.alpha.ID, draft.Ref("book"))

	require.NoError(t, chapter.Save())
	assert.True(t, draft.Persisted())

	table, err := f.store.Table("chapter")
	require.NoError(t, err)
	stored, err := table.Get(types.Filter{types.FilterID: draft.ID})
	require.NoError(t, err)
	assert.Equal(t, f.alpha.ID, stored.Ref("book"))

	requireConsistent(t, c)
}

func TestCreatedSaveDoesNotCascadeDownward(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	bookType, err := f.schema.Type("book")
	require.NoError(t, err)
	draft := bookType.NewRecord()
	draft.Set("title", "Zeta")
	require.NoError(t, book.Select(draft))
	assert.Equal(t, []string{f.ann.ID, "new", ""}, selections(c))

	// Saving the new book attaches it without reselecting the chapter level,
	// so a new chapter can still be composed beneath it.
	require.NoError(t, book.Save())
	assert.Equal(t, []string{f.ann.ID, draft.ID, ""}, selections(c))
}

func TestUpdateSaveReCascades(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)
	require.Equal(t, f.one.ID, chapter.Selected().ID)

	// Move chapter One from Alpha to Beta and save. The book level follows
	// the moved child; the author level is already consistent.
	chapter.Selected().SetRef("book", f.beta.ID)
	require.NoError(t, chapter.Save())
	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.one.ID}, selections(c))
	requireConsistent(t, c)
}

func TestRemoveSelectsPreviousElseNextElseNothing(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	// From Two, removal falls back to the previous sibling One.
	require.NoError(t, chapter.SelectNextSibling())
	require.Equal(t, f.two.ID, chapter.Selected().ID)
	require.NoError(t, chapter.Remove())
	assert.Equal(t, f.one.ID, chapter.Selected().ID)

	// One is now the only chapter; removal empties the slot.
	require.NoError(t, chapter.Remove())
	assert.Nil(t, chapter.Selected())
	assert.Equal(t, []string{f.ann.ID, f.alpha.ID, ""}, selections(c))
}

func TestRemoveSelectsNextWhenFirst(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)
	require.Equal(t, f.one.ID, chapter.Selected().ID)

	require.NoError(t, chapter.Remove())
	assert.Equal(t, f.two.ID, chapter.Selected().ID)
}

func TestRemoveUnsavedClearsSlot(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	bookType, err := f.schema.Type("book")
	require.NoError(t, err)
	require.NoError(t, book.Select(bookType.NewRecord()))
	require.False(t, book.IsPersisted())

	require.NoError(t, book.Remove())
	assert.Nil(t, book.Selected())
}

func TestRemoveWithoutSelection(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	require.NoError(t, c.Head().Select(nil))
	err := c.Head().Remove()
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.ErrorIs(t, c.Head().Save(), ErrNoSelection)
}

func TestParentDeletionCascades(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)
	require.Equal(t, f.alpha.ID, book.Selected().ID)

	// Removing Alpha shifts the book level to Beta and the chapter level to
	// Beta's first chapter.
	require.NoError(t, book.Remove())
	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.three.ID}, selections(c))
	requireConsistent(t, c)
}

func TestAutoCreateDefaults(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{AutoCreateDefaults: true})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	// Gamma has no chapters; the chapter slot holds a new default record
	// with its book reference already staged.
	require.NoError(t, book.SelectBy(types.Filter{"title": "Gamma"}))
	chapter := c.Tail()
	require.NotNil(t, chapter.Selected())
	assert.False(t, chapter.IsPersisted())
	assert.Equal(t, f.gamma.ID, chapter.Selected().Ref("book"))

	// Saving the default record persists and attaches it.
	require.NoError(t, chapter.Save())
	assert.True(t, chapter.IsPersisted())
	requireConsistent(t, c)
}

func TestIndexAndCandidates(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	chapter, err := c.LinkFor("chapter")
	require.NoError(t, err)

	set, err := chapter.Candidates()
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, f.one.ID, set[0].ID)
	assert.Equal(t, f.two.ID, set[1].ID)

	i, err := chapter.Index()
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	require.NoError(t, chapter.SelectLast())
	i, err = chapter.Index()
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	require.NoError(t, chapter.Select(nil))
	_, err = chapter.Index()
	assert.ErrorIs(t, err, ErrNoSelection)

	// A selection outside the candidate set reports ErrNotInSet.
	require.NoError(t, chapter.Select(f.three.Clone()))
	book, err := c.LinkFor("book")
	require.NoError(t, err)
	require.Equal(t, f.beta.ID, book.Selected().ID)
	require.NoError(t, book.setSelectedForTest(f.alpha))
	_, err = chapter.Index()
	assert.ErrorIs(t, err, ErrNotInSet)
}

// setSelectedForTest mutates the slot without cascading, to stage an
// inconsistent intermediate state.
func (l *Link) setSelectedForTest(rec *types.Record) error {
	l.selected = rec
	return nil
}

func TestChildrenOfUnselectedLevel(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})
	book, err := c.LinkFor("book")
	require.NoError(t, err)

	require.NoError(t, c.Head().Select(nil))

	// With no parent selection the candidate set falls back to all records.
	set, err := book.Candidates()
	require.NoError(t, err)
	assert.Len(t, set, 3)

	kids, err := c.Head().Children()
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestExternalSaveMovesSelection(t *testing.T) {
	f := seedLibrary(t)
	c := f.newChain(t, Options{})

	// An update written through the store, not the chain, still re-cascades:
	// the saved event carries the same identity as the chapter selection.
	table, err := f.store.Table("chapter")
	require.NoError(t, err)
	moved := c.Tail().Selected().Clone()
	moved.SetRef("book", f.beta.ID)
	_, err = table.Set(moved)
	require.NoError(t, err)

	assert.Equal(t, []string{f.ann.ID, f.beta.ID, f.one.ID}, selections(c))
	requireConsistent(t, c)
}
