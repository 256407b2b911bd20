package chain

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Link is one level of a chain. It exclusively owns the reference to the
// currently selected record for its entity type and carries the cascade
// logic triggered by selection changes. The slot is mutated only by the
// link itself, in response to a direct call or a cascade invocation from an
// immediate neighbor.
type Link struct {
	chain *Chain
	etype *types.EntityType
	table types.Table

	parent *Link
	child  *Link

	// rel is the relation connecting this link to its parent link.
	// Nil on the head link.
	rel *Relation

	form      Form
	formState FormState

	selected *types.Record

	// attaching suppresses the saved handler while the link persists its
	// own attachment, so the nested save event does not retrigger it.
	attaching bool

	cancels []func()
}

// Type returns the entity type of this link.
func (l *Link) Type() *types.EntityType { return l.etype }

// Parent returns the parent link, or nil on the head link.
func (l *Link) Parent() *Link { return l.parent }

// Child returns the child link, or nil on the tail link.
func (l *Link) Child() *Link { return l.child }

// Selected returns the currently selected record, or nil.
func (l *Link) Selected() *types.Record { return l.selected }

// IsSelected reports whether a record is selected.
func (l *Link) IsSelected() bool { return l.selected != nil }

// IsPersisted reports whether a record is selected and has an identity.
func (l *Link) IsPersisted() bool { return l.selected != nil && l.selected.Persisted() }

// Select sets this link's slot to the given record (or clears it with nil)
// and cascades the change to every adjacent level.
//
// Selecting an unsaved record while the parent link exists but has no
// selection fails with ErrUnlinkedParent before any state is mutated: a new
// child cannot be composed under an unselected parent. On success, when the
// relation to the parent is a child-held reference and the new record is
// unsaved, the reference field is staged to the parent's identity; the
// write is persisted by the record's next save.
func (l *Link) Select(rec *types.Record) error {
	if rec != nil && rec.Type != l.etype.Name {
		return fmt.Errorf("%w: selecting %s on %s link", types.ErrTypeMismatch, rec.Type, l.etype.Name)
	}
	if rec != nil && !rec.Persisted() && l.parent != nil && !l.parent.IsSelected() {
		return fmt.Errorf("%w: new %s under unselected %s",
			ErrUnlinkedParent, l.etype.Name, l.parent.etype.Name)
	}

	done := l.chain.beginOp()
	defer done()

	l.setSelected(rec)
	l.stageParentRef()

	if l.parent != nil {
		if err := l.parent.cascadeFromChild(); err != nil {
			return err
		}
	}
	if l.child != nil {
		if err := l.child.cascadeFromParent(); err != nil {
			return err
		}
	}
	return nil
}

// SelectBy resolves exactly one record via the store's unique lookup and
// selects it. ErrNotFound and ErrAmbiguous surface unchanged from the
// adapter; chain state is untouched on failure.
func (l *Link) SelectBy(filter types.Filter) error {
	rec, err := l.table.Get(filter)
	if err != nil {
		return err
	}
	return l.Select(rec)
}

// SelectFirst selects the first candidate, or nil when the set is empty.
func (l *Link) SelectFirst() error {
	rec, err := l.First()
	if err != nil {
		return err
	}
	return l.Select(rec)
}

// SelectLast selects the last candidate, or nil when the set is empty.
func (l *Link) SelectLast() error {
	rec, err := l.Last()
	if err != nil {
		return err
	}
	return l.Select(rec)
}

// SelectNextSibling selects the candidate after the current selection,
// or nil past the end.
func (l *Link) SelectNextSibling() error {
	rec, err := l.NextSibling()
	if err != nil {
		return err
	}
	return l.Select(rec)
}

// SelectPreviousSibling selects the candidate before the current selection,
// or nil past the start.
func (l *Link) SelectPreviousSibling() error {
	rec, err := l.PreviousSibling()
	if err != nil {
		return err
	}
	return l.Select(rec)
}

// Save persists the current selection through the store. The saved event
// this emits drives deferred parent attachment for new records and
// re-cascading for moved ones.
func (l *Link) Save() error {
	if l.selected == nil {
		return fmt.Errorf("%w: %s", ErrNoSelection, l.etype.Name)
	}
	if _, err := l.table.Set(l.selected); err != nil {
		return fmt.Errorf("saving %s: %w", l.etype.Name, err)
	}
	return nil
}

// Remove deletes the current selection from the store. The before-delete
// event shifts the selection to the previous sibling, else the next, else
// nil, cascading to every level below. Removing an unsaved selection just
// clears the slot.
func (l *Link) Remove() error {
	if l.selected == nil {
		return fmt.Errorf("%w: %s", ErrNoSelection, l.etype.Name)
	}
	if !l.selected.Persisted() {
		return l.Select(nil)
	}
	if err := l.table.Delete(l.selected.ID); err != nil {
		return fmt.Errorf("deleting %s: %w", l.etype.Name, err)
	}
	return nil
}

// Children returns the candidate set for the child level, computed from the
// current selection. The set is empty when nothing is selected or the tail
// link is reached.
func (l *Link) Children() ([]*types.Record, error) {
	if l.child == nil || l.selected == nil {
		return []*types.Record{}, nil
	}
	return l.child.childrenOf(l.selected)
}

// setSelected mutates the slot, rebinds the form capability, and marks the
// chain changed for settled-hook delivery.
func (l *Link) setSelected(rec *types.Record) {
	l.selected = rec
	if l.form != nil {
		l.formState = l.form.Bind(rec)
	}
	l.chain.markChanged()
}

// stageParentRef stages the child-held reference field to the parent's
// selected identity. Only unsaved records are staged: a persisted record
// keeps its stored reference, and selecting it re-parents the chain upward
// instead.
func (l *Link) stageParentRef() {
	if l.selected == nil || l.selected.Persisted() {
		return
	}
	if l.rel == nil || !l.rel.ChildHeldRef() {
		return
	}
	if l.parent == nil || !l.parent.IsPersisted() {
		return
	}
	parentID := l.parent.selected.ID
	if l.selected.Ref(l.rel.Field) != parentID {
		l.selected.SetRef(l.rel.Field, parentID)
	}
}

// childrenOf returns this link's candidate records beneath the given parent
// record, per the relation to the parent. Ordered by this entity type's
// ordering rule; empty when the parent record is nil or unsaved.
func (l *Link) childrenOf(parentRec *types.Record) ([]*types.Record, error) {
	if parentRec == nil || !parentRec.Persisted() {
		return []*types.Record{}, nil
	}
	rel := l.rel
	switch {
	case rel.Kind == ManyToMany && rel.OnParent:
		ids := parentRec.RefSet(rel.Field)
		if len(ids) == 0 {
			return []*types.Record{}, nil
		}
		return l.table.Fetch(types.Filter{types.FilterID: ids})
	case rel.Kind == ManyToMany:
		return l.table.Fetch(types.Filter{rel.Field: parentRec.ID})
	case rel.OnParent:
		id := parentRec.Ref(rel.Field)
		if id == "" {
			return []*types.Record{}, nil
		}
		return l.table.Fetch(types.Filter{types.FilterID: id})
	default:
		return l.table.Fetch(types.Filter{rel.Field: parentRec.ID})
	}
}

// firstParent returns the first parent-type record reachable from the
// current selection through the relation inverse, or nil when none is.
func (l *Link) firstParent() (*types.Record, error) {
	if l.selected == nil || l.parent == nil {
		return nil, nil
	}
	rel := l.rel
	parentTable := l.parent.table
	switch {
	case rel.Kind == ManyToMany && rel.OnParent:
		return firstOf(parentTable.Fetch(types.Filter{rel.Field: l.selected.ID}))
	case rel.Kind == ManyToMany:
		ids := l.selected.RefSet(rel.Field)
		if len(ids) == 0 {
			return nil, nil
		}
		return firstOf(parentTable.Fetch(types.Filter{types.FilterID: ids}))
	case rel.OnParent:
		return firstOf(parentTable.Fetch(types.Filter{rel.Field: l.selected.ID}))
	default:
		id := l.selected.Ref(rel.Field)
		if id == "" {
			return nil, nil
		}
		rec, err := parentTable.Get(types.Filter{types.FilterID: id})
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return rec, err
	}
}

func firstOf(set []*types.Record, err error) (*types.Record, error) {
	if err != nil {
		return nil, err
	}
	return siblingSet(set).first(), nil
}

// cascadeFromChild reselects this link after its child link's selection
// changed. A nil or unsaved child selection is left alone so a new,
// not-yet-attached child can be composed before attachment; a child already
// in this link's children-set is already consistent. Otherwise the slot
// moves to the first parent reachable from the child and the change
// recurses to this link's own parent.
func (l *Link) cascadeFromChild() error {
	cs := l.child.selected
	if cs == nil || !cs.Persisted() {
		return nil
	}
	kids, err := l.Children()
	if err != nil {
		return err
	}
	if types.ContainsRecord(kids, cs) {
		return nil
	}
	parentRec, err := l.child.firstParent()
	if err != nil {
		return err
	}
	l.setSelected(parentRec)
	if l.parent != nil {
		return l.parent.cascadeFromChild()
	}
	return nil
}

// cascadeFromParent reselects this link after its parent link's selection
// changed. An unselected or unsaved parent empties the slot; otherwise the
// first of the parent's children is selected, or a new unsaved default
// record when the chain auto-creates defaults, else nil. The change then
// recurses to this link's own child.
func (l *Link) cascadeFromParent() error {
	parentRec := l.parent.selected
	if parentRec == nil || !parentRec.Persisted() {
		l.setSelected(nil)
	} else {
		kids, err := l.childrenOf(parentRec)
		if err != nil {
			return err
		}
		switch {
		case len(kids) > 0:
			l.setSelected(kids[0])
		case l.chain.autoCreateDefaults:
			l.setSelected(l.etype.NewRecord())
			l.stageParentRef()
		default:
			l.setSelected(nil)
		}
	}
	if l.child != nil {
		return l.child.cascadeFromParent()
	}
	return nil
}

// matches reports whether a lifecycle event subject is this link's current
// selection. The store assigns identities in place, so a record saved
// through the slot matches by pointer; anything else matches by identity.
func (l *Link) matches(rec *types.Record) bool {
	if l.selected == nil || rec == nil {
		return false
	}
	if rec == l.selected {
		return true
	}
	return rec.ID != "" && rec.ID == l.selected.ID
}

// handleSaved reacts to a saved event for this link's entity type.
//
// A newly created record with a parent link is attached to the parent. A
// non-created save is treated as a possible move: the parent re-cascades
// from this child and the child re-cascades from this parent. Created saves
// deliberately do not cascade downward, so several new records can be
// composed at different levels of the chain before saving each one.
func (l *Link) handleSaved(rec *types.Record, created bool) {
	if l.chain.suspended || l.attaching {
		return
	}
	if !l.matches(rec) {
		return
	}

	done := l.chain.beginOp()
	defer done()

	// A save issued outside the chain delivers a different pointer with the
	// same identity; adopt it so cascades read the stored field values.
	if rec != l.selected {
		l.setSelected(rec)
	}

	if created && l.parent != nil {
		l.attachToParent(rec)
	}
	if !created {
		if l.parent != nil {
			if err := l.parent.cascadeFromChild(); err != nil {
				l.chain.notifyErr(fmt.Errorf("cascade after %s save: %w", l.etype.Name, err))
			}
		}
		if l.child != nil {
			if err := l.child.cascadeFromParent(); err != nil {
				l.chain.notifyErr(fmt.Errorf("cascade after %s save: %w", l.etype.Name, err))
			}
		}
	}
}

// attachToParent persists the link between a newly created record and the
// parent's selection. Many-to-many sets gain the parent identity through an
// explicit add; parent-held references are written on the parent record.
// Child-held references were staged during Select and are already persisted
// by the save that triggered this handler.
func (l *Link) attachToParent(rec *types.Record) {
	parentRec := l.parent.selected
	if parentRec == nil || !parentRec.Persisted() {
		return
	}
	rel := l.rel
	switch {
	case rel.Kind == ManyToMany && !rel.OnParent:
		if rec.HasRef(rel.Field, parentRec.ID) {
			return
		}
		rec.AddRef(rel.Field, parentRec.ID)
		l.attaching = true
		_, err := l.table.Set(rec)
		l.attaching = false
		if err != nil {
			l.chain.notifyErr(fmt.Errorf("attaching %s to %s: %w", l.etype.Name, l.parent.etype.Name, err))
		}
	case rel.Kind == ManyToMany && rel.OnParent:
		if parentRec.HasRef(rel.Field, rec.ID) {
			return
		}
		parentRec.AddRef(rel.Field, rec.ID)
		l.saveParentAttached(parentRec)
	case rel.OnParent:
		if parentRec.Ref(rel.Field) == rec.ID {
			return
		}
		parentRec.SetRef(rel.Field, rec.ID)
		l.saveParentAttached(parentRec)
	}
}

// saveParentAttached persists the parent record with lifecycle delivery
// suspended, so the parent link does not treat the attachment write as a
// move.
func (l *Link) saveParentAttached(parentRec *types.Record) {
	resume := l.chain.suspend()
	defer resume()
	if _, err := l.parent.table.Set(parentRec); err != nil {
		l.chain.notifyErr(fmt.Errorf("attaching %s to %s: %w", l.etype.Name, l.parent.etype.Name, err))
	}
}

// handleBeforeDelete reacts to an imminent deletion of the current
// selection by shifting to the previous sibling, else the next, else nil.
// It runs while the record is still fetchable, so sibling positions are
// computed against the pre-delete candidate set.
func (l *Link) handleBeforeDelete(rec *types.Record) {
	if l.chain.suspended || l.attaching {
		return
	}
	if !l.matches(rec) {
		return
	}

	replacement, err := l.PreviousSibling()
	if err == nil && replacement == nil {
		replacement, err = l.NextSibling()
	}
	if err != nil {
		l.chain.notifyErr(fmt.Errorf("reselecting after %s delete: %w", l.etype.Name, err))
		replacement = nil
	}
	if err := l.Select(replacement); err != nil {
		l.chain.notifyErr(fmt.Errorf("reselecting after %s delete: %w", l.etype.Name, err))
	}
}

// subscribe wires this link to the chain's notifier.
func (l *Link) subscribe(events types.Notifier) {
	l.cancels = append(l.cancels,
		events.OnSaved(l.etype.Name, l.handleSaved),
		events.OnBeforeDelete(l.etype.Name, l.handleBeforeDelete),
	)
}

// unsubscribe cancels the link's notifier subscriptions.
func (l *Link) unsubscribe() {
	for _, cancel := range l.cancels {
		cancel()
	}
	l.cancels = nil
}
