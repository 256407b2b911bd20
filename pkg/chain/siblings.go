package chain

import (
	"fmt"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// siblingSet navigates an ordered candidate set. Ordering is the entity
// type's declared ordering, applied by the store; membership is a linear
// scan, acceptable because candidate sets are scoped to one parent's
// children rather than the whole store.
type siblingSet []*types.Record

func (s siblingSet) first() *types.Record {
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

func (s siblingSet) last() *types.Record {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

func (s siblingSet) indexOf(rec *types.Record) int {
	if rec == nil || rec.ID == "" {
		return -1
	}
	for i, member := range s {
		if member.ID == rec.ID {
			return i
		}
	}
	return -1
}

func (s siblingSet) next(rec *types.Record) *types.Record {
	i := s.indexOf(rec)
	if i < 0 || i+1 >= len(s) {
		return nil
	}
	return s[i+1]
}

func (s siblingSet) previous(rec *types.Record) *types.Record {
	i := s.indexOf(rec)
	if i <= 0 {
		return nil
	}
	return s[i-1]
}

// Candidates returns this level's candidate set: the parent's children when
// the parent link exists and is selected, all records of this entity type
// otherwise. The set is ordered per the entity type's ordering rule.
func (l *Link) Candidates() ([]*types.Record, error) {
	if l.parent != nil && l.parent.IsSelected() {
		return l.childrenOf(l.parent.selected)
	}
	return l.table.Fetch(nil)
}

// First returns the first candidate, or nil when the set is empty.
func (l *Link) First() (*types.Record, error) {
	set, err := l.Candidates()
	if err != nil {
		return nil, err
	}
	return siblingSet(set).first(), nil
}

// Last returns the last candidate, or nil when the set is empty.
func (l *Link) Last() (*types.Record, error) {
	set, err := l.Candidates()
	if err != nil {
		return nil, err
	}
	return siblingSet(set).last(), nil
}

// NextSibling returns the candidate immediately after the current
// selection, or nil past the end. A missing selection, or a selection no
// longer in the candidate set, yields nil rather than an error.
func (l *Link) NextSibling() (*types.Record, error) {
	if l.selected == nil {
		return nil, nil
	}
	set, err := l.Candidates()
	if err != nil {
		return nil, err
	}
	return siblingSet(set).next(l.selected), nil
}

// PreviousSibling returns the candidate immediately before the current
// selection, or nil past the start. A missing selection, or a selection no
// longer in the candidate set, yields nil rather than an error.
func (l *Link) PreviousSibling() (*types.Record, error) {
	if l.selected == nil {
		return nil, nil
	}
	set, err := l.Candidates()
	if err != nil {
		return nil, err
	}
	return siblingSet(set).previous(l.selected), nil
}

// Index returns the position of the current selection within the candidate
// set. Returns ErrNoSelection when nothing is selected and ErrNotInSet when
// the selection is not a member, which can happen transiently during a
// cascade.
func (l *Link) Index() (int, error) {
	if l.selected == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSelection, l.etype.Name)
	}
	set, err := l.Candidates()
	if err != nil {
		return 0, err
	}
	i := siblingSet(set).indexOf(l.selected)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s %s", ErrNotInSet, l.etype.Name, l.selected.ID)
	}
	return i, nil
}
