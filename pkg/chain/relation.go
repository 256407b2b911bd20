package chain

import (
	"fmt"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Relation kinds. Forward and ReverseCollection are the two orientations of
// a plain to-one reference: Forward when the child type declares the field,
// ReverseCollection when the parent type does. A unique reference is
// OneToOne regardless of orientation, and a reference set on either side is
// ManyToMany.
const (
	Forward           = "forward"
	ReverseCollection = "reverse_collection"
	ManyToMany        = "many_to_many"
	OneToOne          = "one_to_one"
)

// Relation describes how two adjacent entity types connect, as resolved for
// one parent/child pair of chain levels.
type Relation struct {
	// Kind is one of Forward, ReverseCollection, ManyToMany, OneToOne.
	Kind string

	// Field is the name of the declaring relation field.
	Field string

	// OnParent reports whether the declaring field lives on the parent
	// entity type rather than the child.
	OnParent bool
}

// ChildHeldRef reports whether the relation is a plain reference held by
// the child record. Such references are staged on select and persisted by
// the child's own save.
func (r *Relation) ChildHeldRef() bool {
	return !r.OnParent && r.Kind != ManyToMany
}

// Resolve determines the relation connecting a parent entity type to a
// child entity type.
//
// When explicitField is non-empty it must name a relation field on either
// type targeting the other; otherwise ErrNotARelation is returned. When it
// is empty, relation fields on the parent are scanned before fields on the
// child and the first field targeting the other type wins. No
// disambiguation is attempted when several candidates exist; declare an
// explicit field to override. ErrNoRelation is returned when no candidate
// is found.
func Resolve(parent, child *types.EntityType, explicitField string) (*Relation, error) {
	if explicitField != "" {
		if f, ok := parent.Field(explicitField); ok && f.IsRelation() && f.Target == child.Name {
			return classify(f, true), nil
		}
		if f, ok := child.Field(explicitField); ok && f.IsRelation() && f.Target == parent.Name {
			return classify(f, false), nil
		}
		return nil, fmt.Errorf("%w: %q between %s and %s",
			ErrNotARelation, explicitField, parent.Name, child.Name)
	}

	for _, f := range parent.RelationFields() {
		if f.Target == child.Name {
			return classify(f, true), nil
		}
	}
	for _, f := range child.RelationFields() {
		if f.Target == parent.Name {
			return classify(f, false), nil
		}
	}
	return nil, fmt.Errorf("%w: %s and %s", ErrNoRelation, parent.Name, child.Name)
}

// classify maps a declared relation field to a Relation kind.
func classify(f types.Field, onParent bool) *Relation {
	rel := &Relation{Field: f.Name, OnParent: onParent}
	switch {
	case f.Type == types.FieldRefSet:
		rel.Kind = ManyToMany
	case f.Unique:
		rel.Kind = OneToOne
	case onParent:
		rel.Kind = ReverseCollection
	default:
		rel.Kind = Forward
	}
	return rel
}
