package chain

import "errors"

// Relation resolution errors, fatal at chain construction.
var (
	ErrNoRelation   = errors.New("no relation between entity types")
	ErrNotARelation = errors.New("field does not relate the entity types")
)

// Chain construction errors.
var (
	ErrNoLevels       = errors.New("chain must declare at least one level")
	ErrDuplicateLevel = errors.New("duplicate entity type in chain levels")
)

// Selection errors, recoverable by the caller.
var (
	ErrUnlinkedParent = errors.New("cannot create a record under an unselected parent")
	ErrNoSelection    = errors.New("no record selected")
	ErrNotInSet       = errors.New("record is not in the candidate set")
	ErrNoForm         = errors.New("link has no form capability")
)
