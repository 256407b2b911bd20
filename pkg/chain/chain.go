package chain

import (
	"fmt"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Level declares one chain level: the entity type it tracks, an optional
// explicit relation field to the level above (overriding first-match
// resolution), and an optional form capability.
type Level struct {
	Type     string
	Relation string
	Form     Form
}

// Options configures chain behavior.
type Options struct {
	// AutoCreateDefaults fills an empty child slot with a new, unsaved
	// default record instead of leaving it nil.
	AutoCreateDefaults bool
}

// Chain is an ordered sequence of links spanning a path of related entity
// types, parent-to-child. It owns construction, inter-link wiring, the
// initial selection, and re-broadcast of selection-settled events. A Chain
// is not safe for concurrent use.
type Chain struct {
	schema *types.Schema
	store  types.Store
	events types.Notifier

	autoCreateDefaults bool

	links  []*Link
	byType map[string]*Link

	// depth tracks re-entrant operation nesting so the settled hook fires
	// exactly once per completed top-level operation.
	depth   int
	changed bool

	// suspended disables lifecycle handlers while the chain itself issues
	// attachment saves.
	suspended bool

	onSettled func(*Chain)
	onError   func(error)

	closed bool
}

// New builds a chain over the declared levels, resolving the relation for
// every adjacent pair, subscribing to lifecycle events, and performing the
// initial SelectFirst cascade. Resolution failure aborts construction.
//
// events may be nil, in which case the chain reacts only to its own calls.
func New(schema *types.Schema, store types.Store, events types.Notifier, opts Options, levels ...Level) (*Chain, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}

	c := &Chain{
		schema:             schema,
		store:              store,
		events:             events,
		autoCreateDefaults: opts.AutoCreateDefaults,
		byType:             make(map[string]*Link, len(levels)),
	}

	for _, level := range levels {
		etype, err := schema.Type(level.Type)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byType[etype.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLevel, etype.Name)
		}
		table, err := store.Table(etype.Name)
		if err != nil {
			return nil, err
		}

		link := &Link{chain: c, etype: etype, table: table, form: level.Form}
		if link.form != nil {
			link.formState = link.form.Bind(nil)
		}

		if len(c.links) > 0 {
			parent := c.links[len(c.links)-1]
			rel, err := Resolve(parent.etype, etype, level.Relation)
			if err != nil {
				return nil, err
			}
			link.parent = parent
			link.rel = rel
			parent.child = link
		}

		c.links = append(c.links, link)
		c.byType[etype.Name] = link
	}

	if events != nil {
		for _, link := range c.links {
			link.subscribe(events)
		}
	}

	if err := c.SelectFirst(); err != nil {
		c.Close()
		return nil, fmt.Errorf("initial selection: %w", err)
	}
	return c, nil
}

// Len returns the number of links.
func (c *Chain) Len() int { return len(c.links) }

// Link returns the link at the given position, parent-to-child order.
func (c *Chain) Link(i int) *Link { return c.links[i] }

// Links returns the links in parent-to-child order. The slice is shared;
// callers must not mutate it.
func (c *Chain) Links() []*Link { return c.links }

// LinkFor returns the link tracking the given entity type name.
func (c *Chain) LinkFor(typeName string) (*Link, error) {
	link, ok := c.byType[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownType, typeName)
	}
	return link, nil
}

// Head returns the first link.
func (c *Chain) Head() *Link { return c.links[0] }

// Tail returns the last link.
func (c *Chain) Tail() *Link { return c.links[len(c.links)-1] }

// SelectFirst selects the first record available at the head link,
// cascading through the whole chain.
func (c *Chain) SelectFirst() error {
	return c.links[0].SelectFirst()
}

// OnSelectionSettled registers a hook fired once per completed top-level
// operation that changed any selection, however many links the internal
// cascade touched. A typical use is re-rendering forms exactly once per
// user action.
func (c *Chain) OnSelectionSettled(fn func(*Chain)) {
	c.onSettled = fn
}

// OnError registers a hook receiving errors raised inside lifecycle event
// handlers, which have no caller to return to. Unset, such errors are
// dropped.
func (c *Chain) OnError(fn func(error)) {
	c.onError = fn
}

// Close cancels the chain's lifecycle subscriptions. The chain remains
// usable for direct calls but no longer reacts to store events. Idempotent.
func (c *Chain) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, link := range c.links {
		link.unsubscribe()
	}
}

// beginOp enters a (possibly re-entrant) mutating operation. The returned
// func leaves it, firing the settled hook when the outermost operation
// completes with at least one slot changed.
func (c *Chain) beginOp() func() {
	c.depth++
	return func() {
		c.depth--
		if c.depth == 0 && c.changed {
			c.changed = false
			if c.onSettled != nil {
				c.onSettled(c)
			}
		}
	}
}

// markChanged records that a slot changed during the current operation.
func (c *Chain) markChanged() {
	c.changed = true
}

// suspend disables lifecycle delivery until the returned func runs.
func (c *Chain) suspend() func() {
	c.suspended = true
	return func() { c.suspended = false }
}

// notifyErr forwards a handler-context error to the OnError hook.
func (c *Chain) notifyErr(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
