// Package lifecycle implements synchronous record lifecycle event dispatch
// shared by the storage backends. Handlers run in subscription order before
// the mutating call returns, per the types.Notifier contract.
package lifecycle

import (
	"sync"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

type savedSub struct {
	id int
	h  types.SavedHandler
}

type deleteSub struct {
	id int
	h  types.DeleteHandler
}

// Dispatcher implements types.Notifier with per-entity-type subscription
// lists. Cancel functions are safe to call more than once. The zero value
// is not usable; call NewDispatcher.
type Dispatcher struct {
	mu      sync.Mutex
	nextID  int
	saved   map[string][]savedSub
	deletes map[string][]deleteSub
}

var _ types.Notifier = (*Dispatcher)(nil)

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		saved:   make(map[string][]savedSub),
		deletes: make(map[string][]deleteSub),
	}
}

// OnSaved subscribes to save events for one entity type.
func (d *Dispatcher) OnSaved(typeName string, h types.SavedHandler) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.saved[typeName] = append(d.saved[typeName], savedSub{id: id, h: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.saved[typeName]
		for i, sub := range subs {
			if sub.id == id {
				d.saved[typeName] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// OnBeforeDelete subscribes to pre-delete events for one entity type.
func (d *Dispatcher) OnBeforeDelete(typeName string, h types.DeleteHandler) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.deletes[typeName] = append(d.deletes[typeName], deleteSub{id: id, h: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		subs := d.deletes[typeName]
		for i, sub := range subs {
			if sub.id == id {
				d.deletes[typeName] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// EmitSaved delivers a saved event. The handler list is snapshotted so a
// handler may subscribe or cancel during delivery.
func (d *Dispatcher) EmitSaved(rec *types.Record, created bool) {
	d.mu.Lock()
	subs := append([]savedSub(nil), d.saved[rec.Type]...)
	d.mu.Unlock()
	for _, sub := range subs {
		sub.h(rec, created)
	}
}

// EmitBeforeDelete delivers a pre-delete event.
func (d *Dispatcher) EmitBeforeDelete(rec *types.Record) {
	d.mu.Lock()
	subs := append([]deleteSub(nil), d.deletes[rec.Type]...)
	d.mu.Unlock()
	for _, sub := range subs {
		sub.h(rec)
	}
}
