package types

// SavedHandler receives a record after it was persisted. created reports
// whether the save assigned a new identity. Backends deliver the same
// *Record pointer that was passed to Table.Set, so a handler holding that
// pointer can match by identity of the pointer as well as by ID.
type SavedHandler func(rec *Record, created bool)

// DeleteHandler receives a record immediately before it is removed. The
// record is still fetchable while the handler runs.
type DeleteHandler func(rec *Record)

// Notifier delivers record lifecycle events per entity type. Delivery is
// synchronous and ordered: handlers run before the mutating call returns.
// Subscriptions are scoped; callers must invoke the returned cancel
// function when done (the Chain subscribes at construction and cancels on
// Close).
type Notifier interface {
	// OnSaved subscribes to save events for one entity type.
	OnSaved(typeName string, h SavedHandler) (cancel func())

	// OnBeforeDelete subscribes to pre-delete events for one entity type.
	OnBeforeDelete(typeName string, h DeleteHandler) (cancel func())
}
