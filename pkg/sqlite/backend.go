// Package sqlite provides the public API for the SQLite storage backend.
// It exposes the factory function while keeping implementation details
// internal.
package sqlite

import (
	"github.com/mesh-intelligence/cascade/internal/sqlite"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Store bundles the two capabilities a backend provides. Both the store and
// notifier views refer to the same underlying backend.
type Store interface {
	types.Store
	types.Notifier
}

// NewStore creates a SQLite-backed store for the declared schema.
// The store is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewStore(schema)
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".cascade",
//	})
//	defer store.Detach()
func NewStore(schema *types.Schema) Store {
	return sqlite.NewBackend(schema)
}
