// Package memory provides the public API for the in-memory storage backend,
// suitable for tests and ephemeral sessions.
package memory

import (
	"github.com/mesh-intelligence/cascade/internal/memory"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

// Store bundles the two capabilities a backend provides. Both the store and
// notifier views refer to the same underlying backend.
type Store interface {
	types.Store
	types.Notifier
}

// NewStore creates an in-memory store for the declared schema.
// The store is not attached; call Attach with a Config to initialize.
func NewStore(schema *types.Schema) Store {
	return memory.NewStore(schema)
}
