// Package sqlite implements the SQLite storage backend. The relational
// schema is generated from the declared entity schema: one table per entity
// type, one junction table per reference-set field. JSONL snapshots in the
// data directory are the durable source of truth; they are rewritten
// atomically after each mutation and loaded on Attach.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cascade/internal/lifecycle"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

const dbFileName = "cascade.db"

// identPattern restricts entity type and field names used as SQL
// identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compile-time interface checks.
var (
	_ types.Store    = (*Backend)(nil)
	_ types.Notifier = (*Backend)(nil)
)

// Backend implements the Store interface using SQLite as the query engine
// and JSONL files as the source of truth.
type Backend struct {
	*lifecycle.Dispatcher

	mu       sync.RWMutex
	attached bool
	config   types.Config
	schema   *types.Schema
	db       *sql.DB
	tables   map[string]*table
}

// NewBackend creates a new SQLite backend for the declared schema.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(schema *types.Schema) *Backend {
	return &Backend{
		Dispatcher: lifecycle.NewDispatcher(),
		schema:     schema,
		tables:     make(map[string]*table),
	}
}

// Table returns the table for the given entity type name.
func (b *Backend) Table(typeName string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	t, ok := b.tables[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownType, typeName)
	}
	return t, nil
}

// Attach creates the data directory if needed, initializes the SQLite
// schema from the declared entity types, and loads any JSONL snapshots.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if err := validateIdentifiers(b.schema); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// The database file is a rebuildable cache of the JSONL snapshots;
	// start from a fresh schema on every attach.
	dbPath := filepath.Join(dataDir, dbFileName)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ddlFor(b.schema)); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}

	b.db = db
	b.config = config
	b.config.DataDir = dataDir
	for _, etype := range b.schema.Types() {
		b.tables[etype.Name] = &table{backend: b, etype: etype}
	}
	b.attached = true

	if err := b.loadSnapshots(); err != nil {
		b.attached = false
		b.tables = make(map[string]*table)
		db.Close()
		return fmt.Errorf("loading snapshots: %w", err)
	}
	return nil
}

// Detach closes the database. Idempotent: multiple calls succeed.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil
	}
	b.attached = false
	b.tables = make(map[string]*table)
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		b.db = nil
	}
	return nil
}

// validateIdentifiers rejects schema names that cannot be used as SQL
// identifiers.
func validateIdentifiers(schema *types.Schema) error {
	for _, etype := range schema.Types() {
		if !identPattern.MatchString(etype.Name) {
			return fmt.Errorf("%w: %q is not a valid identifier", types.ErrUnknownType, etype.Name)
		}
		for _, f := range etype.Fields {
			if !identPattern.MatchString(f.Name) {
				return fmt.Errorf("%w: %s.%q is not a valid identifier", types.ErrInvalidField, etype.Name, f.Name)
			}
		}
	}
	return nil
}
