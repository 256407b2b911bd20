// Shared helpers for cascade CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/cascade/pkg/chain"
	"github.com/mesh-intelligence/cascade/pkg/memory"
	"github.com/mesh-intelligence/cascade/pkg/sqlite"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

// backendStore bundles the two capabilities the chain needs from a backend.
type backendStore interface {
	types.Store
	types.Notifier
}

// attachStore resolves the data directory, creates the configured backend,
// and attaches it. The caller must defer store.Detach().
func attachStore(schema *types.Schema) (backendStore, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	backend := cliConfig.Backend
	if backend == "" {
		backend = defaultBackend
	}
	cfg := types.Config{
		Backend:            backend,
		DataDir:            dataDir,
		AutoCreateDefaults: cliConfig.AutoCreateDefaults,
	}

	var store backendStore
	switch backend {
	case types.BackendMemory:
		store = memory.NewStore(schema)
	default:
		store = sqlite.NewStore(schema)
	}
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}
	return store, nil
}

// buildChain constructs the configured chain over an attached store. The
// returned cleanup closes the chain and detaches the store.
func buildChain() (*chain.Chain, func(), error) {
	schema, err := cliConfig.buildSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("build schema: %w", err)
	}
	store, err := attachStore(schema)
	if err != nil {
		return nil, nil, err
	}

	opts := chain.Options{AutoCreateDefaults: cliConfig.AutoCreateDefaults}
	c, err := chain.New(schema, store, store, opts, cliConfig.buildLevels()...)
	if err != nil {
		store.Detach()
		return nil, nil, fmt.Errorf("build chain: %w", err)
	}
	cleanup := func() {
		c.Close()
		store.Detach()
	}
	return c, cleanup, nil
}

// parseFilter converts key=value arguments into a typed Filter for the
// entity type. The reserved key "id" matches the record identity.
func parseFilter(etype *types.EntityType, args []string) (types.Filter, error) {
	filter := make(types.Filter, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q (expected key=value)", arg)
		}
		if key == types.FilterID {
			filter[key] = raw
			continue
		}
		field, found := etype.Field(key)
		if !found {
			return nil, fmt.Errorf("unknown field %q on %s", key, etype.Name)
		}
		value, err := convertFieldValue(field, raw)
		if err != nil {
			return nil, err
		}
		filter[key] = value
	}
	return filter, nil
}

// convertFieldValue parses a raw flag value per the declared field type.
// Reference sets accept a single identity (set-contains in filters).
func convertFieldValue(field types.Field, raw string) (any, error) {
	switch field.Type {
	case types.FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not an integer", field.Name, raw)
		}
		return n, nil
	case types.FieldBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a boolean", field.Name, raw)
		}
		return b, nil
	case types.FieldTimestamp:
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return nil, fmt.Errorf("field %s: %q is not an RFC 3339 timestamp", field.Name, raw)
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// chainState is the JSON shape of one chain level for --json output.
type chainState struct {
	Type       string        `json:"type"`
	Selected   *types.Record `json:"selected"`
	Persisted  bool          `json:"persisted"`
	Candidates int           `json:"candidates"`
}

// printChain renders the settled chain state, one line per level in text
// mode or a JSON array with --json.
func printChain(c *chain.Chain) error {
	states := make([]chainState, 0, c.Len())
	for _, link := range c.Links() {
		candidates, err := link.Candidates()
		if err != nil {
			return fmt.Errorf("candidates for %s: %w", link.Type().Name, err)
		}
		states = append(states, chainState{
			Type:       link.Type().Name,
			Selected:   link.Selected(),
			Persisted:  link.IsPersisted(),
			Candidates: len(candidates),
		})
	}

	if flagJSON {
		out, err := json.MarshalIndent(states, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	for _, s := range states {
		fmt.Printf("%-12s %s (%d candidates)\n", s.Type+":", describeSelection(s), s.Candidates)
	}
	return nil
}

// describeSelection summarizes a level's selection for text output.
func describeSelection(s chainState) string {
	if s.Selected == nil {
		return "(none)"
	}
	label := firstTextValue(s.Selected)
	if !s.Persisted {
		if label == "" {
			return "(new)"
		}
		return fmt.Sprintf("(new) %s", label)
	}
	if label == "" {
		return s.Selected.ID
	}
	return fmt.Sprintf("%s [%s]", label, s.Selected.ID)
}

// firstTextValue returns the first non-empty text field value of a record.
func firstTextValue(rec *types.Record) string {
	et := cliConfig.entityType(rec.Type)
	if et == nil {
		return ""
	}
	for _, f := range et.Fields {
		if f.Type == types.FieldText {
			if v := rec.Text(f.Name); v != "" {
				return v
			}
		}
	}
	return ""
}

// entityType returns the declared entity config by name, or nil.
func (c *chainConfig) entityType(name string) *entityConfig {
	for i := range c.Entities {
		if c.Entities[i].Name == name {
			return &c.Entities[i]
		}
	}
	return nil
}
