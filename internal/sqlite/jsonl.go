// This file provides JSONL snapshot persistence with atomic writes. Each
// entity type snapshots to <type>.jsonl in the data directory.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// snapshotPath names the JSONL snapshot file for an entity type.
func snapshotPath(dataDir, typeName string) string {
	return filepath.Join(dataDir, typeName+".jsonl")
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped so a damaged snapshot does
// not block attach.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// persistSnapshot rewrites this table's JSONL snapshot from the database.
func (t *table) persistSnapshot() error {
	return t.backend.tableSnapshot(t.etype.Name)
}

// tableSnapshot rewrites one entity type's JSONL snapshot from the database.
func (b *Backend) tableSnapshot(typeName string) error {
	tbl, err := b.Table(typeName)
	if err != nil {
		return err
	}
	recs, err := tbl.Fetch(nil)
	if err != nil {
		return err
	}

	lines := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling %s %s: %w", typeName, rec.ID, err)
		}
		lines = append(lines, data)
	}
	return writeJSONL(snapshotPath(b.config.DataDir, typeName), lines)
}

// loadSnapshots replays every entity type's JSONL snapshot into the fresh
// database. Caller holds the backend lock; inserts go straight to the
// database without lifecycle events.
func (b *Backend) loadSnapshots() error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, etype := range b.schema.Types() {
		path := snapshotPath(b.config.DataDir, etype.Name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		lines, err := readJSONL(path)
		if err != nil {
			return err
		}
		tbl := b.tables[etype.Name]
		for _, line := range lines {
			var rec types.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			if rec.ID == "" {
				continue
			}
			rec.Type = etype.Name
			if err := tbl.insertSnapshot(tx, &rec); err != nil {
				return fmt.Errorf("replaying %s snapshot: %w", etype.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot replay: %w", err)
	}
	return nil
}
