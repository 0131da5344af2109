package statedb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/asheshgoplani/chatjump/internal/engine"
)

// legacyExport accepts the shapes older exports used: a bare array, an
// object keyed by the storage key, or a get-index reply.
type legacyExport struct {
	StorageKey []engine.MessageEntry `json:"chatjump_index"`
	Index      []engine.MessageEntry `json:"index"`
}

// ImportLegacyJSON reads an exported index from jsonPath and stores it as the
// index record, replacing the current one. Entries without an id or text and
// repeated ids are dropped; at most max entries are kept. It returns how many
// entries were imported and how many were skipped.
func ImportLegacyJSON(ctx context.Context, jsonPath string, db *StateDB, max int) (int, int, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", jsonPath, err)
	}

	entries, err := decodeLegacy(data)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", jsonPath, err)
	}

	idx := engine.NewIndex(max)
	kept := idx.Load(validEntries(entries))
	skipped := len(entries) - kept

	if err := db.SaveIndex(ctx, idx.Entries()); err != nil {
		return 0, 0, err
	}
	return kept, skipped, nil
}

func decodeLegacy(data []byte) ([]engine.MessageEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	if trimmed[0] == '[' {
		var entries []engine.MessageEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var wrapped legacyExport
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.StorageKey != nil {
		return wrapped.StorageKey, nil
	}
	return wrapped.Index, nil
}

func validEntries(entries []engine.MessageEntry) []engine.MessageEntry {
	out := make([]engine.MessageEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Text == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
