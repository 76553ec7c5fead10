// Package artifact persists run outputs as canonical JSON files with
// content hashes. The encoding is deterministic (sorted object keys,
// fixed column order) so two runs with identical outputs produce
// byte-identical artifacts and therefore identical hashes.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calcstack/calcbook/internal/engine"
	"github.com/calcstack/calcbook/pkg/table"
)

// Artifact kinds, one file each.
const (
	KindCells   = "cells"
	KindScalars = "scalars"
	KindTables  = "tables"
)

// Kinds lists the artifact kinds in file order.
var Kinds = []string{KindCells, KindScalars, KindTables}

// Manifest records what a run produced and the hash of each artifact.
type Manifest struct {
	Workbook  string            `json:"workbook"`
	RunID     string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	Params    map[string]any    `json:"params"`
	Hashes    map[string]string `json:"hashes"`
}

type cellsDoc struct {
	Sheets map[string]map[string]any `json:"sheets"`
	Errors map[string]string         `json:"errors"`
}

type tableDoc struct {
	Columns []columnDoc `json:"columns"`
	Rows    int         `json:"rows"`
}

type columnDoc struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Encode renders one artifact kind as canonical JSON.
func Encode(kind string, res *engine.Results) ([]byte, error) {
	switch kind {
	case KindCells:
		return marshalCanonical(cellsDoc{Sheets: res.Sheets, Errors: res.CellErrors})
	case KindScalars:
		return marshalCanonical(res.Scalars)
	case KindTables:
		docs := make(map[string]tableDoc, len(res.Tables))
		for name, t := range res.Tables {
			docs[name] = encodeTable(t)
		}
		return marshalCanonical(docs)
	}
	return nil, fmt.Errorf("unknown artifact kind %q", kind)
}

func encodeTable(t *table.Table) tableDoc {
	names := t.ColumnNames()
	cols := make([]columnDoc, len(names))
	for i, name := range names {
		values, _ := t.Column(name)
		cols[i] = columnDoc{Name: name, Values: values}
	}
	return tableDoc{Columns: cols, Rows: t.NumRows()}
}

// marshalCanonical produces stable bytes: encoding/json already sorts
// map keys, and the encoder is configured not to escape HTML so the
// output is a pure function of the value.
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the hex sha256 of encoded artifact bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Write stores a run's artifacts under dir/<runID>/ and returns the
// manifest, which is also written alongside them.
func Write(dir, runID string, res *engine.Results) (*Manifest, error) {
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	m := &Manifest{
		Workbook:  res.Workbook,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Params:    res.Params,
		Hashes:    make(map[string]string, len(Kinds)),
	}
	for _, kind := range Kinds {
		data, err := Encode(kind, res)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(runDir, kind+".json"), data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s artifact: %w", kind, err)
		}
		m.Hashes[kind] = Hash(data)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(runDir, "manifest.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

// ReadManifest loads a run's manifest from dir/<runID>/.
func ReadManifest(dir, runID string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, runID, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// ReadKind loads one stored artifact's raw bytes.
func ReadKind(dir, runID, kind string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, runID, kind+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s artifact: %w", kind, err)
	}
	return data, nil
}

// Verify rehashes a run's stored artifacts against its manifest and
// returns the kinds whose content no longer matches, sorted.
func Verify(dir, runID string) ([]string, error) {
	m, err := ReadManifest(dir, runID)
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, kind := range Kinds {
		data, err := ReadKind(dir, runID, kind)
		if err != nil {
			return nil, err
		}
		if Hash(data) != m.Hashes[kind] {
			bad = append(bad, kind)
		}
	}
	return bad, nil
}
