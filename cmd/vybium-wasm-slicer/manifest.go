package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

// ManifestName is the file name of the manifest inside the output directory
const ManifestName = "manifest.json"

// ManifestSlice describes one slice of a run
type ManifestSlice struct {
	Index   int                  `json:"index"`
	Pre     [cursor.Width]uint64 `json:"pre"`
	Post    [cursor.Width]uint64 `json:"post"`
	Digest  string               `json:"digest"`
	Steps   int                  `json:"steps"`
	Final   bool                 `json:"final,omitempty"`
	Padding bool                 `json:"padding,omitempty"`
	Skipped bool                 `json:"skipped,omitempty"`

	// Tables is empty for skipped slices, which are not written
	Tables *backend.Destination `json:"tables,omitempty"`
}

// Manifest indexes the artifacts of one slicing run
type Manifest struct {
	Name      string          `json:"name"`
	K         int             `json:"k"`
	RowBudget int             `json:"row_budget"`
	Slices    []ManifestSlice `json:"slices"`
	ChainRoot string          `json:"chain_root"`
}

func writeManifest(dir string, m *Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.Resource(err, "write %s", path)
	}
	return path, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Resource(err, "read %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidInput, err, "parse manifest %s", path)
	}
	if len(m.Slices) == 0 {
		return nil, errs.Input("manifest %s lists no slices", path)
	}
	return &m, nil
}
