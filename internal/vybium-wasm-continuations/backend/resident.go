package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

// ResidentHandle holds the sub-tables in memory
type ResidentHandle struct {
	index  int
	tables *Tables
}

// Index returns the slice index
func (h *ResidentHandle) Index() int { return h.index }

// ResidentBackend keeps every sub-table in memory
type ResidentBackend struct{}

// NewResident creates a resident backend
func NewResident() *ResidentBackend {
	return &ResidentBackend{}
}

// Kind returns Resident
func (b *ResidentBackend) Kind() Kind { return Resident }

// Build wraps tables in a handle. The tables must not be mutated afterwards.
func (b *ResidentBackend) Build(index int, tables *Tables) (Handle, error) {
	if tables == nil {
		return nil, errs.Input("slice %d: tables cannot be nil", index)
	}
	return &ResidentHandle{index: index, tables: tables}, nil
}

func residentHandle(h Handle) (*ResidentHandle, error) {
	rh, ok := h.(*ResidentHandle)
	if !ok {
		return nil, errs.Input("handle %T does not belong to the resident backend", h)
	}
	return rh, nil
}

// Materialize returns the tables held by the handle
func (b *ResidentBackend) Materialize(h Handle) (*Tables, error) {
	rh, err := residentHandle(h)
	if err != nil {
		return nil, err
	}
	return rh.tables, nil
}

// Write serializes each sub-table to its destination path
func (b *ResidentBackend) Write(h Handle, dst Destination) error {
	rh, err := residentHandle(h)
	if err != nil {
		return err
	}
	for _, s := range subTables {
		data, err := encode(s, rh.tables)
		if err != nil {
			return fmt.Errorf("slice %d: encode %s: %w", rh.index, s, err)
		}
		path := dst.Path(s)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.Resource(err, "slice %d: create directory for %s", rh.index, path)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errs.Resource(err, "slice %d: write %s", rh.index, path)
		}
	}
	return nil
}
