// Package backend stores the bulky sub-tables of a slice.
//
// A slice carries three sub-tables: the event table (its steps), the frame
// table and the external host call table. The resident backend keeps them
// in memory. The staged backend serializes each one to its own file as soon
// as the slice is built and keeps only paths and checksums, so traces far
// larger than memory can be sliced.
package backend

import (
	"fmt"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Kind selects a backend strategy
type Kind string

const (
	Resident Kind = "resident"
	Staged   Kind = "staged"
)

// SubTable identifies one of the three per-slice artifacts
type SubTable int

const (
	EventTable SubTable = iota
	FrameTable
	ExternalHostCallTable
)

// String returns the artifact suffix of the sub-table
func (s SubTable) String() string {
	switch s {
	case EventTable:
		return "etable"
	case FrameTable:
		return "frame"
	case ExternalHostCallTable:
		return "external_host"
	default:
		return "unknown"
	}
}

// Tables is the sub-table payload of one slice
type Tables struct {
	EventTable            []trace.Step
	FrameTable            frame.Table
	ExternalHostCallTable []trace.ExternalHostCall
}

// Destination holds one path per sub-table
type Destination struct {
	EventTable            string `json:"etable"`
	FrameTable            string `json:"frame"`
	ExternalHostCallTable string `json:"external_host"`
}

// Path returns the path of one sub-table
func (d Destination) Path(s SubTable) string {
	switch s {
	case EventTable:
		return d.EventTable
	case FrameTable:
		return d.FrameTable
	default:
		return d.ExternalHostCallTable
	}
}

// Layout names the artifacts of slice index of the trace name under dir:
// <dir>/<name>.<index>.<etable|frame|external_host>.cbor
func Layout(dir, name string, index int) Destination {
	path := func(s SubTable) string {
		return filepath.Join(dir, fmt.Sprintf("%s.%d.%s.cbor", name, index, s))
	}
	return Destination{
		EventTable:            path(EventTable),
		FrameTable:            path(FrameTable),
		ExternalHostCallTable: path(ExternalHostCallTable),
	}
}

// Handle references the stored sub-tables of one slice
type Handle interface {
	// Index is the slice index the handle was built for
	Index() int
}

// Backend stores slice sub-tables. Materialize must return exactly what
// Build was given.
type Backend interface {
	Kind() Kind
	Build(index int, tables *Tables) (Handle, error)
	Materialize(h Handle) (*Tables, error)

	// Write places the sub-tables at dst. Writing a handle to the location
	// it is already stored at is a no-op.
	Write(h Handle, dst Destination) error
}

// New creates a backend of the given kind. dir and name are used by the
// staged backend only.
func New(kind Kind, dir, name string) (Backend, error) {
	switch kind {
	case Resident:
		return NewResident(), nil
	case Staged:
		return NewStaged(dir, name)
	default:
		return nil, errs.Config("unknown slice backend %q", kind)
	}
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// encode serializes one sub-table with deterministic CBOR
func encode(s SubTable, tables *Tables) ([]byte, error) {
	switch s {
	case EventTable:
		return encMode.Marshal(tables.EventTable)
	case FrameTable:
		return encMode.Marshal(tables.FrameTable)
	default:
		return encMode.Marshal(tables.ExternalHostCallTable)
	}
}

// decode fills one sub-table of tables from data
func decode(s SubTable, data []byte, tables *Tables) error {
	switch s {
	case EventTable:
		return cbor.Unmarshal(data, &tables.EventTable)
	case FrameTable:
		return cbor.Unmarshal(data, &tables.FrameTable)
	default:
		return cbor.Unmarshal(data, &tables.ExternalHostCallTable)
	}
}

var subTables = []SubTable{EventTable, FrameTable, ExternalHostCallTable}
