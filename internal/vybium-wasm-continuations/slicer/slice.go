// Package slicer walks an event log and cuts it into bounded slices.
//
// Every step is fed, in order, to the frame ledger, the memory image tracker
// and the state cursor. When the accumulated steps reach the row budget, or
// the log is exhausted, the slicer flushes the ledger, closes the cursor,
// snapshots memory and hands the slice's sub-tables to a backend. The chain
// of slices it produces satisfies post(i) == pre(i+1) field by field.
package slicer

import (
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/memory"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Slice is one bounded, independently provable segment of a trace
type Slice struct {
	Index int

	Pre  cursor.StateCursor
	Post cursor.StateCursor

	// InitMemory justifies the first read of every address in the slice
	InitMemory memory.Table

	// IsFinal marks the slice holding the last step of the log
	IsFinal bool

	// IsPadding marks an appended slice with no steps
	IsPadding bool

	// Skipped slices are traced for continuity but not sent for proving
	Skipped bool

	// Steps is the number of steps in the event table
	Steps int

	handle backend.Handle
	store  backend.Backend
}

// Handle returns the backend handle of the slice's sub-tables
func (s *Slice) Handle() backend.Handle {
	return s.handle
}

// Backend returns the backend holding the slice's sub-tables
func (s *Slice) Backend() backend.Backend {
	return s.store
}

// Tables materializes the slice's sub-tables
func (s *Slice) Tables() (*backend.Tables, error) {
	return s.store.Materialize(s.handle)
}

// EventTable returns the steps of the slice
func (s *Slice) EventTable() ([]trace.Step, error) {
	t, err := s.Tables()
	if err != nil {
		return nil, err
	}
	return t.EventTable, nil
}

// FrameTable returns the frame partition of the slice
func (s *Slice) FrameTable() (frame.Table, error) {
	t, err := s.Tables()
	if err != nil {
		return frame.Table{}, err
	}
	return t.FrameTable, nil
}

// Write places the slice's sub-tables at dst
func (s *Slice) Write(dst backend.Destination) error {
	return s.store.Write(s.handle, dst)
}
