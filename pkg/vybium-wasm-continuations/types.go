package vybiumwasmcontinuations

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/memory"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/slicer"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/utils"
)

// Step is one executed instruction of a trace
type Step = trace.Step

// EventLog is the ordered step sequence of one execution
type EventLog = trace.EventLog

// Image is the compiled program a trace ran against
type Image = trace.Image

// StateCursor is the public boundary state of a slice
type StateCursor = cursor.StateCursor

// FrameEntry is one call-stack activation record
type FrameEntry = frame.Entry

// FrameTable is the frame partition of one slice
type FrameTable = frame.Table

// MemoryTable is an init memory table
type MemoryTable = memory.Table

// Slice is one bounded segment of a trace
type Slice = slicer.Slice

// Tables holds the sub-tables of a slice
type Tables = backend.Tables

// Backend stores slice sub-tables
type Backend = backend.Backend

// Destination names one path per sub-table
type Destination = backend.Destination

// Config configures a slicing run
type Config = utils.Config

// Digest commits to one slice, or to a whole chain
type Digest = hash.Digest

// NewEventLog validates steps and wraps them in an event log
func NewEventLog(steps []Step) (*EventLog, error) {
	return trace.NewEventLog(steps)
}

// LoadEventLog reads an event log from a JSON file
func LoadEventLog(path string) (*EventLog, error) {
	return trace.LoadEventLog(path)
}

// LoadImage reads a program image from a JSON file
func LoadImage(path string) (*Image, error) {
	return trace.LoadImage(path)
}

// DefaultConfig returns the default slicing configuration
func DefaultConfig() *Config {
	return utils.DefaultConfig()
}

// Layout names the staged artifacts of one slice
func Layout(dir, name string, index int) Destination {
	return backend.Layout(dir, name, index)
}
