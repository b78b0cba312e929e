// Package frame implements the frame ledger: the live call stack of a
// trace, carried across slice boundaries.
//
// The ledger is an arena of entries. A return never deletes an entry; it
// only sets the returned flag, and Flush partitions the arena at the slice
// boundary. Entries refer to each other only through integer frame ids.
package frame

import (
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Entry is one call-stack activation record
type Entry struct {
	_ struct{} `cbor:",toarray"`

	// FrameID is the eid of the call step, 0 for the synthetic root
	FrameID   uint32 `json:"frame_id"`
	ParentID  uint32 `json:"parent_frame_id"`
	CalleeFid uint32 `json:"callee_fid"`
	CallerFid uint32 `json:"caller_fid"`
	CallerIid uint32 `json:"caller_iid"`

	Returned bool `json:"returned"`

	// Inherited is set when the entry existed before the current slice began
	Inherited bool `json:"inherited"`
}

// Table is the frame sub-table of one slice
type Table struct {
	_ struct{} `cbor:",toarray"`

	// Inherited lists the frames open when the slice began, in call order
	Inherited []Entry `json:"inherited"`

	// Called lists the frames opened inside the slice, in call order
	Called []Entry `json:"called"`
}

// StaticEntries returns the frames open at program start: the root frame
// of the entry function, followed by the start function's frame when the
// image declares one. Both carry frame id 0.
func StaticEntries(img *trace.Image) []Entry {
	if img.Entry == nil {
		return nil
	}
	entries := []Entry{{
		FrameID:   0,
		ParentID:  0,
		CalleeFid: *img.Entry,
		Inherited: true,
	}}
	if img.Start != nil {
		entries = append(entries, Entry{
			FrameID:   0,
			ParentID:  0,
			CalleeFid: *img.Start,
			CallerFid: *img.Entry,
			Inherited: true,
		})
	}
	return entries
}

// Ledger tracks open call frames across the whole trace
type Ledger struct {
	entries []Entry

	// open holds indices into entries of frames not yet returned, in call order
	open []int
}

// NewLedger creates a ledger seeded with the program-start frames
func NewLedger(static []Entry) *Ledger {
	l := &Ledger{}
	for _, e := range static {
		e.Inherited = true
		e.Returned = false
		l.entries = append(l.entries, e)
		l.open = append(l.open, len(l.entries)-1)
	}
	return l
}

// Open appends a new open frame. Called on every call and call_indirect.
func (l *Ledger) Open(frameID, parentID, calleeFid, callerFid, callerIid uint32) {
	l.entries = append(l.entries, Entry{
		FrameID:   frameID,
		ParentID:  parentID,
		CalleeFid: calleeFid,
		CallerFid: callerFid,
		CallerIid: callerIid,
	})
	l.open = append(l.open, len(l.entries)-1)
}

// Close marks the most recently opened still-open frame as returned.
// frameID is the returning step's last jump eid and must name that frame.
func (l *Ledger) Close(frameID uint32) (Entry, error) {
	if len(l.open) == 0 {
		return Entry{}, errs.Soundness("return from frame %d with no open frame", frameID)
	}
	idx := l.open[len(l.open)-1]
	if l.entries[idx].FrameID != frameID {
		return Entry{}, errs.Soundness("return from frame %d but innermost open frame is %d",
			frameID, l.entries[idx].FrameID)
	}
	l.open = l.open[:len(l.open)-1]
	l.entries[idx].Returned = true
	return l.entries[idx], nil
}

// Depth returns the number of open frames
func (l *Ledger) Depth() int {
	return len(l.open)
}

// Flush partitions the current entries by the inherited flag and resets the
// ledger for the next slice. Open entries are retained in encounter order
// and marked inherited; returned entries are discarded.
func (l *Ledger) Flush() Table {
	var table Table
	for _, e := range l.entries {
		if e.Inherited {
			table.Inherited = append(table.Inherited, e)
		} else {
			table.Called = append(table.Called, e)
		}
	}

	retained := make([]Entry, 0, len(l.open))
	for _, idx := range l.open {
		e := l.entries[idx]
		e.Inherited = true
		retained = append(retained, e)
	}
	l.entries = retained
	l.open = l.open[:0]
	for i := range retained {
		l.open = append(l.open, i)
	}
	return table
}

// Finalize checks that no frame is still open. It is called on the last
// slice before Flush: an execution cannot end mid-call.
func (l *Ledger) Finalize() error {
	if len(l.open) == 0 {
		return nil
	}
	e := l.entries[l.open[len(l.open)-1]]
	return errs.Soundness("trace ends with %d unreturned frame(s), innermost frame %d calling fid %d",
		len(l.open), e.FrameID, e.CalleeFid)
}

// Inherited returns the inherited entries currently held. Right after
// Flush these are the frames the next slice starts with.
func (l *Ledger) Inherited() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Inherited {
			out = append(out, e)
		}
	}
	return out
}
