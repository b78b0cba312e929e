package memory

import (
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Tracker maintains the memory image as steps are consumed.
//
// Reads must be justified: either by a prior write, by the current slice's
// opening table, or by the program image's declared initial value. An image
// fallback is recorded as an Init access in both the live image and the
// opening table, so the slice's init table covers it.
type Tracker struct {
	img *trace.Image

	// cells is the live image
	cells map[Key]Cell

	// opening is the init table of the slice being accumulated
	opening map[Key]Cell

	// stack records written stack addresses not yet cleared by a roll
	stack map[uint32]struct{}
}

// NewTracker seeds the image with the declared globals and data words
func NewTracker(img *trace.Image) *Tracker {
	t := &Tracker{
		img:   img,
		cells: make(map[Key]Cell, len(img.Globals)+len(img.Memory)),
		stack: make(map[uint32]struct{}),
	}
	for _, g := range img.Globals {
		c := Cell{Location: trace.Global, Address: g.Index, Type: g.Type, Mutable: g.Mutable, Value: g.Value}
		t.cells[c.Key()] = c
	}
	for _, w := range img.Memory {
		c := Cell{Location: trace.Heap, Address: w.Address, Type: trace.I64, Mutable: true, Value: w.Value}
		t.cells[c.Key()] = c
	}
	t.opening = copyCells(t.cells)
	return t
}

func copyCells(src map[Key]Cell) map[Key]Cell {
	dst := make(map[Key]Cell, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// bound returns the exclusive upper address bound of a location class at a step
func (t *Tracker) bound(loc trace.LocationType, step *trace.Step) uint32 {
	switch loc {
	case trace.Stack:
		return t.img.StackLimit
	case trace.Heap:
		return step.AllocatedPages * trace.WordsPerPage
	default:
		return uint32(len(t.img.Globals))
	}
}

// Apply consumes the memory effects of one step in order
func (t *Tracker) Apply(step trace.Step) error {
	for _, acc := range step.Effect.Memory {
		var err error
		switch acc.Access {
		case trace.Write:
			err = t.write(&step, acc)
		case trace.Read:
			err = t.read(&step, acc)
		default:
			err = errs.Input("step %d carries %s access, tracer emits only reads and writes", step.Eid, acc.Access)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) write(step *trace.Step, acc trace.MemoryAccess) error {
	if acc.Address >= t.bound(acc.Location, step) {
		return errs.Soundness("step %d writes %s address %d outside bound %d",
			step.Eid, acc.Location, acc.Address, t.bound(acc.Location, step))
	}
	k := Key{Location: acc.Location, Address: acc.Address}
	prev, ok := t.cells[k]
	if ok && !prev.Mutable {
		return errs.Soundness("step %d writes immutable %s %d", step.Eid, acc.Location, acc.Address)
	}
	if acc.Location == trace.Global && prev.Type != acc.Type {
		return errs.Soundness("step %d writes %s to global %d of type %s", step.Eid, acc.Type, acc.Address, prev.Type)
	}
	t.cells[k] = Cell{
		Location: acc.Location,
		Address:  acc.Address,
		Type:     acc.Type,
		Mutable:  true,
		Value:    acc.Value,
		Eid:      step.Eid,
	}
	if acc.Location == trace.Stack {
		t.stack[acc.Address] = struct{}{}
	}
	return nil
}

func (t *Tracker) read(step *trace.Step, acc trace.MemoryAccess) error {
	k := Key{Location: acc.Location, Address: acc.Address}
	c, ok := t.cells[k]
	if !ok {
		var err error
		if c, err = t.initial(step, acc); err != nil {
			return err
		}
		t.cells[k] = c
		t.opening[k] = c
	}
	if c.Value != acc.Value {
		return errs.Soundness("step %d reads %d from %s %d holding %d",
			step.Eid, acc.Value, acc.Location, acc.Address, c.Value)
	}
	return nil
}

// initial resolves a read with no prior definition against the image
func (t *Tracker) initial(step *trace.Step, acc trace.MemoryAccess) (Cell, error) {
	if acc.Address >= t.bound(acc.Location, step) {
		return Cell{}, errs.Soundness("step %d reads undefined %s address %d outside bound %d",
			step.Eid, acc.Location, acc.Address, t.bound(acc.Location, step))
	}
	switch acc.Location {
	case trace.Heap:
		return Cell{
			Location: trace.Heap,
			Address:  acc.Address,
			Type:     trace.I64,
			Mutable:  true,
			Value:    t.img.HeapWord(acc.Address),
		}, nil
	case trace.Global:
		g, _ := t.img.Global(acc.Address)
		return Cell{Location: trace.Global, Address: g.Index, Type: g.Type, Mutable: g.Mutable, Value: g.Value}, nil
	default:
		return Cell{}, errs.Soundness("step %d reads stack address %d before any write", step.Eid, acc.Address)
	}
}

// Lookup returns the live value of a cell
func (t *Tracker) Lookup(loc trace.LocationType, addr uint32) (Cell, bool) {
	c, ok := t.cells[Key{Location: loc, Address: addr}]
	return c, ok
}

// Opening returns the init table of the slice being accumulated
func (t *Tracker) Opening() Table {
	return sortedTable(t.opening)
}

// SnapshotAndRoll returns the init table of the slice that just ended and
// rolls the image over to the next slice. Heap and global cells persist.
// Recorded stack cells are cleared when they sit at or below sp, the
// boundary stack pointer, since that region has been popped.
// Cell metadata is never changed by the roll.
func (t *Tracker) SnapshotAndRoll(sp uint32) Table {
	snapshot := sortedTable(t.opening)
	for addr := range t.stack {
		if addr <= sp {
			delete(t.cells, Key{Location: trace.Stack, Address: addr})
			delete(t.stack, addr)
		}
	}
	t.opening = copyCells(t.cells)
	return snapshot
}
