package trace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

const (
	// PageSize is the WASM linear memory page size in bytes
	PageSize = 65536

	// WordSize is the width of one heap address. Heap cells are 64-bit words.
	WordSize = 8

	// WordsPerPage is the number of heap addresses per page
	WordsPerPage = PageSize / WordSize

	// MaxPages is the largest page count a 32-bit linear memory can declare
	MaxPages = 65536
)

// Function is one entry of the compiled function table
type Function struct {
	Fid  uint32 `json:"fid"`
	Name string `json:"name"`

	// Phantom functions are filtered out of the event log by the tracer
	Phantom bool `json:"phantom,omitempty"`
}

// GlobalDecl is a declared global with its initial value
type GlobalDecl struct {
	Index   uint32    `json:"index"`
	Type    ValueType `json:"vtype"`
	Mutable bool      `json:"mutable"`
	Value   uint64    `json:"value"`
}

// DataWord is a declared initial heap word
type DataWord struct {
	Address uint32 `json:"offset"`
	Value   uint64 `json:"value"`
}

// Image is the compiled program image the trace was produced from
type Image struct {
	// Entry is the fid of the program entry (zkmain). When set, the root
	// frame is seeded as an open inherited frame.
	Entry *uint32 `json:"entry,omitempty"`

	// Start is the fid of the WASM start function, run before Entry
	Start *uint32 `json:"start,omitempty"`

	Functions []Function `json:"functions"`
	Globals   []GlobalDecl `json:"globals"`
	Memory    []DataWord `json:"memory"`

	InitialPages uint32 `json:"initial_memory_pages"`
	MaximalPages uint32 `json:"maximal_memory_pages"`

	// StackLimit bounds stack addresses; the stack grows down from it
	StackLimit uint32 `json:"stack_limit"`
}

// Function looks up a function by fid
func (img *Image) Function(fid uint32) (Function, bool) {
	for _, f := range img.Functions {
		if f.Fid == fid {
			return f, true
		}
	}
	return Function{}, false
}

// HeapWord returns the declared initial value of a heap word. Words not
// covered by a data segment are zero.
func (img *Image) HeapWord(address uint32) uint64 {
	for _, w := range img.Memory {
		if w.Address == address {
			return w.Value
		}
	}
	return 0
}

// Global returns the declared global at index
func (img *Image) Global(index uint32) (GlobalDecl, bool) {
	if int(index) >= len(img.Globals) {
		return GlobalDecl{}, false
	}
	return img.Globals[index], true
}

// Validate checks the image is self-consistent
func (img *Image) Validate() error {
	if img.MaximalPages < img.InitialPages {
		return errs.Input("maximal memory pages %d below initial pages %d", img.MaximalPages, img.InitialPages)
	}
	if img.MaximalPages > MaxPages {
		return errs.Input("maximal memory pages %d above the limit of %d", img.MaximalPages, MaxPages)
	}
	if img.StackLimit == 0 {
		return errs.Input("stack limit must be positive")
	}
	for i, g := range img.Globals {
		if g.Index != uint32(i) {
			return errs.Input("global %d declared at position %d", g.Index, i)
		}
	}
	limit := img.MaximalPages * WordsPerPage
	for _, w := range img.Memory {
		if w.Address >= limit {
			return errs.Input("data word at %d outside %d declared pages", w.Address, img.MaximalPages)
		}
	}
	seen := make(map[uint32]bool, len(img.Functions))
	for _, f := range img.Functions {
		if seen[f.Fid] {
			return errs.Input("duplicate function %d", f.Fid)
		}
		seen[f.Fid] = true
	}
	if img.Entry != nil && !seen[*img.Entry] {
		return errs.Input("entry function %d not in function table", *img.Entry)
	}
	if img.Start != nil && !seen[*img.Start] {
		return errs.Input("start function %d not in function table", *img.Start)
	}
	return nil
}

// Verify checks that the event log only refers to functions declared by the
// image and never executes inside a phantom function. A mismatch is a
// consistency error: the slicer does not call this, the caller decides
// whether the compiler boundary has already checked it.
func (img *Image) Verify(log *EventLog) error {
	functions := make(map[uint32]Function, len(img.Functions))
	for _, f := range img.Functions {
		functions[f.Fid] = f
	}
	for i := 0; i < log.Len(); i++ {
		step := log.At(i)
		f, ok := functions[step.Fid]
		if !ok {
			return errs.Consistency("step %d executes undeclared function %d", step.Eid, step.Fid)
		}
		if f.Phantom {
			return errs.Consistency("step %d executes phantom function %s", step.Eid, f.Name)
		}
		if step.Effect.Kind.IsCall() {
			if _, ok := functions[step.Effect.Callee]; !ok {
				return errs.Consistency("step %d calls undeclared function %d", step.Eid, step.Effect.Callee)
			}
		}
	}
	return nil
}

// LoadImage reads a JSON program image
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Resource(err, "read image %s", path)
	}
	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidInput, err, "parse image %s", path)
	}
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("image %s: %w", path, err)
	}
	return &img, nil
}
