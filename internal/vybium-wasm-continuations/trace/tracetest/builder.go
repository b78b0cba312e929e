// Package tracetest builds small, internally consistent event logs for
// tests. The builder tracks fid, iid, sp, the current frame and allocated
// pages the way the tracer would, so generated steps satisfy every check the
// continuation engine performs.
package tracetest

import (
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Entry is the fid used as program entry by Image
const Entry uint32 = 0

type frame struct {
	id        uint32
	callerFid uint32
	callerIid uint32
}

// Builder appends steps to a trace
type Builder struct {
	steps  []trace.Step
	eid    uint32
	fid    uint32
	iid    uint32
	sp     uint32
	pages  uint32
	frames []frame
}

// Image returns a small program image: entry function 0, helpers 1 and 2,
// one mutable i32 global (7), one immutable i64 global (42), two declared
// heap words, one initial page and a four page maximum.
func Image() *trace.Image {
	entry := Entry
	return &trace.Image{
		Entry: &entry,
		Functions: []trace.Function{
			{Fid: 0, Name: "zkmain"},
			{Fid: 1, Name: "helper"},
			{Fid: 2, Name: "leaf"},
		},
		Globals: []trace.GlobalDecl{
			{Index: 0, Type: trace.I32, Mutable: true, Value: 7},
			{Index: 1, Type: trace.I64, Mutable: false, Value: 42},
		},
		Memory: []trace.DataWord{
			{Address: 0, Value: 11},
			{Address: 1, Value: 22},
		},
		InitialPages: 1,
		MaximalPages: 4,
		StackLimit:   4096,
	}
}

// BareImage is Image without an entry function, so no root frame is seeded
func BareImage() *trace.Image {
	img := Image()
	img.Entry = nil
	return img
}

// NewBuilder starts a trace at eid 1 inside fid, with the stack empty
func NewBuilder(img *trace.Image, fid uint32) *Builder {
	return &Builder{
		eid:   1,
		fid:   fid,
		sp:    img.StackLimit - 1,
		pages: img.InitialPages,
	}
}

func (b *Builder) frameID() uint32 {
	if len(b.frames) == 0 {
		return 0
	}
	return b.frames[len(b.frames)-1].id
}

func (b *Builder) emit(effect trace.Effect) trace.Step {
	step := trace.Step{
		Eid:            b.eid,
		Fid:            b.fid,
		Iid:            b.iid,
		Sp:             b.sp,
		LastJumpEid:    b.frameID(),
		AllocatedPages: b.pages,
		Effect:         effect,
	}
	b.steps = append(b.steps, step)
	b.eid++
	b.iid++
	return step
}

// Plain appends n steps without memory effects
func (b *Builder) Plain(n int) *Builder {
	for i := 0; i < n; i++ {
		b.emit(trace.Effect{Kind: trace.Plain})
	}
	return b
}

// Push writes v to the stack top
func (b *Builder) Push(v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Stack, Address: b.sp, Access: trace.Write, Type: trace.I64, Value: v},
	}})
	b.sp--
	return b
}

// Pop reads the stack top, which must hold v
func (b *Builder) Pop(v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Stack, Address: b.sp + 1, Access: trace.Read, Type: trace.I64, Value: v},
	}})
	b.sp++
	return b
}

// Store writes heap word addr
func (b *Builder) Store(addr uint32, v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Heap, Address: addr, Access: trace.Write, Type: trace.I64, Value: v},
	}})
	return b
}

// Load reads heap word addr, which must hold v
func (b *Builder) Load(addr uint32, v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Heap, Address: addr, Access: trace.Read, Type: trace.I64, Value: v},
	}})
	return b
}

// SetGlobal writes global idx
func (b *Builder) SetGlobal(idx uint32, vtype trace.ValueType, v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Global, Address: idx, Access: trace.Write, Type: vtype, Value: v},
	}})
	return b
}

// GetGlobal reads global idx, which must hold v
func (b *Builder) GetGlobal(idx uint32, vtype trace.ValueType, v uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.Plain, Memory: []trace.MemoryAccess{
		{Location: trace.Global, Address: idx, Access: trace.Read, Type: vtype, Value: v},
	}})
	return b
}

// Call opens a frame for callee
func (b *Builder) Call(callee uint32) *Builder {
	step := b.emit(trace.Effect{Kind: trace.Call, Callee: callee})
	b.frames = append(b.frames, frame{id: step.Eid, callerFid: step.Fid, callerIid: step.Iid})
	b.fid = callee
	b.iid = 0
	return b
}

// Return closes the current frame, dropping drop stack slots
func (b *Builder) Return(drop uint32) *Builder {
	b.emit(trace.Effect{Kind: trace.Return, Drop: drop})
	b.sp += drop
	if len(b.frames) > 0 {
		top := b.frames[len(b.frames)-1]
		b.frames = b.frames[:len(b.frames)-1]
		b.fid = top.callerFid
		b.iid = top.callerIid + 1
	}
	return b
}

// Host appends a host call
func (b *Builder) Host(plugin trace.HostPlugin, public bool, args ...uint64) *Builder {
	b.emit(trace.Effect{Kind: trace.CallHost, Host: &trace.HostCall{
		Plugin:   plugin,
		Op:       uint32(plugin),
		IsPublic: public,
		Args:     args,
	}})
	return b
}

// Grow appends a memory.grow of pages
func (b *Builder) Grow(pages uint32, success bool) *Builder {
	b.emit(trace.Effect{Kind: trace.MemoryGrow, Grow: &trace.Grow{Pages: pages, Success: success}})
	if success {
		b.pages += pages
	}
	return b
}

// Steps returns the steps built so far
func (b *Builder) Steps() []trace.Step {
	out := make([]trace.Step, len(b.steps))
	copy(out, b.steps)
	return out
}

// Log returns the event log built so far. It panics on an invalid log,
// which the builder cannot produce.
func (b *Builder) Log() *trace.EventLog {
	log, err := trace.NewEventLog(b.steps)
	if err != nil {
		panic(err)
	}
	return log
}
