// Package cursor derives the scalar state vectors that bracket each slice.
//
// The pre and post cursors of a slice are public circuit inputs: the post
// cursor of slice i is checked for equality against the pre cursor of slice
// i+1, so every field must be fully determined by the steps consumed so far.
package cursor

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Width is the number of scalars in a cursor vector
const Width = 12

// Vector positions, in public input order
const (
	IdxEid = iota
	IdxFid
	IdxIid
	IdxFrameID
	IdxSp
	IdxHostPublicInputIndex
	IdxContextInIndex
	IdxContextOutIndex
	IdxExternalHostCallIndex
	IdxAllocatedMemoryPages
	IdxMaximalMemoryPages
	IdxPendingCallReturnOps
)

// StateCursor identifies a precise point in program and host execution
type StateCursor struct {
	Eid     uint32 `json:"eid"`
	Fid     uint32 `json:"fid"`
	Iid     uint32 `json:"iid"`
	FrameID uint32 `json:"frame_id"`
	Sp      uint32 `json:"sp"`

	HostPublicInputIndex  uint64 `json:"host_public_input_index"`
	ContextInIndex        uint64 `json:"context_in_index"`
	ContextOutIndex       uint64 `json:"context_out_index"`
	ExternalHostCallIndex uint64 `json:"external_host_call_index"`

	AllocatedMemoryPages uint32 `json:"allocated_memory_pages"`
	MaximalMemoryPages   uint32 `json:"maximal_memory_pages"`

	// PendingCallReturnOps counts call and return steps not yet executed.
	// It decreases toward zero over the whole trace.
	PendingCallReturnOps uint64 `json:"pending_call_return_ops"`
}

// Vector returns the cursor in public input order
func (c StateCursor) Vector() [Width]uint64 {
	return [Width]uint64{
		IdxEid:                   uint64(c.Eid),
		IdxFid:                   uint64(c.Fid),
		IdxIid:                   uint64(c.Iid),
		IdxFrameID:               uint64(c.FrameID),
		IdxSp:                    uint64(c.Sp),
		IdxHostPublicInputIndex:  c.HostPublicInputIndex,
		IdxContextInIndex:        c.ContextInIndex,
		IdxContextOutIndex:       c.ContextOutIndex,
		IdxExternalHostCallIndex: c.ExternalHostCallIndex,
		IdxAllocatedMemoryPages:  uint64(c.AllocatedMemoryPages),
		IdxMaximalMemoryPages:    uint64(c.MaximalMemoryPages),
		IdxPendingCallReturnOps:  c.PendingCallReturnOps,
	}
}

// FromVector rebuilds a cursor from its public input vector
func FromVector(v [Width]uint64) StateCursor {
	return StateCursor{
		Eid:                   uint32(v[IdxEid]),
		Fid:                   uint32(v[IdxFid]),
		Iid:                   uint32(v[IdxIid]),
		FrameID:               uint32(v[IdxFrameID]),
		Sp:                    uint32(v[IdxSp]),
		HostPublicInputIndex:  v[IdxHostPublicInputIndex],
		ContextInIndex:        v[IdxContextInIndex],
		ContextOutIndex:       v[IdxContextOutIndex],
		ExternalHostCallIndex: v[IdxExternalHostCallIndex],
		AllocatedMemoryPages:  uint32(v[IdxAllocatedMemoryPages]),
		MaximalMemoryPages:    uint32(v[IdxMaximalMemoryPages]),
		PendingCallReturnOps:  v[IdxPendingCallReturnOps],
	}
}

// Fields returns the cursor as field elements, in public input order
func (c StateCursor) Fields() []field.Element {
	v := c.Vector()
	out := make([]field.Element, Width)
	for i, x := range v {
		out[i] = field.New(x)
	}
	return out
}

// Diff names the first field where two cursors disagree, or "" when equal
func Diff(a, b StateCursor) string {
	names := [Width]string{
		"eid", "fid", "iid", "frame_id", "sp",
		"host_public_input_index", "context_in_index", "context_out_index",
		"external_host_call_index", "allocated_memory_pages", "maximal_memory_pages",
		"pending_call_return_ops",
	}
	va, vb := a.Vector(), b.Vector()
	for i := range va {
		if va[i] != vb[i] {
			return fmt.Sprintf("%s: %d != %d", names[i], va[i], vb[i])
		}
	}
	return ""
}

// Cursor advances the state vector step by step. The position fields are
// taken from the steps themselves; the counters are accumulated here.
type Cursor struct {
	current StateCursor
	total   uint64
	done    uint64
}

// New creates a cursor positioned at the first step of log
func New(log *trace.EventLog, img *trace.Image) *Cursor {
	first := log.At(0)
	total := log.CallReturnOps()
	return &Cursor{
		current: StateCursor{
			Eid:                  first.Eid,
			Fid:                  first.Fid,
			Iid:                  first.Iid,
			FrameID:              first.LastJumpEid,
			Sp:                   first.Sp,
			AllocatedMemoryPages: img.InitialPages,
			MaximalMemoryPages:   img.MaximalPages,
			PendingCallReturnOps: total,
		},
		total: total,
	}
}

// Current returns the cursor at the start of the slice being accumulated
func (c *Cursor) Current() StateCursor {
	return c.current
}

// Advance counts the host and control effects of a step
func (c *Cursor) Advance(step trace.Step) error {
	switch k := step.Effect.Kind; {
	case k.IsCall() || k == trace.Return:
		c.done++
		if c.done > c.total {
			return errs.Soundness("step %d exceeds the %d call/return ops of the trace", step.Eid, c.total)
		}
	case k == trace.CallHost:
		host := step.Effect.Host
		if host == nil {
			return errs.Input("host call step %d has no host descriptor", step.Eid)
		}
		switch host.Plugin {
		case trace.HostInput:
			if host.IsPublic {
				c.current.HostPublicInputIndex++
			}
		case trace.ContextIn:
			c.current.ContextInIndex++
		case trace.ContextOut:
			c.current.ContextOutIndex++
		case trace.External:
			c.current.ExternalHostCallIndex++
		}
	}
	return nil
}

// Pages checks the step's allocated page count and applies a successful
// memory.grow
func (c *Cursor) Pages(step trace.Step) error {
	if step.AllocatedPages != c.current.AllocatedMemoryPages {
		return errs.Soundness("step %d runs with %d allocated pages, expected %d",
			step.Eid, step.AllocatedPages, c.current.AllocatedMemoryPages)
	}
	if step.Effect.Kind != trace.MemoryGrow {
		return nil
	}
	grow := step.Effect.Grow
	if grow == nil {
		return errs.Input("memory.grow step %d has no grow descriptor", step.Eid)
	}
	if !grow.Success {
		return nil
	}
	allocated, maximal := c.current.AllocatedMemoryPages, c.current.MaximalMemoryPages
	if allocated > maximal || grow.Pages > maximal-allocated {
		return errs.Soundness("step %d grows memory by %d pages from %d beyond maximum %d",
			step.Eid, grow.Pages, allocated, maximal)
	}
	c.current.AllocatedMemoryPages = allocated + grow.Pages
	return nil
}

// Close produces the post cursor of the slice ending with last. For a
// non-final slice next is the first step of the following slice and the
// post cursor resumes exactly there. For the final slice eid moves one past
// last, fid, iid and frame_id reset to zero, and a returning last step
// releases its dropped stack slots.
func (c *Cursor) Close(final bool, last trace.Step, next *trace.Step) (StateCursor, error) {
	post := c.current
	post.PendingCallReturnOps = c.total - c.done
	if final {
		if post.PendingCallReturnOps != 0 {
			return StateCursor{}, errs.Soundness("trace ends with %d pending call/return ops", post.PendingCallReturnOps)
		}
		post.Eid = last.Eid + 1
		post.Fid = 0
		post.Iid = 0
		post.FrameID = 0
		post.Sp = last.Sp
		if last.Effect.Kind == trace.Return {
			post.Sp += last.Effect.Drop
		}
	} else {
		if next == nil {
			return StateCursor{}, errs.Input("non-final slice ending at eid %d has no next step", last.Eid)
		}
		post.Eid = next.Eid
		post.Fid = next.Fid
		post.Iid = next.Iid
		post.FrameID = next.LastJumpEid
		post.Sp = next.Sp
	}
	c.current = post
	return post, nil
}
