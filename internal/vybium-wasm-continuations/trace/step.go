// Package trace models the execution log produced by the external WASM
// tracer together with the compiled program image it ran against.
//
// The continuation engine consumes a trace but never produces one: every
// type here is read-only once loaded.
package trace

// MemoryAccess is one read or write performed by a step
type MemoryAccess struct {
	_ struct{} `cbor:",toarray"`

	Location LocationType `json:"ltype"`
	Address  uint32       `json:"offset"`
	Access   AccessType   `json:"atype"`
	Type     ValueType    `json:"vtype"`
	Value    uint64       `json:"value"`
}

// HostCall describes a CallHost step
type HostCall struct {
	_ struct{} `cbor:",toarray"`

	Plugin   HostPlugin `json:"plugin"`
	Op       uint32     `json:"op"`
	IsPublic bool       `json:"is_public"`
	Args     []uint64   `json:"args"`
}

// Grow describes a memory.grow step
type Grow struct {
	_ struct{} `cbor:",toarray"`

	Pages   uint32 `json:"pages"`
	Success bool   `json:"success"`
}

// Effect is the step-kind-specific part of a step
type Effect struct {
	_ struct{} `cbor:",toarray"`

	Kind   StepKind       `json:"kind"`
	Memory []MemoryAccess `json:"memory"`

	// Callee is the target function of Call and CallIndirect
	Callee uint32 `json:"callee,omitempty"`

	// Drop and Keep describe the stack adjustment of Return
	Drop uint32 `json:"drop,omitempty"`
	Keep uint32 `json:"keep,omitempty"`

	Host *HostCall `json:"host,omitempty"`
	Grow *Grow     `json:"grow,omitempty"`
}

// Step is one executed instruction.
//
// Every position field describes the machine before the instruction runs.
// LastJumpEid is the id of the frame that last transferred control here,
// which is the eid of the call that opened the current frame or 0 inside
// the root frame.
type Step struct {
	_ struct{} `cbor:",toarray"`

	Eid            uint32 `json:"eid"`
	Fid            uint32 `json:"fid"`
	Iid            uint32 `json:"iid"`
	Sp             uint32 `json:"sp"`
	LastJumpEid    uint32 `json:"last_jump_eid"`
	AllocatedPages uint32 `json:"allocated_memory_pages"`
	Effect         Effect `json:"effect"`
}

// ExternalHostCall is one row of the external host call sub-table
type ExternalHostCall struct {
	_ struct{} `cbor:",toarray"`

	Index uint64   `json:"index"`
	Eid   uint32   `json:"eid"`
	Op    uint32   `json:"op"`
	Args  []uint64 `json:"args"`
}

// IsExternalHostCall reports whether the step calls an external host function
func (s *Step) IsExternalHostCall() bool {
	return s.Effect.Kind == CallHost && s.Effect.Host != nil && s.Effect.Host.Plugin == External
}
