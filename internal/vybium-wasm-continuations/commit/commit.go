// Package commit binds slices to compact digests.
//
// A slice digest hashes the slice's public cursors, its frame partition and
// its init memory table with the field-native variable length hash. The
// chain root is the Merkle root over all slice digests in index order, so a
// single value identifies the whole continuation chain.
package commit

import (
	"encoding/hex"
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/merkle"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/memory"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/slicer"
)

// rate is the absorption width of the sponge
const rate = 10

func flag(b bool) field.Element {
	if b {
		return field.New(1)
	}
	return field.Zero
}

func entryElements(e frame.Entry) []field.Element {
	return []field.Element{
		field.New(uint64(e.FrameID)),
		field.New(uint64(e.ParentID)),
		field.New(uint64(e.CalleeFid)),
		field.New(uint64(e.CallerFid)),
		field.New(uint64(e.CallerIid)),
		flag(e.Returned),
		flag(e.Inherited),
	}
}

func cellElements(c memory.Cell) []field.Element {
	return []field.Element{
		field.New(uint64(c.Location)),
		field.New(uint64(c.Address)),
		field.New(uint64(c.Type)),
		flag(c.Mutable),
		field.New(c.Value),
		field.New(uint64(c.Eid)),
	}
}

// Digest hashes the boundary state of one slice
func Digest(pre, post cursor.StateCursor, frames frame.Table, init memory.Table) hash.Digest {
	elements := make([]field.Element, 0, 2*cursor.Width+3+7*(len(frames.Inherited)+len(frames.Called))+6*len(init))
	elements = append(elements, pre.Fields()...)
	elements = append(elements, post.Fields()...)

	// lengths separate the variable sized sections
	elements = append(elements,
		field.New(uint64(len(frames.Inherited))),
		field.New(uint64(len(frames.Called))),
		field.New(uint64(len(init))),
	)
	for _, e := range frames.Inherited {
		elements = append(elements, entryElements(e)...)
	}
	for _, e := range frames.Called {
		elements = append(elements, entryElements(e)...)
	}
	for _, c := range init {
		elements = append(elements, cellElements(c)...)
	}

	for len(elements)%rate != 0 {
		elements = append(elements, field.Zero)
	}
	return hash.HashVarlen(elements)
}

// Slice materializes the frame table of s and hashes it with the cursors
// and init memory
func Slice(s *slicer.Slice) (hash.Digest, error) {
	frames, err := s.FrameTable()
	if err != nil {
		return hash.Digest{}, fmt.Errorf("slice %d: %w", s.Index, err)
	}
	return Digest(s.Pre, s.Post, frames, s.InitMemory), nil
}

// ChainRoot returns the Merkle root over digests in order. The leaf count
// is padded with zero digests to a power of two.
func ChainRoot(digests []hash.Digest) (hash.Digest, error) {
	if len(digests) == 0 {
		return hash.Digest{}, errs.Input("chain root over no slices")
	}
	n := 2
	for n < len(digests) {
		n <<= 1
	}
	leaves := make([]hash.Digest, n)
	copy(leaves, digests)
	tree, err := merkle.New(leaves)
	if err != nil {
		return hash.Digest{}, fmt.Errorf("build chain tree: %w", err)
	}
	return tree.Root(), nil
}

// Bytes encodes a digest as little-endian words
func Bytes(d hash.Digest) []byte {
	out := make([]byte, len(d)*8)
	for i, elem := range d {
		val := elem.Value()
		for j := 0; j < 8; j++ {
			out[i*8+j] = byte(val >> (j * 8))
		}
	}
	return out
}

// Hex encodes a digest as a hex string
func Hex(d hash.Digest) string {
	return hex.EncodeToString(Bytes(d))
}

// ParseHex decodes a digest written by Hex
func ParseHex(s string) (hash.Digest, error) {
	var d hash.Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, errs.Wrap(errs.CodeInvalidInput, err, "decode digest")
	}
	if len(raw) != len(d)*8 {
		return d, errs.Input("digest has %d bytes, expected %d", len(raw), len(d)*8)
	}
	for i := range d {
		var val uint64
		for j := 0; j < 8; j++ {
			val |= uint64(raw[i*8+j]) << (j * 8)
		}
		d[i] = field.New(val)
	}
	return d, nil
}
