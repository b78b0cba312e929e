// Package boundary checks slice boundaries with a gnark circuit.
//
// LinkCircuit takes the pre and post cursors of one slice and the pre
// cursor of its successor as public inputs. It is the constraint the
// aggregation layer places between neighboring slice proofs.
package boundary

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/log"
)

// LinkCircuit constrains the boundary between two neighboring slices
type LinkCircuit struct {
	PrevPre  [cursor.Width]frontend.Variable `gnark:",public"`
	PrevPost [cursor.Width]frontend.Variable `gnark:",public"`
	NextPre  [cursor.Width]frontend.Variable `gnark:",public"`
}

// monotonic lists the counters that never decrease within a slice
var monotonic = []int{
	cursor.IdxEid,
	cursor.IdxHostPublicInputIndex,
	cursor.IdxContextInIndex,
	cursor.IdxContextOutIndex,
	cursor.IdxExternalHostCallIndex,
	cursor.IdxAllocatedMemoryPages,
}

// Define declares the boundary constraints
func (c *LinkCircuit) Define(api frontend.API) error {
	for i := 0; i < cursor.Width; i++ {
		api.AssertIsEqual(c.PrevPost[i], c.NextPre[i])
	}
	for _, i := range monotonic {
		api.AssertIsLessOrEqual(c.PrevPre[i], c.PrevPost[i])
	}
	api.AssertIsLessOrEqual(c.PrevPost[cursor.IdxPendingCallReturnOps], c.PrevPre[cursor.IdxPendingCallReturnOps])
	api.AssertIsEqual(c.PrevPre[cursor.IdxMaximalMemoryPages], c.PrevPost[cursor.IdxMaximalMemoryPages])
	return nil
}

func vector(c cursor.StateCursor) [cursor.Width]frontend.Variable {
	var out [cursor.Width]frontend.Variable
	for i, x := range c.Vector() {
		out[i] = new(big.Int).SetUint64(x)
	}
	return out
}

// Assign builds the witness for one boundary
func Assign(prevPre, prevPost, nextPre cursor.StateCursor) *LinkCircuit {
	return &LinkCircuit{
		PrevPre:  vector(prevPre),
		PrevPost: vector(prevPost),
		NextPre:  vector(nextPre),
	}
}

var (
	compileOnce sync.Once
	compiled    constraint.ConstraintSystem
	compileErr  error
)

// System returns the compiled constraint system, compiling it on first use
func System() (constraint.ConstraintSystem, error) {
	compileOnce.Do(func() {
		gnarklogger.Set(log.Module("gnark").Level(zerolog.WarnLevel))
		compiled, compileErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &LinkCircuit{})
	})
	return compiled, compileErr
}

// Check solves the boundary circuit for one pair of neighbors. An
// unsatisfied circuit is a soundness error.
func Check(prevPre, prevPost, nextPre cursor.StateCursor) error {
	ccs, err := System()
	if err != nil {
		return fmt.Errorf("compile link circuit: %w", err)
	}
	w, err := frontend.NewWitness(Assign(prevPre, prevPost, nextPre), ecc.BN254.ScalarField())
	if err != nil {
		return fmt.Errorf("link witness: %w", err)
	}
	if err := ccs.IsSolved(w); err != nil {
		if diff := cursor.Diff(prevPost, nextPre); diff != "" {
			return errs.Wrap(errs.CodeSoundness, err, "boundary broken at eid %d: %s", prevPost.Eid, diff)
		}
		return errs.Wrap(errs.CodeSoundness, err, "boundary at eid %d violates slice monotonicity", prevPost.Eid)
	}
	return nil
}

// CheckChain checks every boundary of a chain given as pre and post cursors
// in slice order
func CheckChain(pre, post []cursor.StateCursor) error {
	if len(pre) != len(post) {
		return errs.Input("chain has %d pre and %d post cursors", len(pre), len(post))
	}
	for i := 0; i+1 < len(pre); i++ {
		if err := Check(pre[i], post[i], pre[i+1]); err != nil {
			return fmt.Errorf("slice %d/%d: %w", i, i+1, err)
		}
	}
	return nil
}
