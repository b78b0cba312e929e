package slicer_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/memory"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/slicer"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace/tracetest"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/utils"
)

// budget returns a configuration fitting steps steps per slice
func budget(steps int) *utils.Config {
	cfg := utils.DefaultConfig()
	return cfg.WithRowBudget(steps * cfg.StepRows)
}

// scenario is ten steps with a call at eid 3 returning at eid 8
func scenario() *trace.EventLog {
	return tracetest.NewBuilder(tracetest.BareImage(), 0).
		Plain(2).Call(1).Plain(4).Return(0).Plain(2).
		Log()
}

// program exercises stack, heap, globals, host calls, growth and nested
// frames, and returns from the root frame
func program() (*trace.EventLog, *trace.Image) {
	img := tracetest.Image()
	log := tracetest.NewBuilder(img, tracetest.Entry).
		Push(5).Push(6).
		Call(1).
		Load(0, 11).Store(0, 99).Load(5, 0).
		SetGlobal(0, trace.I32, 8).
		Host(trace.HostInput, true, 1).
		Call(2).
		Host(trace.External, false, 3, 4).
		Grow(1, true).
		Store(9000, 5).
		Host(trace.ContextIn, false).
		Host(trace.External, false, 7).
		Return(0).
		GetGlobal(1, trace.I64, 42).
		Return(1).
		Pop(5).Load(0, 99).GetGlobal(0, trace.I32, 8).
		Return(0).
		Log()
	return log, img
}

func run(t *testing.T, log *trace.EventLog, img *trace.Image, cfg *utils.Config) []*slicer.Slice {
	t.Helper()
	slices, err := slicer.Run(log, img, cfg, backend.NewResident())
	require.NoError(t, err)
	return slices
}

func tables(t *testing.T, s *slicer.Slice) *backend.Tables {
	t.Helper()
	tb, err := s.Tables()
	require.NoError(t, err)
	return tb
}

func TestConcreteScenario(t *testing.T) {
	slices := run(t, scenario(), tracetest.BareImage(), budget(6))
	require.Len(t, slices, 2)

	s0, s1 := tables(t, slices[0]), tables(t, slices[1])
	require.Len(t, s0.EventTable, 6)
	require.Equal(t, uint32(1), s0.EventTable[0].Eid)
	require.Len(t, s1.EventTable, 4)
	require.Equal(t, uint32(7), s1.EventTable[0].Eid)

	require.Empty(t, s0.FrameTable.Inherited)
	require.Equal(t, []frame.Entry{{FrameID: 3, CalleeFid: 1, CallerFid: 0, CallerIid: 2}}, s0.FrameTable.Called)

	require.Len(t, s1.FrameTable.Inherited, 1)
	inherited := s1.FrameTable.Inherited[0]
	require.Equal(t, uint32(3), inherited.FrameID)
	require.True(t, inherited.Inherited)
	require.True(t, inherited.Returned, "frame 3 returns at eid 8")
	require.Empty(t, s1.FrameTable.Called)

	require.Equal(t, slices[0].Post, slices[1].Pre)
	post := slices[0].Post
	require.Equal(t, uint32(7), post.Eid)
	require.Equal(t, uint32(1), post.Fid)
	require.Equal(t, uint32(3), post.Iid)
	require.Equal(t, uint32(3), post.FrameID)
	require.Equal(t, uint64(1), post.PendingCallReturnOps)

	final := slices[1].Post
	require.Equal(t, uint32(11), final.Eid)
	require.Zero(t, final.Fid)
	require.Zero(t, final.Iid)
	require.Zero(t, final.FrameID)
	require.Zero(t, final.PendingCallReturnOps)
	require.True(t, slices[1].IsFinal)
	require.False(t, slices[0].IsFinal)
}

func TestReconstruction(t *testing.T) {
	log, img := program()
	for steps := 1; steps <= log.Len()+1; steps++ {
		var got []trace.Step
		for _, s := range run(t, log, img, budget(steps)) {
			if s.IsPadding {
				continue
			}
			got = append(got, tables(t, s).EventTable...)
		}
		require.Equal(t, log.Range(0, log.Len()), got, "steps per slice %d", steps)
	}
}

func TestCursorContinuity(t *testing.T) {
	log, img := program()
	for steps := 1; steps <= log.Len(); steps++ {
		slices := run(t, log, img, budget(steps).WithPaddingTarget(log.Len()+2))
		for i := 0; i+1 < len(slices); i++ {
			require.Equal(t, slices[i].Post, slices[i+1].Pre, "boundary %d/%d at %d steps", i, i+1, steps)
			require.LessOrEqual(t, slices[i].Post.PendingCallReturnOps, slices[i].Pre.PendingCallReturnOps)
		}
		first, last := slices[0].Pre, slices[len(slices)-1].Post
		require.Equal(t, uint64(5), first.PendingCallReturnOps)
		require.Zero(t, last.PendingCallReturnOps)
		require.Equal(t, uint32(log.Len()+1), last.Eid)
		require.Equal(t, uint64(1), last.HostPublicInputIndex)
		require.Equal(t, uint64(1), last.ContextInIndex)
		require.Equal(t, uint64(2), last.ExternalHostCallIndex)
		require.Equal(t, uint32(2), last.AllocatedMemoryPages)
		require.Equal(t, uint32(4), last.MaximalMemoryPages)
	}
}

func TestFrameContinuity(t *testing.T) {
	log, img := program()
	for steps := 1; steps <= log.Len(); steps++ {
		slices := run(t, log, img, budget(steps))
		require.Equal(t, frame.StaticEntries(img)[0].FrameID, tables(t, slices[0]).FrameTable.Inherited[0].FrameID)
		for i := 0; i+1 < len(slices); i++ {
			cur := tables(t, slices[i]).FrameTable
			var open []frame.Entry
			for _, e := range append(append([]frame.Entry{}, cur.Inherited...), cur.Called...) {
				if !e.Returned {
					e.Inherited = true
					open = append(open, e)
				}
			}
			var next []frame.Entry
			for _, e := range tables(t, slices[i+1]).FrameTable.Inherited {
				e.Returned = false
				next = append(next, e)
			}
			require.Equal(t, open, next, "boundary %d/%d at %d steps", i, i+1, steps)
		}
	}
}

func TestMemoryContinuity(t *testing.T) {
	log, img := program()
	for steps := 1; steps <= log.Len(); steps++ {
		slices := run(t, log, img, budget(steps))
		written := map[memory.Key]uint64{}
		for i := 0; i+1 < len(slices); i++ {
			for _, step := range tables(t, slices[i]).EventTable {
				for _, acc := range step.Effect.Memory {
					if acc.Access == trace.Write && acc.Location != trace.Stack {
						written[memory.Key{Location: acc.Location, Address: acc.Address}] = acc.Value
					}
				}
			}
			init := slices[i+1].InitMemory
			for k, v := range written {
				c, ok := init.Lookup(k.Location, k.Address)
				require.True(t, ok, "slice %d misses %s %d", i+1, k.Location, k.Address)
				require.Equal(t, v, c.Value)
			}
		}
	}
}

func TestImageFallbackRecordedInInitTable(t *testing.T) {
	log, img := program()
	slices := run(t, log, img, budget(log.Len()))
	require.Len(t, slices, 1)

	c, ok := slices[0].InitMemory.Lookup(trace.Heap, 5)
	require.True(t, ok)
	require.Zero(t, c.Value)
	require.Zero(t, c.Eid)

	g, ok := slices[0].InitMemory.Lookup(trace.Global, 1)
	require.True(t, ok)
	require.Equal(t, uint64(42), g.Value)
	require.False(t, g.Mutable)
}

func TestStackClearedBelowBoundary(t *testing.T) {
	log, img := program()
	// the boundary after eid 17 sits at sp 4094: the cell popped by the
	// return at 4094 is gone, the live cell at 4095 survives
	slices := run(t, log, img, budget(17))
	require.Len(t, slices, 2)
	require.Equal(t, uint32(4094), slices[1].Pre.Sp)

	_, ok := slices[1].InitMemory.Lookup(trace.Stack, 4094)
	require.False(t, ok)
	c, ok := slices[1].InitMemory.Lookup(trace.Stack, 4095)
	require.True(t, ok)
	require.Equal(t, uint64(5), c.Value)
}

func TestPaddingIdempotence(t *testing.T) {
	log, img := program()
	base := run(t, log, img, budget(4))
	n := len(base)

	for _, target := range []int{0, 1, n} {
		padded := run(t, log, img, budget(4).WithPaddingTarget(target))
		require.Len(t, padded, n)
		for i := range base {
			require.Equal(t, base[i].Pre, padded[i].Pre)
			require.Equal(t, base[i].Post, padded[i].Post)
		}
	}

	padded := run(t, log, img, budget(4).WithPaddingTarget(n+3))
	require.Len(t, padded, n+3)
	last := base[n-1]
	for _, s := range padded[n:] {
		require.True(t, s.IsPadding)
		require.Equal(t, last.Post, s.Pre)
		require.Equal(t, s.Pre, s.Post)
		require.Zero(t, s.Steps)
		tb := tables(t, s)
		require.Empty(t, tb.EventTable)
		require.Empty(t, tb.FrameTable.Inherited)
		require.Empty(t, tb.FrameTable.Called)
		require.Equal(t, padded[n].InitMemory, s.InitMemory)
	}
}

func TestSkipNonInterference(t *testing.T) {
	log, img := program()
	ref := run(t, log, img, budget(5))
	for _, skip := range []int{1, 3, len(ref) + 2} {
		got := run(t, log, img, budget(5).WithSkipCount(skip))
		require.Len(t, got, len(ref))
		for i := range ref {
			require.Equal(t, i < skip, got[i].Skipped)
			require.Equal(t, ref[i].Pre, got[i].Pre)
			require.Equal(t, ref[i].Post, got[i].Post)
			require.Equal(t, ref[i].InitMemory, got[i].InitMemory)
			require.Equal(t, tables(t, ref[i]), tables(t, got[i]))
		}
	}
}

func TestExternalHostCallTable(t *testing.T) {
	log, img := program()
	var calls []trace.ExternalHostCall
	for _, s := range run(t, log, img, budget(3)) {
		calls = append(calls, tables(t, s).ExternalHostCallTable...)
	}
	require.Equal(t, []trace.ExternalHostCall{
		{Index: 0, Eid: 10, Op: uint32(trace.External), Args: []uint64{3, 4}},
		{Index: 1, Eid: 14, Op: uint32(trace.External), Args: []uint64{7}},
	}, calls)
}

func TestTerminalCheck(t *testing.T) {
	log := tracetest.NewBuilder(tracetest.BareImage(), 0).Plain(2).Call(1).Plain(2).Log()
	_, err := slicer.Run(log, tracetest.BareImage(), budget(2), backend.NewResident())
	require.ErrorIs(t, err, errs.ErrSoundness)
}

func TestSoundnessViolations(t *testing.T) {
	img := tracetest.BareImage()
	tests := []struct {
		name string
		log  *trace.EventLog
	}{
		{"return without frame", tracetest.NewBuilder(img, 0).Plain(1).Return(0).Log()},
		{"read mismatch", tracetest.NewBuilder(img, 0).Load(0, 12).Log()},
		{"read beyond allocated pages", tracetest.NewBuilder(img, 0).Load(9000, 0).Log()},
		{"stack read before write", tracetest.NewBuilder(img, 0).Pop(1).Log()},
		{"immutable global write", tracetest.NewBuilder(img, 0).SetGlobal(1, trace.I64, 1).Log()},
		{"grow beyond maximum", tracetest.NewBuilder(img, 0).Grow(4, true).Log()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := slicer.Run(tt.log, img, budget(4), backend.NewResident())
			require.ErrorIs(t, err, errs.ErrSoundness)
		})
	}
}

func TestConfigErrors(t *testing.T) {
	log := scenario()
	img := tracetest.BareImage()

	_, err := slicer.Run(log, img, utils.DefaultConfig().WithRowBudget(7), backend.NewResident())
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = slicer.Run(log, img, budget(2).WithPaddingTarget(-1), backend.NewResident())
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = slicer.Run(log, img, budget(2), nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = slicer.Run(nil, img, budget(2), backend.NewResident())
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStagedMatchesResident(t *testing.T) {
	log, img := program()
	staged, err := backend.NewStaged(t.TempDir(), "program")
	require.NoError(t, err)

	want := run(t, log, img, budget(4).WithPaddingTarget(8))
	got, err := slicer.Run(log, img, budget(4).WithPaddingTarget(8), staged)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Pre, got[i].Pre)
		require.Equal(t, want[i].Post, got[i].Post)
		require.Equal(t, want[i].InitMemory, got[i].InitMemory)
		require.Equal(t, tables(t, want[i]), tables(t, got[i]))
	}
}

func TestStateMachine(t *testing.T) {
	s, err := slicer.New(scenario(), tracetest.BareImage(), budget(6).WithPaddingTarget(3), backend.NewResident())
	require.NoError(t, err)
	require.Equal(t, slicer.Accumulating, s.State())

	_, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, slicer.Accumulating, s.State())

	last, err := s.Next()
	require.NoError(t, err)
	require.True(t, last.IsFinal)
	require.Equal(t, slicer.Padding, s.State())

	pad, err := s.Next()
	require.NoError(t, err)
	require.True(t, pad.IsPadding)
	require.Equal(t, 2, pad.Index)

	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, slicer.Finalized, s.State())
	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestFailedSlicerKeepsError(t *testing.T) {
	img := tracetest.BareImage()
	tests := []struct {
		name string
		log  *trace.EventLog
		ok   int
	}{
		{"read mismatch after a good slice", tracetest.NewBuilder(img, 0).Plain(2).Load(0, 12).Plain(1).Log(), 1},
		{"unreturned call at the end", tracetest.NewBuilder(img, 0).Plain(2).Call(1).Plain(2).Log(), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := slicer.New(tt.log, img, budget(2).WithPaddingTarget(6), backend.NewResident())
			require.NoError(t, err)
			for i := 0; i < tt.ok; i++ {
				_, err := s.Next()
				require.NoError(t, err)
			}

			_, first := s.Next()
			require.ErrorIs(t, first, errs.ErrSoundness)
			require.Equal(t, slicer.Failed, s.State())
			for i := 0; i < 3; i++ {
				slice, err := s.Next()
				require.Nil(t, slice)
				require.Same(t, first, err)
				require.NotErrorIs(t, err, io.EOF)
				require.Equal(t, slicer.Failed, s.State())
			}
		})
	}
}

func TestStackCellSurvivesUntouchedSlice(t *testing.T) {
	img := tracetest.BareImage()
	// the cell at 4095 is written in slice 0, idle through slices 1 and 2
	// and read back in slice 3
	log := tracetest.NewBuilder(img, 0).Push(5).Plain(2).Pop(5).Log()
	slices := run(t, log, img, budget(1))
	require.Len(t, slices, 4)

	for _, sl := range slices[1:] {
		require.Equal(t, uint32(4094), sl.Pre.Sp)
		c, ok := sl.InitMemory.Lookup(trace.Stack, 4095)
		require.True(t, ok, "slice %d misses the live stack cell", sl.Index)
		require.Equal(t, uint64(5), c.Value)
	}
}

func TestDispatch(t *testing.T) {
	log, img := program()
	slices := run(t, log, img, budget(3).WithSkipCount(2))

	var mu sync.Mutex
	seen := map[int]bool{}
	err := slicer.Dispatch(context.Background(), slices, 3, func(_ context.Context, s *slicer.Slice) error {
		mu.Lock()
		defer mu.Unlock()
		seen[s.Index] = true
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, len(slices)-2)
	require.False(t, seen[0])
	require.False(t, seen[1])
	require.True(t, seen[len(slices)-1])
}

func TestDispatchStopsOnError(t *testing.T) {
	log, img := program()
	slices := run(t, log, img, budget(3))
	boom := errors.New("boom")

	err := slicer.Dispatch(context.Background(), slices, 1, func(_ context.Context, s *slicer.Slice) error {
		if s.Index == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = slicer.Dispatch(ctx, slices, 2, func(context.Context, *slicer.Slice) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
