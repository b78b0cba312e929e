package slicer

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/log"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/memory"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/utils"
)

// State is the position of the slicer in its lifecycle
type State int

const (
	Accumulating State = iota
	Cutting
	Padding
	Finalized
	// Failed is terminal. Next keeps returning the error that caused it.
	Failed
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Cutting:
		return "cutting"
	case Padding:
		return "padding"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Slicer owns the ledger, tracker and cursor of one run. It is not safe for
// concurrent use.
type Slicer struct {
	log   *trace.EventLog
	img   *trace.Image
	cfg   *utils.Config
	store backend.Backend

	ledger  *frame.Ledger
	tracker *memory.Tracker
	cursor  *cursor.Cursor

	state    State
	err      error
	pos      int
	index    int
	capacity int

	// last is the post cursor of the most recent slice
	last cursor.StateCursor

	logger zerolog.Logger
}

// New creates a slicer over log. The configuration is validated before any
// step is read.
func New(events *trace.EventLog, img *trace.Image, cfg *utils.Config, store backend.Backend) (*Slicer, error) {
	if cfg == nil {
		return nil, errs.Config("slicer requires a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errs.Config("slicer requires a backend")
	}
	if events == nil || events.Len() == 0 {
		return nil, errs.Input("event log is empty")
	}
	if img == nil {
		return nil, errs.Input("program image is missing")
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return &Slicer{
		log:      events,
		img:      img,
		cfg:      cfg,
		store:    store,
		ledger:   frame.NewLedger(frame.StaticEntries(img)),
		tracker:  memory.NewTracker(img),
		cursor:   cursor.New(events, img),
		capacity: cfg.StepsPerSlice(),
		logger:   log.Module("slicer"),
	}, nil
}

// State returns the current lifecycle state
func (s *Slicer) State() State {
	return s.state
}

// Next produces the next slice, or io.EOF once the log is exhausted and the
// padding target is met. After an error the slicer is Failed and every
// further call returns that same error.
func (s *Slicer) Next() (*Slice, error) {
	var (
		slice *Slice
		err   error
	)
	switch s.state {
	case Failed:
		return nil, s.err
	case Accumulating:
		slice, err = s.cut()
	case Padding:
		if s.index >= s.cfg.PaddingTarget {
			s.state = Finalized
			return nil, io.EOF
		}
		slice, err = s.pad()
	default:
		return nil, io.EOF
	}
	if err != nil {
		s.state = Failed
		s.err = err
		s.logger.Error().Err(err).Int("slice", s.index).Msg("slicing failed")
		return nil, err
	}
	return slice, nil
}

// consume feeds one step to the ledger, tracker and cursor
func (s *Slicer) consume(step trace.Step, external *[]trace.ExternalHostCall) error {
	if err := s.cursor.Pages(step); err != nil {
		return err
	}
	if err := s.tracker.Apply(step); err != nil {
		return err
	}
	switch k := step.Effect.Kind; {
	case k.IsCall():
		s.ledger.Open(step.Eid, step.LastJumpEid, step.Effect.Callee, step.Fid, step.Iid)
	case k == trace.Return:
		if _, err := s.ledger.Close(step.LastJumpEid); err != nil {
			return err
		}
	}
	if step.IsExternalHostCall() {
		host := step.Effect.Host
		*external = append(*external, trace.ExternalHostCall{
			Index: s.cursor.Current().ExternalHostCallIndex,
			Eid:   step.Eid,
			Op:    host.Op,
			Args:  append([]uint64(nil), host.Args...),
		})
	}
	return s.cursor.Advance(step)
}

func (s *Slicer) cut() (*Slice, error) {
	pre := s.cursor.Current()
	end := s.pos + s.capacity
	if end > s.log.Len() {
		end = s.log.Len()
	}
	steps := s.log.Range(s.pos, end)
	var external []trace.ExternalHostCall
	for _, step := range steps {
		if err := s.consume(step, &external); err != nil {
			return nil, fmt.Errorf("slice %d: %w", s.index, err)
		}
	}

	s.state = Cutting
	final := end == s.log.Len()
	if final {
		if err := s.ledger.Finalize(); err != nil {
			return nil, fmt.Errorf("slice %d: %w", s.index, err)
		}
	}
	frames := s.ledger.Flush()
	var next *trace.Step
	if !final {
		n := s.log.At(end)
		next = &n
	}
	post, err := s.cursor.Close(final, steps[len(steps)-1], next)
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", s.index, err)
	}
	init := s.tracker.SnapshotAndRoll(post.Sp)

	slice, err := s.emit(pre, post, init, &backend.Tables{
		EventTable:            steps,
		FrameTable:            frames,
		ExternalHostCallTable: external,
	})
	if err != nil {
		return nil, err
	}
	slice.IsFinal = final
	s.logger.Debug().
		Int("slice", slice.Index).
		Uint32("from_eid", pre.Eid).
		Uint32("to_eid", post.Eid).
		Int("inherited", len(frames.Inherited)).
		Int("called", len(frames.Called)).
		Int("init_cells", len(init)).
		Msg("cut slice")

	s.pos = end
	if final {
		s.state = Padding
		s.logger.Info().Int("slices", s.index).Int("steps", s.log.Len()).Msg("event log sliced")
	} else {
		s.state = Accumulating
	}
	return slice, nil
}

// pad appends a slice with no steps that carries the final state forward
func (s *Slicer) pad() (*Slice, error) {
	slice, err := s.emit(s.last, s.last, s.tracker.Opening(), &backend.Tables{
		FrameTable: s.ledger.Flush(),
	})
	if err != nil {
		return nil, err
	}
	slice.IsPadding = true
	s.logger.Debug().Int("slice", slice.Index).Msg("padding slice")
	return slice, nil
}

func (s *Slicer) emit(pre, post cursor.StateCursor, init memory.Table, tables *backend.Tables) (*Slice, error) {
	handle, err := s.store.Build(s.index, tables)
	if err != nil {
		return nil, fmt.Errorf("slice %d: build sub-tables: %w", s.index, err)
	}
	slice := &Slice{
		Index:      s.index,
		Pre:        pre,
		Post:       post,
		InitMemory: init,
		Skipped:    s.index < s.cfg.SkipCount,
		Steps:      len(tables.EventTable),
		handle:     handle,
		store:      s.store,
	}
	s.last = post
	s.index++
	return slice, nil
}
