package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/frame"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace/tracetest"
)

func sampleTables() *Tables {
	img := tracetest.Image()
	steps := tracetest.NewBuilder(img, tracetest.Entry).
		Push(4).Host(trace.External, false, 10, 20).Grow(1, false).Call(1).Store(3, 30).Return(0).
		Steps()
	return &Tables{
		EventTable: steps,
		FrameTable: frame.Table{
			Inherited: frame.StaticEntries(img),
			Called:    []frame.Entry{{FrameID: 4, CalleeFid: 1, CallerIid: 3, Returned: true}},
		},
		ExternalHostCallTable: []trace.ExternalHostCall{{Index: 0, Eid: 2, Op: 3, Args: []uint64{10, 20}}},
	}
}

func TestLayout(t *testing.T) {
	d := Layout("/tmp/out", "fib", 7)
	require.Equal(t, "/tmp/out/fib.7.etable.cbor", d.EventTable)
	require.Equal(t, "/tmp/out/fib.7.frame.cbor", d.FrameTable)
	require.Equal(t, "/tmp/out/fib.7.external_host.cbor", d.ExternalHostCallTable)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Kind("tape"), "", "")
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(Staged, "", "fib")
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestResidentRoundTrip(t *testing.T) {
	b := NewResident()
	tables := sampleTables()

	h, err := b.Build(2, tables)
	require.NoError(t, err)
	require.Equal(t, 2, h.Index())

	got, err := b.Materialize(h)
	require.NoError(t, err)
	require.Equal(t, tables, got)
}

func TestStagedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewStaged(dir, "fib")
	require.NoError(t, err)
	tables := sampleTables()

	h, err := b.Build(0, tables)
	require.NoError(t, err)
	for _, s := range subTables {
		_, err := os.Stat(h.(*StagedHandle).Paths.Path(s))
		require.NoError(t, err)
	}

	got, err := b.Materialize(h)
	require.NoError(t, err)
	require.Equal(t, tables, got)
}

func TestStagedEmptyTables(t *testing.T) {
	b, err := NewStaged(t.TempDir(), "pad")
	require.NoError(t, err)

	h, err := b.Build(5, &Tables{})
	require.NoError(t, err)
	got, err := b.Materialize(h)
	require.NoError(t, err)
	require.Equal(t, &Tables{}, got)
}

func TestStagedDetectsCorruption(t *testing.T) {
	b, err := NewStaged(t.TempDir(), "fib")
	require.NoError(t, err)
	h, err := b.Build(1, sampleTables())
	require.NoError(t, err)

	path := h.(*StagedHandle).Paths.FrameTable
	require.NoError(t, os.WriteFile(path, []byte{0x80}, 0o644))

	_, err = b.Materialize(h)
	require.ErrorIs(t, err, errs.ErrResource)
}

func TestStagedWriteSameDestinationIsNoop(t *testing.T) {
	dir := t.TempDir()
	b, err := NewStaged(dir, "fib")
	require.NoError(t, err)
	h, err := b.Build(3, sampleTables())
	require.NoError(t, err)

	before, err := os.Stat(h.(*StagedHandle).Paths.EventTable)
	require.NoError(t, err)

	require.NoError(t, b.Write(h, Layout(dir, "fib", 3)))

	after, err := os.Stat(h.(*StagedHandle).Paths.EventTable)
	require.NoError(t, err)
	require.True(t, os.SameFile(before, after))
	require.Equal(t, before.ModTime(), after.ModTime())
}

func TestStagedWriteElsewhere(t *testing.T) {
	b, err := NewStaged(t.TempDir(), "fib")
	require.NoError(t, err)
	tables := sampleTables()
	h, err := b.Build(3, tables)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "export")
	dst := Layout(out, "fib", 3)
	require.NoError(t, b.Write(h, dst))
	// a second write onto the now-linked files is also fine
	require.NoError(t, b.Write(h, dst))

	copied := &StagedHandle{index: 3, Paths: dst, Checksums: h.(*StagedHandle).Checksums}
	got, err := b.Materialize(copied)
	require.NoError(t, err)
	require.Equal(t, tables, got)
}

func TestResidentWriteMatchesStagedEncoding(t *testing.T) {
	tables := sampleTables()
	staged, err := NewStaged(t.TempDir(), "fib")
	require.NoError(t, err)
	sh, err := staged.Build(0, tables)
	require.NoError(t, err)

	resident := NewResident()
	rh, err := resident.Build(0, tables)
	require.NoError(t, err)
	dst := Layout(t.TempDir(), "fib", 0)
	require.NoError(t, resident.Write(rh, dst))

	for _, s := range subTables {
		want, err := os.ReadFile(sh.(*StagedHandle).Paths.Path(s))
		require.NoError(t, err)
		got, err := os.ReadFile(dst.Path(s))
		require.NoError(t, err)
		require.Equal(t, want, got, s.String())
	}
}

func TestForeignHandle(t *testing.T) {
	staged, err := NewStaged(t.TempDir(), "fib")
	require.NoError(t, err)
	rh, err := NewResident().Build(0, sampleTables())
	require.NoError(t, err)

	_, err = staged.Materialize(rh)
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	sh, err := staged.Build(0, sampleTables())
	require.NoError(t, err)
	_, err = NewResident().Materialize(sh)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestBuildNilTables(t *testing.T) {
	staged, err := NewStaged(t.TempDir(), "fib")
	require.NoError(t, err)

	_, err = staged.Build(0, nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = NewResident().Build(0, nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}
