package backend

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/log"
)

// Checksum is the sha3-256 digest of one staged artifact
type Checksum [32]byte

// StagedHandle references the artifacts of one slice on disk
type StagedHandle struct {
	index     int
	Paths     Destination
	Checksums [3]Checksum
}

// Index returns the slice index
func (h *StagedHandle) Index() int { return h.index }

// StagedBackend serializes sub-tables to files under a directory
type StagedBackend struct {
	dir    string
	name   string
	logger zerolog.Logger
}

// NewStaged creates a staged backend writing under dir. Artifacts are
// named after the logical trace name.
func NewStaged(dir, name string) (*StagedBackend, error) {
	if dir == "" {
		return nil, errs.Config("staged backend requires a directory")
	}
	if name == "" {
		return nil, errs.Config("staged backend requires a trace name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Resource(err, "create stage directory %s", dir)
	}
	return &StagedBackend{dir: dir, name: name, logger: log.Module("backend")}, nil
}

// Kind returns Staged
func (b *StagedBackend) Kind() Kind { return Staged }

// Dir returns the stage directory
func (b *StagedBackend) Dir() string { return b.dir }

// Build writes each sub-table to its own file and returns a path handle
func (b *StagedBackend) Build(index int, tables *Tables) (Handle, error) {
	if tables == nil {
		return nil, errs.Input("slice %d: tables cannot be nil", index)
	}
	h := &StagedHandle{index: index, Paths: Layout(b.dir, b.name, index)}
	for i, s := range subTables {
		data, err := encode(s, tables)
		if err != nil {
			return nil, fmt.Errorf("slice %d: encode %s: %w", index, s, err)
		}
		path := h.Paths.Path(s)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, errs.Resource(err, "slice %d: stage %s", index, path)
		}
		h.Checksums[i] = sha3.Sum256(data)
		b.logger.Debug().Int("slice", index).Str("table", s.String()).Int("bytes", len(data)).Msg("staged sub-table")
	}
	return h, nil
}

func stagedHandle(h Handle) (*StagedHandle, error) {
	sh, ok := h.(*StagedHandle)
	if !ok {
		return nil, errs.Input("handle %T does not belong to the staged backend", h)
	}
	return sh, nil
}

// Materialize reads the artifacts back, verifying their checksums
func (b *StagedBackend) Materialize(h Handle) (*Tables, error) {
	sh, err := stagedHandle(h)
	if err != nil {
		return nil, err
	}
	tables := &Tables{}
	for i, s := range subTables {
		path := sh.Paths.Path(s)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Resource(err, "slice %d: read %s", sh.index, path)
		}
		if sum := sha3.Sum256(data); !bytes.Equal(sum[:], sh.Checksums[i][:]) {
			return nil, errs.Resource(nil, "slice %d: checksum mismatch in %s", sh.index, path)
		}
		if err := decode(s, data, tables); err != nil {
			return nil, errs.Wrap(errs.CodeResource, err, "slice %d: decode %s", sh.index, path)
		}
	}
	return tables, nil
}

// Write links or copies the staged artifacts to dst. Artifacts already at
// their destination are left untouched.
func (b *StagedBackend) Write(h Handle, dst Destination) error {
	sh, err := stagedHandle(h)
	if err != nil {
		return err
	}
	for _, s := range subTables {
		src, to := sh.Paths.Path(s), dst.Path(s)
		same, err := samePath(src, to)
		if err != nil {
			return errs.Resource(err, "slice %d: resolve %s", sh.index, to)
		}
		if same {
			continue
		}
		if err := place(src, to); err != nil {
			return errs.Resource(err, "slice %d: write %s", sh.index, to)
		}
	}
	return nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}

// place hard-links src to dst, falling back to a copy across devices
func place(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
