package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/log"
	"github.com/vybium/vybium-wasm-continuations/pkg/vybium-wasm-continuations"
)

// StageDirName is the subdirectory of the output directory that holds staged
// sub-tables when no stage directory is configured. Skipped slices are only
// ever written there.
const StageDirName = "stage"

type sliceOptions struct {
	tracePath   string
	imagePath   string
	outDir      string
	verifyImage bool

	name      string
	k         uint32
	rowBudget int
	stepRows  int
	padding   int
	skip      int
	backend   string
	workers   int
}

func newSliceCmd() *cobra.Command {
	opts := &sliceOptions{}
	cmd := &cobra.Command{
		Use:   "slice",
		Short: "Slice a trace and write the per-slice artifacts and a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlice(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.tracePath, "trace", "", "Event log JSON file.")
	f.StringVar(&opts.imagePath, "image", "", "Program image JSON file.")
	f.StringVar(&opts.outDir, "out", "", "Output directory for artifacts and the manifest.")
	f.BoolVar(&opts.verifyImage, "verify-image", true, "Check every step's function against the image before slicing.")
	f.StringVar(&opts.name, "name", "", "Logical trace name used in artifact file names.")
	f.Uint32Var(&opts.k, "k", 0, "Circuit degree; each slice circuit has 2^k rows.")
	f.IntVar(&opts.rowBudget, "row-budget", 0, "Explicit row budget, overrides the k derivation.")
	f.IntVar(&opts.stepRows, "step-rows", 0, "Rows one step occupies.")
	f.IntVar(&opts.padding, "padding", 0, "Minimum total slice count.")
	f.IntVar(&opts.skip, "skip", 0, "Leading slices not sent for proving.")
	f.StringVar(&opts.backend, "backend", "", "Slice backend: resident or staged.")
	f.IntVar(&opts.workers, "workers", 0, "Parallel artifact writers.")

	cmd.MarkFlagRequired("trace")
	cmd.MarkFlagRequired("image")
	cmd.MarkFlagRequired("out")
	return cmd
}

// config layers the defaults, WASM_SLICER_* overrides and explicit flags
func (o *sliceOptions) config(cmd *cobra.Command) (*vybiumwasmcontinuations.Config, error) {
	config := vybiumwasmcontinuations.DefaultConfig()
	if err := config.ParseEnv(); err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("name") {
		config.WithName(o.name)
	}
	if f.Changed("k") {
		config.WithK(o.k)
	}
	if f.Changed("row-budget") {
		config.WithRowBudget(o.rowBudget)
	}
	if f.Changed("step-rows") {
		config.WithStepRows(o.stepRows)
	}
	if f.Changed("padding") {
		config.WithPaddingTarget(o.padding)
	}
	if f.Changed("skip") {
		config.WithSkipCount(o.skip)
	}
	if f.Changed("backend") {
		config.Backend = o.backend
	}
	if f.Changed("workers") {
		config.WithWorkers(o.workers)
	}
	if config.Backend == string(backend.Staged) && config.StageDir == "" {
		config.StageDir = filepath.Join(o.outDir, StageDirName)
	}
	return config, config.Validate()
}

func runSlice(cmd *cobra.Command, opts *sliceOptions) error {
	logger := log.Module("cli")
	config, err := opts.config(cmd)
	if err != nil {
		return err
	}

	events, err := vybiumwasmcontinuations.LoadEventLog(opts.tracePath)
	if err != nil {
		return err
	}
	img, err := vybiumwasmcontinuations.LoadImage(opts.imagePath)
	if err != nil {
		return err
	}
	if opts.verifyImage {
		if err := img.Verify(events); err != nil {
			return err
		}
	}
	logger.Info().Int("steps", events.Len()).Int("steps_per_slice", config.StepsPerSlice()).Str("backend", config.Backend).Msg("slicing trace")

	result, err := vybiumwasmcontinuations.SliceTrace(events, img, config)
	if err != nil {
		return err
	}

	err = vybiumwasmcontinuations.Dispatch(cmd.Context(), result.Slices, config.Workers, func(_ context.Context, s *vybiumwasmcontinuations.Slice) error {
		if err := s.Write(backend.Layout(opts.outDir, config.Name, s.Index)); err != nil {
			return err
		}
		logger.Debug().Int("slice", s.Index).Msg("wrote slice artifacts")
		return nil
	})
	if err != nil {
		return err
	}

	m := &Manifest{
		Name:      config.Name,
		K:         config.CircuitDegree(),
		RowBudget: config.Budget(),
		ChainRoot: vybiumwasmcontinuations.DigestHex(result.Root),
	}
	for i, s := range result.Slices {
		entry := ManifestSlice{
			Index:   s.Index,
			Pre:     s.Pre.Vector(),
			Post:    s.Post.Vector(),
			Digest:  vybiumwasmcontinuations.DigestHex(result.Digests[i]),
			Steps:   s.Steps,
			Final:   s.IsFinal,
			Padding: s.IsPadding,
			Skipped: s.Skipped,
		}
		if !s.Skipped {
			dst := backend.Layout(opts.outDir, config.Name, s.Index)
			entry.Tables = &dst
		}
		m.Slices = append(m.Slices, entry)
	}
	path, err := writeManifest(opts.outDir, m)
	if err != nil {
		return err
	}
	logger.Info().Int("slices", len(m.Slices)).Str("chain_root", m.ChainRoot).Str("manifest", path).Msg("slicing complete")
	fmt.Fprintln(cmd.OutOrStdout(), m.ChainRoot)
	return nil
}
