package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/boundary"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/commit"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/cursor"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/log"
)

func newCheckCmd() *cobra.Command {
	var (
		manifestPath string
		circuit      bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check cursor continuity, artifacts and the chain root of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := readManifest(manifestPath)
			if err != nil {
				return err
			}
			if err := checkManifest(m, circuit); err != nil {
				return err
			}
			logger := log.Module("cli")
			logger.Info().Int("slices", len(m.Slices)).Bool("circuit", circuit).Msg("manifest consistent")
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest written by the slice command.")
	cmd.Flags().BoolVar(&circuit, "circuit", false, "Also solve the boundary circuit for every neighbor pair.")
	cmd.MarkFlagRequired("manifest")
	return cmd
}

func checkManifest(m *Manifest, circuit bool) error {
	pre := make([]cursor.StateCursor, len(m.Slices))
	post := make([]cursor.StateCursor, len(m.Slices))
	digests := make([]hash.Digest, len(m.Slices))
	for i, s := range m.Slices {
		if s.Index != i {
			return errs.Input("manifest slice %d has index %d", i, s.Index)
		}
		pre[i], post[i] = cursor.FromVector(s.Pre), cursor.FromVector(s.Post)
		if i > 0 {
			if diff := cursor.Diff(post[i-1], pre[i]); diff != "" {
				return errs.Soundness("slice %d/%d boundary broken: %s", i-1, i, diff)
			}
		}
		d, err := commit.ParseHex(s.Digest)
		if err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
		digests[i] = d
		if s.Tables != nil {
			for _, sub := range []backend.SubTable{backend.EventTable, backend.FrameTable, backend.ExternalHostCallTable} {
				if _, err := os.Stat(s.Tables.Path(sub)); err != nil {
					return errs.Resource(err, "slice %d: %s artifact", i, sub)
				}
			}
		}
	}
	if last := post[len(post)-1]; last.PendingCallReturnOps != 0 {
		return errs.Soundness("chain ends with %d pending call/return ops", last.PendingCallReturnOps)
	}

	root, err := commit.ChainRoot(digests)
	if err != nil {
		return err
	}
	if got := commit.Hex(root); got != m.ChainRoot {
		return errs.Soundness("chain root %s does not match manifest %s", got, m.ChainRoot)
	}
	if circuit {
		return boundary.CheckChain(pre, post)
	}
	return nil
}
