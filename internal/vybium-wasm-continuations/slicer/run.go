package slicer

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/utils"
)

// Run slices the whole log. A run either yields a fully consistent chain or
// fails outright.
func Run(events *trace.EventLog, img *trace.Image, cfg *utils.Config, store backend.Backend) ([]*Slice, error) {
	s, err := New(events, img, cfg, store)
	if err != nil {
		return nil, err
	}
	var slices []*Slice
	for {
		slice, err := s.Next()
		if errors.Is(err, io.EOF) {
			return slices, nil
		}
		if err != nil {
			return nil, err
		}
		slices = append(slices, slice)
	}
}

// Dispatch hands every slice not marked skipped to fn, running at most
// workers calls at once. It stops at the first error and returns it.
// Slices must not be mutated by fn.
func Dispatch(ctx context.Context, slices []*Slice, workers int, fn func(context.Context, *Slice) error) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, slice := range slices {
		if slice.Skipped {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, slice)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
