package vybiumwasmcontinuations

import (
	"context"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/backend"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/boundary"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/commit"
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/slicer"
)

// Result is a sliced trace together with its commitments
type Result struct {
	Slices []*Slice

	// Digests holds one commitment per slice, in index order
	Digests []Digest

	// Root commits to the whole chain
	Root Digest
}

// NewBackend creates the backend selected by config
func NewBackend(config *Config) (Backend, error) {
	return backend.New(backend.Kind(config.Backend), config.StageDir, config.Name)
}

// SliceTrace slices log against img and commits to every slice
func SliceTrace(log *EventLog, img *Image, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	store, err := NewBackend(config)
	if err != nil {
		return nil, err
	}
	slices, err := slicer.Run(log, img, config, store)
	if err != nil {
		return nil, err
	}
	result := &Result{Slices: slices, Digests: make([]Digest, len(slices))}
	for i, s := range slices {
		if result.Digests[i], err = commit.Slice(s); err != nil {
			return nil, err
		}
	}
	if result.Root, err = commit.ChainRoot(result.Digests); err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyChain checks every boundary of a sliced trace with the link circuit
func VerifyChain(slices []*Slice) error {
	pre := make([]StateCursor, len(slices))
	post := make([]StateCursor, len(slices))
	for i, s := range slices {
		pre[i], post[i] = s.Pre, s.Post
	}
	return boundary.CheckChain(pre, post)
}

// Dispatch hands every slice not marked skipped to fn on at most workers
// goroutines
func Dispatch(ctx context.Context, slices []*Slice, workers int, fn func(context.Context, *Slice) error) error {
	return slicer.Dispatch(ctx, slices, workers, fn)
}

// DigestHex encodes a digest as hex
func DigestHex(d Digest) string {
	return commit.Hex(d)
}
