// Package vybiumwasmcontinuations slices WASM execution traces into bounded,
// independently provable segments.
//
// A trace produced by a WASM tracer is too long to prove in one circuit.
// The slicer walks the trace once, keeping the live call stack, the memory
// image and a scalar state cursor, and cuts the trace into slices whose
// boundary cursors match exactly. Each slice carries the frames open when
// it began, the memory cells it may read first and its public pre and post
// cursors.
//
// # Quick Start
//
// Slicing a trace held in memory:
//
//	log, err := vybiumwasmcontinuations.LoadEventLog("trace.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	img, err := vybiumwasmcontinuations.LoadImage("image.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := vybiumwasmcontinuations.DefaultConfig()
//	result, err := vybiumwasmcontinuations.SliceTrace(log, img, config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, s := range result.Slices {
//		fmt.Println(s.Index, s.Pre.Eid, s.Post.Eid)
//	}
//
// # Staged slicing
//
// Traces larger than memory are sliced with the staged backend, which
// writes each slice's sub-tables to disk as soon as the slice is cut:
//
//	config := vybiumwasmcontinuations.DefaultConfig().WithBackend("staged", "/var/tmp/slices")
//
// # Errors
//
// Every failure carries a category. Configuration errors are reported
// before any step is read. Soundness errors mean the trace does not
// describe a valid execution and must never be retried. Resource errors
// come from the staged backend and may succeed with a different location.
//
//	if errors.Is(err, vybiumwasmcontinuations.ErrSoundness) {
//		// the trace is broken
//	}
package vybiumwasmcontinuations
