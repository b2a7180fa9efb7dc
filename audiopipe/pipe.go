// Package audiopipe implements the event-driven audio dataflow graph: a
// directed graph of nodes exchanging fixed-rate mono sample frames, with
// explicit, cooperative back-pressure instead of blocking calls.
//
// Every node is a Source, a Sink, or both. The contract is intentionally
// small and synchronous: all of it runs on a single reactor goroutine, and
// none of it may block (see the reactor package for the event loop that
// drives timers and deferred cleanup).
package audiopipe

import "github.com/google/uuid"

// Frame is a contiguous sequence of mono samples, normalized to
// [-1.0, +1.0]. Out-of-range values are not clipped by the pipe.
type Frame []float32

// Node is the identity every pipe participant carries for the life of its
// ownership edge.
type Node interface {
	ID() uuid.UUID
}

// Sink is implemented by anything that consumes sample frames.
type Sink interface {
	Node

	// WriteSamples offers frame to the sink and reports how many leading
	// samples it accepted. Returning less than len(frame) is back-pressure:
	// the source must not offer more until ResumeOutput is called on the
	// Source it registered via RegisterSource.
	WriteSamples(frame Frame) (accepted int)

	// FlushSamples declares that no more samples follow the ones already
	// written. The sink must eventually call AllSamplesFlushed on its
	// registered source once the flush has fully drained downstream.
	FlushSamples()

	// RegisterSource tells the sink which Source it should call
	// ResumeOutput/AllSamplesFlushed back on. Called once, when the sink is
	// connected to its upstream.
	RegisterSource(Source)
}

// Source is implemented by anything that produces sample frames.
type Source interface {
	Node

	// ResumeOutput is called by a sink that was short-writing and has
	// become ready to accept more samples.
	ResumeOutput()

	// AllSamplesFlushed acknowledges that a prior FlushSamples has fully
	// propagated through the sink.
	AllSamplesFlushed()
}

// assert panics with a descriptive message. It stands in for the source's
// debug-build assert(): programmer misuse (double removal, unhandled
// timeout, etc.) is undefined behavior in the source and is fatal here.
func assert(cond bool, msg string) {
	if !cond {
		panic("audiopipe: " + msg)
	}
}
