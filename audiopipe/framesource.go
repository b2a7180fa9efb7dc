package audiopipe

import (
	"github.com/google/uuid"
	"pipelined.dev/signal"

	"github.com/svxlink-go/corepipe/reactor"
)

// FrameSource streams a fixed, pre-loaded Frame to a single downstream
// sink in chunk-sized pieces. It is the push analogue of the teacher's
// floatingSource: instead of being pulled via io.EOF, it is driven by
// Connect and, optionally, a periodic reactor timer for paced playback.
type FrameSource struct {
	id   uuid.UUID
	loop *reactor.Loop

	data  Frame
	pos   int
	chunk int

	sink    Sink
	running bool
	flushed bool

	timer reactor.Timer
}

// NewFrameSource returns a source that will feed data to its sink in
// pieces of at most chunk samples (chunk<=0 offers the remainder in one
// call).
func NewFrameSource(loop *reactor.Loop, data Frame, chunk int) *FrameSource {
	return &FrameSource{id: uuid.New(), loop: loop, data: data, chunk: chunk}
}

// NewFrameSourceFromFloating adapts a pipelined.dev/signal buffer into a
// FrameSource, for playing out clips produced by ecosystem decoders
// (resamplers, file readers) through the push/back-pressure contract.
func NewFrameSourceFromFloating(loop *reactor.Loop, buf signal.Floating, chunk int) *FrameSource {
	return NewFrameSource(loop, FromFloating(buf), chunk)
}

// ID implements Node.
func (f *FrameSource) ID() uuid.UUID { return f.id }

// Connect wires sink as the single downstream and immediately starts
// offering samples to it.
func (f *FrameSource) Connect(sink Sink) {
	f.sink = sink
	sink.RegisterSource(f)
	f.running = true
	f.pump()
}

// Pace arms a periodic reactor timer that re-offers samples every
// intervalMs. Each tick offers as much as the downstream accepts, the same
// as Connect and ResumeOutput do, so the timer does not limit the playout
// rate; it only re-offers whatever data remains. Call after Connect.
func (f *FrameSource) Pace(intervalMs int) {
	if f.loop == nil || f.timer != nil {
		return
	}
	f.timer = f.loop.NewTimer(intervalMs, true, func() {
		if f.running {
			f.pump()
		}
	})
}

// ResumeOutput implements Source: the downstream sink is ready for more
// samples after a short write.
func (f *FrameSource) ResumeOutput() {
	if !f.running {
		return
	}
	f.pump()
}

// AllSamplesFlushed implements Source: the downstream sink has fully
// drained the flush this source sent once its data was exhausted.
func (f *FrameSource) AllSamplesFlushed() {
	f.flushed = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

// Flushed reports whether the downstream sink has acknowledged playout.
func (f *FrameSource) Flushed() bool { return f.flushed }

func (f *FrameSource) pump() {
	for f.running && f.pos < len(f.data) {
		end := len(f.data)
		if f.chunk > 0 && f.pos+f.chunk < end {
			end = f.pos + f.chunk
		}
		n := f.sink.WriteSamples(f.data[f.pos:end])
		f.pos += n
		if n == 0 {
			return
		}
	}
	if f.running && f.pos >= len(f.data) {
		f.running = false
		f.sink.FlushSamples()
	}
}
