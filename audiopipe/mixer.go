package audiopipe

import "github.com/google/uuid"

// Mixer sums N input streams sample-by-sample into a single output. It is
// the many-to-one counterpart to Splitter: every attached input is its own
// Sink, and the Mixer itself is the Source registered on the single
// downstream sink.
//
// Unlike the teacher's channel-driven mix() goroutine, a Mixer runs in
// lockstep: every still-active input must contribute exactly one frame
// before the accumulated frame is divided and forwarded, and an input that
// tries to contribute twice in the same cycle is back-pressured (offered 0)
// until the cycle turns over. This trades the teacher's two-frame pipeline
// depth for the single-threaded reactor model spec.md requires.
type Mixer struct {
	id         uuid.UUID
	downstream Sink

	inputs []*mixerInput

	buf   []float32
	added int

	pendingOut []float32
	wantFlush  bool
	flushArmed bool
	flushAcked bool
}

// NewMixer returns a Mixer with no inputs and no downstream sink.
func NewMixer() *Mixer {
	return &Mixer{id: uuid.New()}
}

// ID implements Node.
func (m *Mixer) ID() uuid.UUID { return m.id }

// AddInput attaches and returns a new input sink. Every input added before
// the mixer's first emitted frame is counted; adding inputs after samples
// have started flowing is the caller's responsibility to pace correctly.
func (m *Mixer) AddInput() Sink {
	in := &mixerInput{id: uuid.New(), mixer: m}
	m.inputs = append(m.inputs, in)
	return in
}

// SetOutput registers the single downstream sink.
func (m *Mixer) SetOutput(sink Sink) {
	m.downstream = sink
	sink.RegisterSource(m)
}

// ResumeOutput implements Source: downstream is ready for the samples left
// over from a short write.
func (m *Mixer) ResumeOutput() {
	if len(m.pendingOut) == 0 {
		return
	}
	n := m.downstream.WriteSamples(m.pendingOut)
	m.pendingOut = m.pendingOut[n:]
	if len(m.pendingOut) == 0 {
		m.resetCycle()
	}
}

// AllSamplesFlushed implements Source: downstream has fully drained the
// flush the mixer sent once every input flushed.
func (m *Mixer) AllSamplesFlushed() {
	if !m.flushArmed || m.flushAcked {
		return
	}
	m.flushAcked = true
	for _, in := range m.inputs {
		if in.upstream != nil {
			in.upstream.AllSamplesFlushed()
		}
	}
}

func (m *Mixer) tryEmit() {
	active, contributed := 0, 0
	for _, in := range m.inputs {
		if in.flushed {
			continue
		}
		active++
		if in.contributed {
			contributed++
		}
	}
	if active == 0 {
		m.wantFlush = true
		m.maybeSendFlush()
		return
	}
	if contributed < active || len(m.pendingOut) != 0 {
		return
	}
	if m.added > 0 {
		for i := range m.buf {
			m.buf[i] /= float32(m.added)
		}
		m.emit(m.buf)
	} else {
		m.resetCycle()
	}
}

func (m *Mixer) emit(frame []float32) {
	n := m.downstream.WriteSamples(frame)
	if n < len(frame) {
		m.pendingOut = append([]float32(nil), frame[n:]...)
		return
	}
	m.resetCycle()
}

func (m *Mixer) resetCycle() {
	m.buf = m.buf[:0]
	m.added = 0
	for _, in := range m.inputs {
		if !in.flushed {
			in.contributed = false
		}
	}
	for _, in := range m.inputs {
		if !in.flushed && in.upstream != nil {
			in.upstream.ResumeOutput()
		}
	}
	m.maybeSendFlush()
}

func (m *Mixer) maybeSendFlush() {
	if !m.wantFlush || m.flushArmed || len(m.pendingOut) != 0 || m.downstream == nil {
		return
	}
	m.flushArmed = true
	m.downstream.FlushSamples()
}

// mixerInput is one of a Mixer's attached Sinks.
type mixerInput struct {
	id          uuid.UUID
	mixer       *Mixer
	upstream    Source
	contributed bool
	flushed     bool
}

func (in *mixerInput) ID() uuid.UUID { return in.id }

func (in *mixerInput) RegisterSource(src Source) { in.upstream = src }

// WriteSamples implements Sink: accumulate frame into the mixer's
// in-progress cycle. Offering a second frame before the cycle has turned
// over is back-pressure — the caller must wait for ResumeOutput.
func (in *mixerInput) WriteSamples(frame Frame) int {
	if in.flushed || in.contributed {
		return 0
	}
	m := in.mixer
	if len(m.buf) < len(frame) {
		grown := make([]float32, len(frame))
		copy(grown, m.buf)
		m.buf = grown
	}
	for i, v := range frame {
		m.buf[i] += v
	}
	in.contributed = true
	m.added++
	m.tryEmit()
	return len(frame)
}

// FlushSamples implements Sink: this input contributes no further frames.
// The mixer keeps mixing the remaining active inputs until all of them
// have flushed, then flushes downstream exactly once.
func (in *mixerInput) FlushSamples() {
	in.flushed = true
	in.mixer.tryEmit()
}
