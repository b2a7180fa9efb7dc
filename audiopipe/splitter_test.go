package audiopipe_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svxlink-go/corepipe/audiopipe"
	"github.com/svxlink-go/corepipe/reactor"
)

// capSink accepts at most `cap` samples per WriteSamples call (0 means
// unbounded) and records everything it was asked to accept across calls.
type capSink struct {
	id       uuid.UUID
	cap      int
	upstream audiopipe.Source
	written  []float32
	flushes  int
}

func newCapSink(cap int) *capSink { return &capSink{id: uuid.New(), cap: cap} }

func (s *capSink) ID() uuid.UUID                          { return s.id }
func (s *capSink) RegisterSource(src audiopipe.Source)    { s.upstream = src }

// FlushSamples counts the flush and, having nothing further downstream,
// acknowledges it immediately.
func (s *capSink) FlushSamples() {
	s.flushes++
	if s.upstream != nil {
		s.upstream.AllSamplesFlushed()
	}
}

func (s *capSink) WriteSamples(frame audiopipe.Frame) int {
	n := len(frame)
	if s.cap > 0 && n > s.cap {
		n = s.cap
	}
	s.written = append(s.written, frame[:n]...)
	return n
}

// ackSink flushes only once told to via ack(), used to control exactly when
// AllSamplesFlushed fires on its branch.
type ackSink struct {
	id       uuid.UUID
	upstream audiopipe.Source
	written  []float32
	flushed  bool
}

func newAckSink() *ackSink { return &ackSink{id: uuid.New()} }

func (s *ackSink) ID() uuid.UUID                       { return s.id }
func (s *ackSink) RegisterSource(src audiopipe.Source) { s.upstream = src }
func (s *ackSink) FlushSamples()                       { s.flushed = true }
func (s *ackSink) WriteSamples(frame audiopipe.Frame) int {
	s.written = append(s.written, frame...)
	return len(frame)
}
func (s *ackSink) ack() { s.upstream.AllSamplesFlushed() }

// stubSource records ResumeOutput/AllSamplesFlushed calls from its
// downstream splitter.
type stubSource struct {
	id       uuid.UUID
	resumes  int
	flushed  int
}

func newStubSource() *stubSource { return &stubSource{id: uuid.New()} }

func (s *stubSource) ID() uuid.UUID        { return s.id }
func (s *stubSource) ResumeOutput()        { s.resumes++ }
func (s *stubSource) AllSamplesFlushed()   { s.flushed++ }

func TestSplitter_S1_PerBranchBackpressure(t *testing.T) {
	loop := reactor.NewLoop()
	splitter := audiopipe.NewSplitter(loop)
	upstream := newStubSource()
	splitter.RegisterSource(upstream)

	b1 := newCapSink(0)  // accepts everything
	b2 := newCapSink(5)  // accepts at most 5 per call
	splitter.AddSink(b1, false)
	splitter.AddSink(b2, false)

	frame := make(audiopipe.Frame, 10)
	for i := range frame {
		frame[i] = float32(i)
	}

	accepted := splitter.WriteSamples(frame)
	require.Equal(t, 5, accepted, "splitter must report only what the slowest branch absorbed")
	assert.Equal(t, 10, len(b1.written), "fast branch receives everything offered")
	assert.Equal(t, 5, len(b2.written), "slow branch only receives what it accepted")
	assert.Equal(t, 0, upstream.resumes, "no resume yet: b2 hasn't caught up")

	// b2 becomes ready and catches up to the rest of the buffered frame.
	b2.cap = 0
	splitterBranch2ResumeOutput(t, splitter, b2)

	assert.Equal(t, 10, len(b2.written), "b2 should now have drained the rest of the frame")
	assert.Equal(t, 1, upstream.resumes, "upstream resumed exactly once, after both branches caught up")
}

// splitterBranch2ResumeOutput finds the Source the splitter registered on
// b2 (via RegisterSource) and invokes its ResumeOutput, the same way b2
// itself would once it becomes ready to accept more.
func splitterBranch2ResumeOutput(t *testing.T, splitter *audiopipe.Splitter, b2 *capSink) {
	t.Helper()
	require.NotNil(t, b2.upstream, "splitter must register itself as b2's source")
	b2.upstream.ResumeOutput()
}

func TestSplitter_S2_RemoveDuringFlush(t *testing.T) {
	loop := reactor.NewLoop()
	splitter := audiopipe.NewSplitter(loop)
	upstream := newStubSource()
	splitter.RegisterSource(upstream)

	b1 := newAckSink()
	b2 := newAckSink()
	splitter.AddSink(b1, false)
	splitter.AddSink(b2, false)

	splitter.FlushSamples()
	assert.True(t, b1.flushed, "flush propagates to every enabled branch")
	assert.True(t, b2.flushed, "flush propagates to every enabled branch")

	// b2 is removed before it acknowledges the flush: its removal must be
	// deferred (the splitter is mid-flush), not applied immediately.
	splitter.RemoveSink(b2)

	// b1 acknowledges; b2's pending removal means the flush must not yet be
	// considered complete.
	b1.ack()
	assert.Equal(t, 0, upstream.flushed, "flush must wait for b2's deferred removal to be applied")

	// Run the reactor loop long enough for the zero-delay cleanup timer to
	// fire and splice b2 out.
	drainLoop(loop)

	assert.Equal(t, 1, upstream.flushed, "flush completes once b2's removal is actually applied")
}

func TestSplitter_ManagedSinkClosedOnRemoval(t *testing.T) {
	loop := reactor.NewLoop()
	splitter := audiopipe.NewSplitter(loop)
	splitter.RegisterSource(newStubSource())

	rec := audiopipe.NewBufferSink(0)
	splitter.AddSink(rec, true)
	splitter.RemoveSink(rec)
	// idle splitter removes synchronously; Close should not panic and the
	// sink should be gone from future writes.
	n := splitter.WriteSamples(audiopipe.Frame{1, 2, 3})
	assert.Equal(t, 3, n, "with no branches left, everything offered is considered accepted")
	assert.Empty(t, rec.Samples(), "a removed sink receives no further samples")
}

func TestSplitter_EnableDisable(t *testing.T) {
	loop := reactor.NewLoop()
	splitter := audiopipe.NewSplitter(loop)
	splitter.RegisterSource(newStubSource())

	b1 := newCapSink(0)
	splitter.AddSink(b1, false)

	splitter.EnableSink(b1, false)
	splitter.WriteSamples(audiopipe.Frame{1, 2, 3})
	assert.Empty(t, b1.written, "a disabled branch receives nothing")

	// Re-enabling advances the branch's cursor to the buffer's current
	// length instead of replaying what it missed while disabled.
	splitter.EnableSink(b1, true)
	assert.Empty(t, b1.written, "re-enabling skips the backlog rather than replaying it")

	splitter.WriteSamples(audiopipe.Frame{4, 5})
	assert.Equal(t, []float32{4, 5}, b1.written, "once re-enabled, new samples flow normally")
}

func drainLoop(loop *reactor.Loop) {
	// The splitter's cleanup timer is armed with a 0ms delay; give the loop
	// one synchronous pass to fire it without depending on wall-clock time
	// in the test.
	loop.RunOnce()
}
