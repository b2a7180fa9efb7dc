package audiopipe

import (
	"io"

	"github.com/google/uuid"

	"github.com/svxlink-go/corepipe/reactor"
)

// Splitter fans one upstream stream out to N downstream sinks, absorbing
// per-branch back-pressure without blocking the others. It is the most
// intricate node in the pipe: see spec.md §4.2 for the back-pressure and
// flush algorithms this file implements.
//
// buf holds only the tail of the stream that the slowest active branch
// hasn't yet consumed; base is the absolute sample index of buf[0]. Branch
// cursors are absolute indices in the same coordinate space, so they never
// need resetting when the buffer is trimmed — only the fast path's bound
// (base+len(buf)) moves.
type Splitter struct {
	id       uuid.UUID
	loop     *reactor.Loop
	upstream Source

	buf  []float32
	base int

	branches []*branch

	busy         bool // true while inside WriteSamples/FlushSamples
	doFlush      bool
	flushSent    bool
	inputStopped bool

	cleanupArmed bool
	cleanupTimer reactor.Timer
}

// branch is a splitter's per-downstream record: the sink, its enabled
// state, its absolute cursor into the stream, and the bookkeeping needed to
// defer its own destruction when removed mid-operation.
type branch struct {
	id       uuid.UUID
	splitter *Splitter
	sink     Sink
	enabled  bool
	flushed  bool
	managed  bool
	cursor   int
	removed  bool
}

// NewSplitter returns an empty splitter driven by loop (used to arm the
// zero-delay branch-cleanup timer described in spec.md §4.2/§9).
func NewSplitter(loop *reactor.Loop) *Splitter {
	return &Splitter{id: uuid.New(), loop: loop}
}

// ID implements Node.
func (s *Splitter) ID() uuid.UUID { return s.id }

// RegisterSource implements Sink: it records the upstream node so the
// splitter can call ResumeOutput/AllSamplesFlushed back on it.
func (s *Splitter) RegisterSource(src Source) { s.upstream = src }

// total is the absolute sample index one past the last sample currently
// buffered.
func (s *Splitter) total() int { return s.base + len(s.buf) }

// AddSink appends a branch in the enabled state. Its initial cursor equals
// the stream's current total length, so samples already buffered for
// slower branches are not replayed to a freshly attached sink.
func (s *Splitter) AddSink(sink Sink, managed bool) {
	b := &branch{
		id:       uuid.New(),
		splitter: s,
		sink:     sink,
		enabled:  true,
		managed:  managed,
		cursor:   s.total(),
	}
	s.branches = append(s.branches, b)
	sink.RegisterSource(b)
	trace("splitter: sink added", "branch", b.id, "managed", managed)
}

// RemoveSink locates the branch for sink and removes it: immediately if the
// splitter is idle, or deferred to a zero-delay reactor timer if a
// write/flush is in progress, a flush is still pending acknowledgement, or
// back-pressure is currently outstanding. Removing a sink that was never
// added is a programming error.
func (s *Splitter) RemoveSink(sink Sink) {
	b := s.findBranch(sink)
	assert(b != nil, "remove_sink: sink not present")
	s.markRemoved(b)
}

// RemoveAllSinks removes every branch, subject to the same immediate-vs-
// deferred rule as RemoveSink.
func (s *Splitter) RemoveAllSinks() {
	for _, b := range s.branches {
		if !b.removed {
			s.markRemoved(b)
		}
	}
}

// EnableSink toggles a branch's enabled flag. Re-enabling advances its
// cursor to the stream's current total length rather than replaying
// history: a disabled branch never blocks minCursor, so there is nothing
// to "catch up" on when it rejoins.
func (s *Splitter) EnableSink(sink Sink, enable bool) {
	b := s.findBranch(sink)
	assert(b != nil, "enable_sink: sink not present")
	if enable && !b.enabled {
		b.cursor = s.total()
	}
	b.enabled = enable
}

func (s *Splitter) findBranch(sink Sink) *branch {
	for _, b := range s.branches {
		if !b.removed && b.sink == sink {
			return b
		}
	}
	return nil
}

func (s *Splitter) idle() bool {
	return !s.busy && !s.doFlush && !s.inputStopped
}

func (s *Splitter) markRemoved(b *branch) {
	if s.idle() {
		s.deleteBranch(b)
		return
	}
	b.removed = true
	s.armCleanup()
}

func (s *Splitter) deleteBranch(b *branch) {
	for i, candidate := range s.branches {
		if candidate == b {
			s.branches = append(s.branches[:i], s.branches[i+1:]...)
			break
		}
	}
	s.teardown(b)
}

// teardown runs the managed-sink cleanup for a branch already excluded (or
// about to be excluded) from s.branches.
func (s *Splitter) teardown(b *branch) {
	if b.managed {
		if closer, ok := b.sink.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	trace("splitter: branch removed", "branch", b.id)
}

// armCleanup schedules (or reuses an already-scheduled) zero-delay timer
// that removes every branch marked for removal once the current
// write/flush completes. Repeated removals coalesce onto the same timer.
func (s *Splitter) armCleanup() {
	if s.cleanupArmed || s.loop == nil {
		return
	}
	s.cleanupArmed = true
	s.cleanupTimer = s.loop.NewTimer(0, false, s.runCleanup)
}

func (s *Splitter) runCleanup() {
	s.cleanupArmed = false
	var remaining []*branch
	for _, b := range s.branches {
		if b.removed {
			s.teardown(b)
			continue
		}
		remaining = append(remaining, b)
	}
	s.branches = remaining
	s.maybeFinishFlush()
}

// WriteSamples implements Sink: append samples to the stream and drive
// every enabled branch as far as it will go, reporting upstream only what
// every enabled branch has now absorbed.
func (s *Splitter) WriteSamples(frame Frame) int {
	before := s.total()
	s.buf = append(s.buf, frame...)

	s.busy = true
	s.writeFromBuffer()
	s.busy = false
	s.drainDeferred()

	accepted := s.minCursor() - before
	if accepted < 0 {
		accepted = 0
	}
	if accepted > len(frame) {
		accepted = len(frame)
	}
	return accepted
}

// writeFromBuffer implements the core back-pressure algorithm of §4.2: push
// every enabled branch as far into the stream as it will accept, then trim
// the buffer down to what the slowest branch still hasn't consumed.
func (s *Splitter) writeFromBuffer() {
	for _, b := range s.branches {
		if !b.enabled || b.removed || b.cursor >= s.total() {
			continue
		}
		n := b.sink.WriteSamples(Frame(s.buf[b.cursor-s.base:]))
		b.cursor += n
	}
	s.settleBuffer()
}

// minCursor returns the absolute cursor of the slowest enabled, non-removed
// branch, or the stream's current total length if there is none.
func (s *Splitter) minCursor() int {
	min := s.total()
	any := false
	for _, b := range s.branches {
		if !b.enabled || b.removed {
			continue
		}
		any = true
		if b.cursor < min {
			min = b.cursor
		}
	}
	if !any {
		return s.total()
	}
	return min
}

// settleBuffer trims the buffer's consumed prefix down to the slowest
// branch's cursor. If that empties the buffer, every enabled branch has
// caught up: resume upstream if it had been stopped, and resolve any flush
// that was waiting on this drain. Otherwise the splitter is back-pressured.
func (s *Splitter) settleBuffer() {
	mc := s.minCursor()
	if mc > s.base {
		s.buf = s.buf[mc-s.base:]
		s.base = mc
	}
	if len(s.buf) != 0 {
		s.inputStopped = true
		return
	}
	wasStopped := s.inputStopped
	s.inputStopped = false
	if wasStopped && s.upstream != nil {
		s.upstream.ResumeOutput()
	}
	// A flush requested while input was stopped was never propagated to the
	// branches; do it now that the buffer has drained.
	s.tryPropagateFlush()
	s.maybeFinishFlush()
}

// drainDeferred applies any branch removals that were deferred while busy,
// per spec.md §9's post-iteration fixup pattern.
func (s *Splitter) drainDeferred() {
	if s.idle() {
		var remaining []*branch
		for _, b := range s.branches {
			if b.removed {
				s.teardown(b)
				continue
			}
			remaining = append(remaining, b)
		}
		s.branches = remaining
		if s.cleanupArmed && s.cleanupTimer != nil {
			s.cleanupTimer.Stop()
			s.cleanupArmed = false
		}
		s.maybeFinishFlush()
	}
}

// FlushSamples implements Sink: propagate flush to every enabled branch
// unless input is currently stopped, in which case the flush waits for the
// in-flight back-pressure to resolve.
func (s *Splitter) FlushSamples() {
	s.doFlush = true
	s.flushSent = false
	for _, b := range s.branches {
		b.flushed = false
	}
	s.tryPropagateFlush()
	s.maybeFinishFlush()
}

// tryPropagateFlush sends FlushSamples to every enabled branch exactly once
// per flush cycle, as soon as input is not stopped.
func (s *Splitter) tryPropagateFlush() {
	if !s.doFlush || s.inputStopped || s.flushSent {
		return
	}
	s.flushSent = true
	s.busy = true
	for _, b := range s.branches {
		if b.enabled && !b.removed {
			b.sink.FlushSamples()
		}
	}
	s.busy = false
	s.drainDeferred()
}

// maybeFinishFlush recomputes flush completion against the live set of
// enabled branches every time it is called (on every branch acknowledgement
// and every cleanup), rather than trusting a counter snapshotted when the
// flush began. See spec.md §9 on flushed_branches desync.
func (s *Splitter) maybeFinishFlush() {
	if !s.doFlush {
		return
	}
	// A branch marked for deferred removal still counts until the cleanup
	// timer actually splices it out: see spec.md §9 on flushed_branches
	// desync and S2's "ack, then timer fires" ordering.
	total, done := 0, 0
	for _, b := range s.branches {
		if !b.enabled {
			continue
		}
		total++
		if b.flushed {
			done++
		}
	}
	if total == 0 || done >= total {
		s.doFlush = false
		s.flushSent = false
		if s.upstream != nil {
			s.upstream.AllSamplesFlushed()
		}
	}
}

// resumeOutput is called by branch b when its downstream sink is ready to
// accept more samples after a short write. It re-enters the write loop for
// that branch only; upstream is woken only once every branch has caught up.
func (s *Splitter) resumeOutput(b *branch) {
	if b.removed || !b.enabled || b.cursor >= s.total() {
		return
	}
	s.busy = true
	n := b.sink.WriteSamples(Frame(s.buf[b.cursor-s.base:]))
	b.cursor += n
	s.settleBuffer()
	s.busy = false
	s.drainDeferred()
}

// allSamplesFlushed is called by branch b once its downstream sink has
// drained a flush.
func (s *Splitter) allSamplesFlushed(b *branch) {
	b.flushed = true
	s.maybeFinishFlush()
}

// branch implements Source so it can be registered on its downstream sink.

func (b *branch) ID() uuid.UUID      { return b.id }
func (b *branch) ResumeOutput()      { b.splitter.resumeOutput(b) }
func (b *branch) AllSamplesFlushed() { b.splitter.allSamplesFlushed(b) }
