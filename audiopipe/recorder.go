package audiopipe

import "github.com/google/uuid"

// BufferSink accumulates every sample it is handed into a single growable
// buffer, accepting partial writes once it reaches capacity (0 means
// unbounded). It is the push-model analogue of the teacher's
// Asset.sinkFloating.
type BufferSink struct {
	id       uuid.UUID
	upstream Source
	capacity int
	data     []float32
	flushed  bool
}

// NewBufferSink returns an empty BufferSink. A capacity of 0 means
// unbounded: WriteSamples always accepts the whole frame.
func NewBufferSink(capacity int) *BufferSink {
	return &BufferSink{id: uuid.New(), capacity: capacity}
}

// ID implements Node.
func (b *BufferSink) ID() uuid.UUID { return b.id }

// RegisterSource implements Sink.
func (b *BufferSink) RegisterSource(src Source) { b.upstream = src }

// WriteSamples implements Sink: append as much of frame as fits within
// capacity, reporting the rest as unaccepted.
func (b *BufferSink) WriteSamples(frame Frame) int {
	n := len(frame)
	if b.capacity > 0 {
		room := b.capacity - len(b.data)
		if room <= 0 {
			return 0
		}
		if n > room {
			n = room
		}
	}
	b.data = append(b.data, frame[:n]...)
	return n
}

// FlushSamples implements Sink. A BufferSink has nothing further
// downstream, so it acknowledges immediately.
func (b *BufferSink) FlushSamples() {
	b.flushed = true
	if b.upstream != nil {
		b.upstream.AllSamplesFlushed()
	}
}

// Samples returns the samples accumulated so far.
func (b *BufferSink) Samples() Frame { return b.data }

// Flushed reports whether FlushSamples has been called.
func (b *BufferSink) Flushed() bool { return b.flushed }

// Reset empties the buffer. If the sink had been refusing samples at
// capacity, the upstream source is told it may resume.
func (b *BufferSink) Reset() {
	wasFull := b.capacity > 0 && len(b.data) >= b.capacity
	b.data = b.data[:0]
	b.flushed = false
	if wasFull && b.upstream != nil {
		b.upstream.ResumeOutput()
	}
}

// Close implements io.Closer so a Splitter managing this sink's lifetime
// can tear it down cleanly. A BufferSink owns no external resource.
func (b *BufferSink) Close() error { return nil }
