package audiopipe

import (
	"pipelined.dev/signal"
)

// FromFloating copies a pipelined.dev/signal buffer into a Frame. It exists
// at the graph's edges only: nodes that interoperate with the wider
// pipelined.dev ecosystem (file decoders, resamplers) convert once here
// rather than paying a conversion on every sample of the steady-state path.
func FromFloating(buf signal.Floating) Frame {
	frame := make(Frame, buf.Length())
	for i := range frame {
		frame[i] = float32(buf.Sample(i))
	}
	return frame
}

// ToFloating copies frame into a freshly allocated mono signal.Floating
// buffer, for handing accumulated samples to code that expects the
// ecosystem's signal type.
func ToFloating(frame Frame) signal.Floating {
	buf := signal.Allocator{Channels: 1, Capacity: len(frame), Length: len(frame)}.Float64()
	for i, v := range frame {
		buf.SetSample(i, float64(v))
	}
	return buf
}

// AsFloating returns the sink's accumulated samples as a signal.Floating
// buffer, for handing a finished recording to ecosystem code.
func (b *BufferSink) AsFloating() signal.Floating {
	return ToFloating(b.data)
}
