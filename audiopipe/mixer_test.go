package audiopipe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svxlink-go/corepipe/audiopipe"
)

func TestMixer_SumsEqualLengthInputs(t *testing.T) {
	mixer := audiopipe.NewMixer()
	in1 := mixer.AddInput()
	in2 := mixer.AddInput()
	rec := audiopipe.NewBufferSink(0)
	mixer.SetOutput(rec)

	src1, src2 := newStubSource(), newStubSource()
	in1.RegisterSource(src1)
	in2.RegisterSource(src2)

	// 0.25 and 0.75 are exact in binary floating point, so the averaged
	// result is exactly 0.5 with no rounding slack to account for.
	n1 := in1.WriteSamples(audiopipe.Frame{0.25, 0.25, 0.25, 0.25})
	require.Equal(t, 4, n1)
	assert.Empty(t, rec.Samples(), "mixer waits for every input before emitting")

	n2 := in2.WriteSamples(audiopipe.Frame{0.75, 0.75, 0.75, 0.75})
	require.Equal(t, 4, n2)

	assert.Equal(t, audiopipe.Frame{0.5, 0.5, 0.5, 0.5}, rec.Samples())
}

func TestMixer_SecondContributionBeforeCycleTurnsOverIsRefused(t *testing.T) {
	mixer := audiopipe.NewMixer()
	in1 := mixer.AddInput()
	in2 := mixer.AddInput()
	rec := audiopipe.NewBufferSink(0)
	mixer.SetOutput(rec)
	in1.RegisterSource(newStubSource())
	in2.RegisterSource(newStubSource())

	in1.WriteSamples(audiopipe.Frame{1, 1})
	n := in1.WriteSamples(audiopipe.Frame{2, 2})
	assert.Equal(t, 0, n, "an input may not contribute twice in the same mix cycle")

	src2 := newStubSource()
	in2.RegisterSource(src2)
	in2.WriteSamples(audiopipe.Frame{3, 3})
	assert.Equal(t, audiopipe.Frame{2, 2}, rec.Samples())
	assert.Equal(t, 1, src2.resumes, "resuming the cycle wakes every non-flushed input")
}

func TestMixer_FlushWaitsForEveryInput(t *testing.T) {
	mixer := audiopipe.NewMixer()
	in1 := mixer.AddInput()
	in2 := mixer.AddInput()
	rec := audiopipe.NewBufferSink(0)
	mixer.SetOutput(rec)
	in1.RegisterSource(newStubSource())
	in2.RegisterSource(newStubSource())

	in1.WriteSamples(audiopipe.Frame{1, 1})
	in1.FlushSamples()
	assert.False(t, rec.Flushed(), "flush must wait for every input")

	in2.WriteSamples(audiopipe.Frame{3, 3})
	in2.FlushSamples()
	assert.True(t, rec.Flushed(), "flush propagates once every input has flushed")
}
