package tonedetector_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svxlink-go/corepipe/tonedetector"
)

// dtmfSamples synthesizes n samples of the sum of unit sine waves at low
// and high Hz, the same "sum of two sine waves" construction push_button_raw in
// doismellburning-samoyed/src/dtmf.go uses for its self-test.
func dtmfSamples(low, high float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = float32(math.Sin(2*math.Pi*low*t) + math.Sin(2*math.Pi*high*t))
	}
	return out
}

func TestDTMFDecoder_DecodesDigit(t *testing.T) {
	const n = 205
	d := tonedetector.NewDTMFDecoder(n, sampleRate, 5*time.Second)

	var digits []byte
	d.OnDigit(func(b byte) { digits = append(digits, b) })

	// '5' is row 1 (770 Hz) / col 1 (1336 Hz). Two blocks are required for
	// debounce (dtmf.go: "consider valid only if we get same twice in a row").
	samples := dtmfSamples(770, 1336, 2*n)
	got := d.ProcessSamples(samples)

	require.Equal(t, len(samples), got)
	require.Len(t, digits, 1)
	assert.Equal(t, byte('5'), digits[0])
}

func TestDTMFDecoder_SilenceDecodesNothing(t *testing.T) {
	const n = 205
	d := tonedetector.NewDTMFDecoder(n, sampleRate, 5*time.Second)

	var digits []byte
	d.OnDigit(func(b byte) { digits = append(digits, b) })

	d.ProcessSamples(make([]float32, 4*n))
	assert.Empty(t, digits)
}

func TestDTMFDecoder_TimeoutFiresAfterInactivity(t *testing.T) {
	const n = 205
	timeout := time.Duration(3*n) * time.Second / sampleRate
	d := tonedetector.NewDTMFDecoder(n, sampleRate, timeout)

	fired := 0
	d.OnTimeout(func() { fired++ })

	d.ProcessSamples(make([]float32, 3*n))
	assert.Equal(t, 1, fired)

	d.ProcessSamples(make([]float32, n))
	assert.Equal(t, 1, fired, "timeout fires once, not on every subsequent silent block")
}
