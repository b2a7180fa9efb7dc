package tonedetector

import (
	"math"
	"time"
)

// dtmfTones are the eight standard DTMF row/column frequencies, in the
// same row-then-column order doismellburning-samoyed/src/dtmf.go uses:
// low group (rows) first, high group (columns) second.
var dtmfTones = [8]float64{697, 770, 852, 941, 1209, 1336, 1477, 1633}

// dtmfKeys maps a (row, col) pair, each 0..3, to the button it represents,
// matching the standard DTMF keypad layout.
var dtmfKeys = [4][4]byte{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// dtmfGroupThreshold mirrors dtmf.go's THRESHOLD = 1.74: a tone must beat
// the sum of the other three in its group by this factor to be considered
// present, since the input signal's absolute level can vary by orders of
// magnitude and no fixed absolute threshold works across that range.
const dtmfGroupThreshold = 1.74

// DTMFDecoder decodes DTMF digits by running eight Goertzel detectors (one
// per standard tone) over shared input and arbitrating row/column
// coincidence, per SPEC_FULL.md's supplemented-feature decision: SvxLink's
// real DTMF decoder instantiates one ToneDetector-equivalent block per tone
// and arbitrates between them. This type runs its own copy of the Goertzel
// recurrence per tone (dtmfBlock); it does not use tonedetector.Detector.
type DTMFDecoder struct {
	n        int
	blockPos int
	blocks   [8]*dtmfBlock

	prevDecoded   byte
	debounced     byte
	prevDebounced byte

	blocksSinceActive int
	timeoutBlocks     int

	onDigit   func(byte)
	onTimeout func()
}

type dtmfBlock struct {
	q1, q2 float64
	coeff  float64
}

// NewDTMFDecoder returns a decoder processing blocks of n samples at
// sampleRate Hz. timeout is the inactivity duration after which OnTimeout
// fires, per dtmf.go's DTMF_TIMEOUT_SEC.
func NewDTMFDecoder(n int, sampleRate float64, timeout time.Duration) *DTMFDecoder {
	d := &DTMFDecoder{n: n, prevDecoded: ' ', debounced: ' ', prevDebounced: ' '}
	blockHz := float64(n) / sampleRate
	d.timeoutBlocks = int(timeout.Seconds() / blockHz)
	for i, hz := range dtmfTones {
		k := float64(n) * hz / sampleRate
		omega := 2 * math.Pi * k / float64(n)
		d.blocks[i] = &dtmfBlock{coeff: 2 * math.Cos(omega)}
	}
	return d
}

// OnDigit registers the callback fired with a newly decoded digit once it
// has been seen in two consecutive blocks (debounced), per dtmf.go's
// "consider valid only if we get the same twice in a row."
func (d *DTMFDecoder) OnDigit(fn func(byte)) { d.onDigit = fn }

// OnTimeout registers the callback fired after a configured duration of
// continuous silence/no-digit activity.
func (d *DTMFDecoder) OnTimeout(fn func()) { d.onTimeout = fn }

// ProcessSamples feeds frame through all eight Goertzel blocks in lockstep,
// arbitrating a decoded digit once per completed block.
func (d *DTMFDecoder) ProcessSamples(frame []float32) int {
	for _, x := range frame {
		u := float64(x)
		for _, b := range d.blocks {
			q0 := b.coeff*b.q1 - b.q2 + u
			b.q2 = b.q1
			b.q1 = q0
		}
		d.blockPos++
		if d.blockPos == d.n {
			d.completeBlock()
		}
	}
	return len(frame)
}

func (d *DTMFDecoder) completeBlock() {
	var output [8]float64
	for i, b := range d.blocks {
		output[i] = math.Sqrt(b.q1*b.q1 + b.q2*b.q2 - b.q1*b.q2*b.coeff)
		b.q1, b.q2 = 0, 0
	}
	d.blockPos = 0

	row := arbitrateGroup(output[0:4])
	col := arbitrateGroup(output[4:8])

	decoded := byte(' ')
	if row >= 0 && col >= 0 {
		decoded = dtmfKeys[row][col]
	}

	if decoded == d.prevDecoded {
		d.debounced = decoded
		if decoded != ' ' {
			d.blocksSinceActive = 0
		}
	}
	d.prevDecoded = decoded

	if d.debounced != d.prevDebounced && d.debounced != ' ' {
		if d.onDigit != nil {
			d.onDigit(d.debounced)
		}
	}
	d.prevDebounced = d.debounced

	if d.debounced == ' ' {
		d.blocksSinceActive++
		if d.timeoutBlocks > 0 && d.blocksSinceActive == d.timeoutBlocks && d.onTimeout != nil {
			d.onTimeout()
		}
	}
}

// arbitrateGroup returns the index (0..3) of the tone that beats the sum
// of the other three by dtmfGroupThreshold, or -1 if none does.
func arbitrateGroup(output []float64) int {
	for i, v := range output {
		var rest float64
		for j, w := range output {
			if j != i {
				rest += w
			}
		}
		if v > dtmfGroupThreshold*rest {
			return i
		}
	}
	return -1
}
