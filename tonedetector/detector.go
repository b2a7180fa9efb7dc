// Package tonedetector implements the Goertzel-based single-tone detector
// described in spec.md §4.3: it consumes sample frames in blocks of N,
// runs the Goertzel recurrence at a configured frequency, compares
// magnitude-squared to a threshold with hysteresis, and reports activation
// transitions and per-block magnitude via callbacks. Frames are fed in
// through Detector.ProcessSamples; Detector does not implement
// audiopipe.Sink.
//
// The recurrence and magnitude formula are cross-confirmed against the
// pack's other independent Goertzel implementation, the DTMF decoder in
// doismellburning-samoyed/src/dtmf.go.
package tonedetector

import "math"

// Threshold is the default activation threshold in the coded domain that
// the Narrow8 policy produces, per spec.md §4.3.
const Threshold = 5e6

// InputPolicy narrows (or passes through) a raw sample before it enters the
// Goertzel recurrence. spec.md §9 leaves the source's 16-bit-to-8-bit
// narrowing as an open question; it is implemented here as a swappable
// policy rather than baked into Detector so both behaviors can be tested
// against the same scenarios.
type InputPolicy func(sample float32) float64

// Narrow8 reproduces the source's ((int)sample + 0x8000) >> 8 narrowing
// bit-for-bit, given sample expressed on the same 16-bit signed linear PCM
// scale the source assumes. Threshold (5e6) is calibrated against this
// policy's coded output range.
func Narrow8(sample float32) float64 {
	coded := (int32(sample) + 0x8000) >> 8
	return float64(coded)
}

// Identity passes the sample through unchanged. It is the default for new
// callers that don't need the source's narrowing/quantization quirk and
// instead calibrate their own Threshold against full-precision input.
func Identity(sample float32) float64 {
	return float64(sample)
}

// Detector runs the Goertzel algorithm at a single configured frequency
// over blocks of N samples, with release hysteresis on the activation
// decision.
type Detector struct {
	n         int
	threshold float64
	policy    InputPolicy

	coeff float64

	q1, q2   float64
	blockPos int

	isActivated int // 0..3, acting as a release counter per spec.md §4.3
	lastResult  float64

	onActivated    func(bool)
	onValueChanged func(float64)
}

// New returns a Detector tuned to toneHz over blocks of n samples at a
// sample rate of sampleRate Hz (nominal 8000 per spec.md §3). k is computed
// in floating point, not rounded to an integer, preserving the source's
// behavior (spec.md §4.3).
func New(toneHz float64, n int, sampleRate float64, policy InputPolicy) *Detector {
	if policy == nil {
		policy = Identity
	}
	k := float64(n) * toneHz / sampleRate
	omega := 2 * math.Pi * k / float64(n)
	return &Detector{
		n:         n,
		threshold: Threshold,
		policy:    policy,
		coeff:     2 * math.Cos(omega),
	}
}

// SetThreshold overrides the default activation threshold. Callers using
// Identity (rather than Narrow8) must calibrate their own threshold per
// spec.md §4.3's note on scaling.
func (d *Detector) SetThreshold(threshold float64) { d.threshold = threshold }

// OnActivated registers the callback fired on every activation/deactivation
// transition. It does not fire on every block, only on change.
func (d *Detector) OnActivated(fn func(bool)) { d.onActivated = fn }

// OnValueChanged registers the callback fired once per N-sample block with
// the block's magnitude-squared result, independent of activation state.
func (d *Detector) OnValueChanged(fn func(float64)) { d.onValueChanged = fn }

// Activated reports whether the detector currently considers the tone
// present.
func (d *Detector) Activated() bool { return d.isActivated > 0 }

// LastResult returns the most recently computed block magnitude.
func (d *Detector) LastResult() float64 { return d.lastResult }

// ProcessSamples feeds frame through the Goertzel recurrence, firing
// OnActivated/OnValueChanged as blocks complete. It never drops samples and
// always returns len(frame), per spec.md §4.3's output contract.
func (d *Detector) ProcessSamples(frame []float32) int {
	for _, x := range frame {
		d.step(d.policy(x))
	}
	return len(frame)
}

func (d *Detector) step(u float64) {
	q0 := d.coeff*d.q1 - d.q2 + u
	d.q2 = d.q1
	d.q1 = q0

	d.blockPos++
	if d.blockPos != d.n {
		return
	}

	result := d.q1*d.q1 + d.q2*d.q2 - d.q1*d.q2*d.coeff
	d.lastResult = result
	if d.onValueChanged != nil {
		d.onValueChanged(result)
	}

	if result >= d.threshold {
		if d.isActivated == 0 && d.onActivated != nil {
			d.onActivated(true)
		}
		d.isActivated = 3
	} else if d.isActivated > 0 {
		d.isActivated--
		if d.isActivated == 0 && d.onActivated != nil {
			d.onActivated(false)
		}
	}

	d.q1, d.q2 = 0, 0
	d.blockPos = 0
}
