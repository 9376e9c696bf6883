package viperwolf

/*
 * Demodulator state.
 * A separate copy is required for each channel being processed concurrently.
 * Nothing in here is shared between channels.
 */

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

const TicksPerPLLCycle = 256.0 * 256.0 * 256.0 * 256.0

// Profile selects the tone detection method.
type Profile byte

const (
	// Two free running local oscillators, compare mark and space amplitudes.
	ProfileAmplitude Profile = 'A'

	// Mix with the center frequency and look at the rate of change of phase.
	ProfileDiscriminator Profile = 'B'
)

var ErrInvalidProfile = errors.New("invalid AFSK demodulator profile")

func (p Profile) String() string {
	return string(rune(p))
}

// ParseProfile accepts the official letters and the older aliases,
// E for A and D for B.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "E", "":
		return ProfileAmplitude, nil
	case "B", "D":
		return ProfileDiscriminator, nil
	}

	return 0, errors.Wrapf(ErrInvalidProfile, "%q", s)
}

// MarshalText and UnmarshalText let a Profile appear in the YAML configuration.
func (p Profile) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Profile) UnmarshalText(text []byte) error {
	var parsed, err = ParseProfile(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

/*
 * Sliding window of the most recent samples.
 *
 * The buffer is twice the window size and each sample is written in
 * both halves, so the newest `size` samples are always contiguous
 * starting at pos, newest first.  That is the same ordering the
 * filters were designed for, without moving everything down on
 * every sample.
 */

type sampleHistory struct {
	buf  []float64
	size int
	pos  int
}

func newSampleHistory(size int) sampleHistory {
	return sampleHistory{
		buf:  make([]float64, 2*size),
		size: size,
		pos:  0,
	}
}

func (h *sampleHistory) push(val float64) {
	h.pos--
	if h.pos < 0 {
		h.pos = h.size - 1
	}

	h.buf[h.pos] = val
	h.buf[h.pos+h.size] = val
}

// Most recent sample first.
func (h *sampleHistory) recent() []float64 {
	return h.buf[h.pos : h.pos+h.size]
}

// FIR filter kernel.
func (h *sampleHistory) convolve(filter []float64) float64 {
	var data = h.recent()
	var sum = 0.0

	for j, f := range filter {
		sum += f * data[j]
	}

	return sum
}

// Cosine table indexed by unsigned byte.
var fcos256Table = func() [256]float64 {
	var t [256]float64
	for j := range 256 {
		t[j] = math.Cos(float64(j) * 2.0 * math.Pi / 256.0)
	}

	return t
}()

func fcos256(x uint32) float64 {
	return fcos256Table[(x>>24)&0xff]
}

func fsin256(x uint32) float64 {
	return fcos256Table[((x>>24)-64)&0xff]
}

/*
 * Local oscillator.
 * The phase is a fraction of a cycle in 32 bit fixed point so
 * ordinary unsigned overflow takes care of wrapping around.
 */

type oscillator struct {
	phase uint32
	delta uint32
}

func newOscillator(freq float64, samplesPerSec float64) oscillator {
	return oscillator{
		phase: 0,
		delta: uint32(math.Round(TicksPerPLLCycle * freq / samplesPerSec)),
	}
}

func (o *oscillator) cos() float64 { return fcos256(o.phase) }
func (o *oscillator) sin() float64 { return fsin256(o.phase) }
func (o *oscillator) advance()     { o.phase += o.delta }

// Fast attack and slow decay envelope, used for reporting signal levels.
type envelope struct {
	peak   float64
	valley float64
}

func (e *envelope) track(in, attack, decay float64) {
	if in >= e.peak {
		e.peak = in*attack + e.peak*(1.0-attack)
	} else {
		e.peak = in*decay + e.peak*(1.0-decay)
	}

	if in <= e.valley {
		e.valley = in*attack + e.valley*(1.0-attack)
	} else {
		e.valley = in*decay + e.valley*(1.0-decay)
	}
}

// Peak only version for the mark and space amplitudes.
func trackPeak(peak, in, attack, decay float64) float64 {
	if in >= peak {
		return in*attack + peak*(1.0-attack)
	}

	return in*decay + peak*(1.0-decay)
}

// DemodulatorState holds everything for one channel's demodulator.
type DemodulatorState struct {
	/*
	 * These are set once during initialization.
	 */
	profile    Profile
	sampleRate int
	baud       int
	markFreq   int
	spaceFreq  int

	// PLL is advanced by this much each audio sample.
	// Data is sampled when it overflows.
	pllStepPerSample int32

	/*
	 * Automatic gain control.  Fast attack and slow decay factors.
	 */
	agcFastAttack float64
	agcSlowDecay  float64

	/*
	 * Use a longer term view for reporting signal levels.
	 */
	quickAttack   float64
	sluggishDecay float64

	/*
	 * Phase Locked Loop (PLL) inertia.
	 * Larger number means less influence by signal transitions.
	 * It is more resistant to change when locked on to a signal.
	 */
	pllLockedInertia    float64
	pllSearchingInertia float64

	/*
	 * Optional band pass pre-filter before the tone detector.
	 */
	usePrefilter bool

	// Cutoff frequencies, as fraction of baud rate, beyond tones used.
	// Example, if we used 1600/1800 tones at 300 baud, and this was 0.5,
	// the cutoff frequencies would be:
	// lower = min(1600,1800) - 0.5 * 300 = 1450
	// upper = max(1600,1800) + 0.5 * 300 = 1950
	prefilterBaud float64

	preFilterLenSym float64 // Length in number of symbol times.
	preWindow       WindowType
	preFilter       []float64
	rawHistory      sampleHistory

	/*
	 * Low pass filter after mixing.  Root Raised Cosine in both profiles.
	 */
	rrcWidthSym float64
	rrcRolloff  float64
	lpFilter    []float64

	// Which way the tones are detected.
	detector toneDetector

	// Input level, for display only.
	alevelRec envelope
}

func (d *DemodulatorState) Profile() Profile         { return d.profile }
func (d *DemodulatorState) SampleRate() int          { return d.sampleRate }
func (d *DemodulatorState) Baud() int                { return d.baud }
func (d *DemodulatorState) PreFilter() []float64     { return d.preFilter }
func (d *DemodulatorState) LowpassFilter() []float64 { return d.lpFilter }
func (d *DemodulatorState) PLLStepPerSample() int32  { return d.pllStepPerSample }
