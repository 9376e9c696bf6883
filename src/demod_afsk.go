package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Demodulator for Audio Frequency Shift Keying (AFSK).
 *
 * Input:	Audio samples, normalized to about -1 .. +1.
 *
 * Outputs:	One "demodulated" value per sample.  Positive for mark,
 *		negative for space, roughly in the range of -1 to +1.
 *		Clock recovery and framing happen later.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// DemodConfig is everything needed to build a demodulator.
// All filter sizes, oscillator increments and the PLL step are
// derived from these five values.
type DemodConfig struct {
	SampleRate int
	Baud       int
	MarkFreq   int
	SpaceFreq  int
	Profile    Profile
}

func (c DemodConfig) validate() error {
	if c.SampleRate <= 0 {
		return errors.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}

	if c.Baud <= 0 {
		return errors.Errorf("baud must be positive, got %d", c.Baud)
	}

	// The filters need a few samples per symbol to work with.
	if c.SampleRate < 4*c.Baud {
		return errors.Errorf("sample rate %d is too low for %d baud", c.SampleRate, c.Baud)
	}

	for _, f := range []int{c.MarkFreq, c.SpaceFreq} {
		if f <= 0 || 2*f >= c.SampleRate {
			return errors.Errorf("tone %d Hz must be between 0 and half the sample rate %d", f, c.SampleRate)
		}
	}

	if c.MarkFreq == c.SpaceFreq {
		return errors.Errorf("mark and space must be different, both are %d Hz", c.MarkFreq)
	}

	switch c.Profile {
	case ProfileAmplitude, ProfileDiscriminator:
	default:
		return errors.Wrapf(ErrInvalidProfile, "%q", string(rune(c.Profile)))
	}

	return nil
}

// Automatic Gain control.
//
// The first step is to create an envelope for the peak and valley
// of the mark or space amplitude.  We need to keep track of the valley
// because it does not go down to zero when the tone is not present.
// We want to find the difference between tone present and not.
//
// We use an IIR filter with fast attack and slow decay which only considers the past.
//
// Result should settle down to 1 unit peak to peak.  i.e. -0.5 to +0.5

func agc(in, fastAttack, slowDecay float64, inPeak, inValley float64) (float64, float64, float64) {
	var outPeak float64
	var outValley float64

	if in >= inPeak {
		outPeak = in*fastAttack + inPeak*(1.0-fastAttack)
	} else {
		outPeak = in*slowDecay + inPeak*(1.0-slowDecay)
	}

	if in <= inValley {
		outValley = in*fastAttack + inValley*(1.0-fastAttack)
	} else {
		outValley = in*slowDecay + inValley*(1.0-slowDecay)
	}

	if outPeak <= outValley {
		return outPeak, outValley, 0.0
	}

	var x = min(max(in, outValley), outPeak)

	return outPeak, outValley, (x - 0.5*(outPeak+outValley)) / (outPeak - outValley)
}

// The two ways of turning one audio sample into a mark/space decision value.
type toneDetector interface {
	detect(fsam float64) float64

	// Recent mark and space amplitudes, -1 when not available.
	toneLevels() (float64, float64)
}

/*
 * Profile A.
 *
 * Rather than convolving each sample with a pre-computed mark and
 * space filter, we have two free running local oscillators.
 * Each tone gets I and Q after a Root Raised Cosine low pass.
 */

type amplitudeDetector struct {
	lp []float64

	markOsc, spaceOsc      oscillator
	markI, markQ           sampleHistory
	spaceI, spaceQ         sampleHistory
	markPeak, markValley   float64
	spacePeak, spaceValley float64

	agcFastAttack, agcSlowDecay float64

	// Longer term amplitude for display.
	quickAttack, sluggishDecay float64
	alevelMarkPeak             float64
	alevelSpacePeak            float64
}

func (a *amplitudeDetector) detect(fsam float64) float64 {
	a.markI.push(fsam * a.markOsc.cos())
	a.markQ.push(fsam * a.markOsc.sin())
	a.markOsc.advance()

	a.spaceI.push(fsam * a.spaceOsc.cos())
	a.spaceQ.push(fsam * a.spaceOsc.sin())
	a.spaceOsc.advance()

	var mAmp = math.Hypot(a.markI.convolve(a.lp), a.markQ.convolve(a.lp))
	var sAmp = math.Hypot(a.spaceI.convolve(a.lp), a.spaceQ.convolve(a.lp))

	/*
	 * Capture the mark and space peak amplitudes for display.
	 * It uses fast attack and slow decay to get an idea of the
	 * overall amplitude.
	 */
	a.alevelMarkPeak = trackPeak(a.alevelMarkPeak, mAmp, a.quickAttack, a.sluggishDecay)
	a.alevelSpacePeak = trackPeak(a.alevelSpacePeak, sAmp, a.quickAttack, a.sluggishDecay)

	// Which tone is stronger?  That's simple with an ideal signal.
	// However, we don't see too many ideal signals.
	// Due to mismatching pre-emphasis and de-emphasis, the two
	// tones will often have greatly different amplitudes so we use
	// automatic gain control (AGC) to scale each to the same range
	// before comparing.

	var mNorm, sNorm float64
	a.markPeak, a.markValley, mNorm = agc(mAmp, a.agcFastAttack, a.agcSlowDecay, a.markPeak, a.markValley)
	a.spacePeak, a.spaceValley, sNorm = agc(sAmp, a.agcFastAttack, a.agcSlowDecay, a.spacePeak, a.spaceValley)

	// The normalized values should be around -0.5 to +0.5 so the difference
	// should work out to be around -1 to +1.
	return mNorm - sNorm
}

func (a *amplitudeDetector) toneLevels() (float64, float64) {
	return a.alevelMarkPeak, a.alevelSpacePeak
}

/*
 * Profile B.
 *
 * Another technique for an FM demodulator is to mix with
 * the center frequency and look for the rate of change of the phase.
 */

type discriminatorDetector struct {
	lp []float64

	centerOsc oscillator
	cI, cQ    sampleHistory
	prevPhase float64
	normalize float64 // radians per sample -> -1 .. +1
}

func (b *discriminatorDetector) detect(fsam float64) float64 {
	b.cI.push(fsam * b.centerOsc.cos())
	b.cQ.push(fsam * b.centerOsc.sin())
	b.centerOsc.advance()

	var phase = math.Atan2(b.cQ.convolve(b.lp), b.cI.convolve(b.lp))

	var rate = phase - b.prevPhase
	if rate > math.Pi {
		rate -= 2 * math.Pi
	} else if rate < -math.Pi {
		rate += 2 * math.Pi
	}

	b.prevPhase = phase

	return rate * b.normalize
}

// We really don't have mark and space amplitudes available in this case.
func (b *discriminatorDetector) toneLevels() (float64, float64) {
	return -1, -1
}

/*------------------------------------------------------------------
 *
 * Name:        NewDemodulator
 *
 * Purpose:     Initialization for an AFSK demodulator.
 *		Select appropriate parameters and set up filters.
 *
 * Inputs:   	cfg	- Sample rate, baud, tones, profile.
 *		logger	- For warnings about filter sizes.  May be nil.
 *
 * Returns:     Ready to use demodulator, or an error describing why
 *		the configuration can't work.
 *
 *----------------------------------------------------------------*/

func NewDemodulator(cfg DemodConfig, logger *log.Logger) (*DemodulatorState, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "demodulator")
	}

	if logger == nil {
		logger = log.Default()
	}

	var samplesPerSec = float64(cfg.SampleRate)
	var baud = float64(cfg.Baud)

	var D = &DemodulatorState{ //nolint:exhaustruct
		profile:    cfg.Profile,
		sampleRate: cfg.SampleRate,
		baud:       cfg.Baud,
		markFreq:   cfg.MarkFreq,
		spaceFreq:  cfg.SpaceFreq,

		usePrefilter: true,

		agcFastAttack: 0.70,
		agcSlowDecay:  0.000090,

		pllLockedInertia:    0.74,
		pllSearchingInertia: 0.50,
	}

	switch cfg.Profile {
	case ProfileAmplitude:
		if cfg.Baud > 600 {
			// Low cutoff below mark, high cutoff above space
			// as fraction of the symbol rate.
			// It turns out that narrower is better.
			D.prefilterBaud = 0.155
			D.preFilterLenSym = 383 * 1200. / 44100. // about 8 symbols
			D.preWindow = WindowTruncated
		} else {
			D.prefilterBaud = 0.87
			D.preFilterLenSym = 1.857
			D.preWindow = WindowCosine
		}

		D.rrcWidthSym = 2.80
		D.rrcRolloff = 0.20

	case ProfileDiscriminator:
		if cfg.Baud > 600 {
			D.prefilterBaud = 0.19
			D.preFilterLenSym = 8.163
			D.preWindow = WindowTruncated
		} else {
			D.prefilterBaud = 0.87
			D.preFilterLenSym = 1.857
			D.preWindow = WindowCosine
		}

		D.rrcWidthSym = 2.00
		D.rrcRolloff = 0.40
	}

	D.quickAttack = D.agcFastAttack * 0.2
	D.sluggishDecay = D.agcSlowDecay * 0.2

	/*
	 * Calculate constants used for timing.
	 * The audio sample rate must be at least a few times the data rate.
	 *
	 * Baud is an integer so we hack in a fine adjustment for EAS.
	 */
	if cfg.Baud == 521 {
		D.pllStepPerSample = int32(math.Round(TicksPerPLLCycle * 520.83 / samplesPerSec))
	} else {
		D.pllStepPerSample = int32(math.Round(TicksPerPLLCycle * baud / samplesPerSec))
	}

	/*
	 * Optionally apply a bandpass ("pre") filter to attenuate
	 * frequencies outside the range of interest.
	 */
	if D.usePrefilter {
		var taps, clamped = ClampTaps(int(D.preFilterLenSym * samplesPerSec / baud))
		if clamped {
			logger.Warn("Calculated pre filter size is too large, reduced.",
				"requested", int(D.preFilterLenSym*samplesPerSec/baud)|1, "taps", taps,
				"hint", "decrease the audio sample rate or increase the decimation factor")
		}

		var f1 = float64(min(cfg.MarkFreq, cfg.SpaceFreq)) - D.prefilterBaud*baud
		var f2 = float64(max(cfg.MarkFreq, cfg.SpaceFreq)) + D.prefilterBaud*baud

		f1 = max(f1, 0) / samplesPerSec
		f2 = min(f2/samplesPerSec, 0.499)

		D.preFilter = GenBandpass(f1, f2, taps, D.preWindow)
		D.rawHistory = newSampleHistory(taps)
	}

	/*
	 * Now the lowpass filter, Root Raised Cosine.
	 */
	var lpTaps, lpClamped = ClampTaps(int(D.rrcWidthSym * samplesPerSec / baud))
	if lpClamped {
		logger.Warn("Calculated RRC low pass filter size is too large, reduced.",
			"requested", int(D.rrcWidthSym*samplesPerSec/baud)|1, "taps", lpTaps,
			"hint", "decrease the audio sample rate or increase the decimation factor")
	}

	D.lpFilter = GenRRCLowpass(lpTaps, D.rrcRolloff, samplesPerSec/baud)

	switch cfg.Profile {
	case ProfileAmplitude:
		D.detector = &amplitudeDetector{ //nolint:exhaustruct
			lp:            D.lpFilter,
			markOsc:       newOscillator(float64(cfg.MarkFreq), samplesPerSec),
			spaceOsc:      newOscillator(float64(cfg.SpaceFreq), samplesPerSec),
			markI:         newSampleHistory(lpTaps),
			markQ:         newSampleHistory(lpTaps),
			spaceI:        newSampleHistory(lpTaps),
			spaceQ:        newSampleHistory(lpTaps),
			agcFastAttack: D.agcFastAttack,
			agcSlowDecay:  D.agcSlowDecay,
			quickAttack:   D.quickAttack,
			sluggishDecay: D.sluggishDecay,
		}

	case ProfileDiscriminator:
		// For scaling phase shift into normalized -1 to +1 range for mark and space.
		// The lower tone comes out positive, so flip it when mark is the higher one.
		var normalize = 1.0 / (0.5 * math.Abs(float64(cfg.MarkFreq-cfg.SpaceFreq)) * 2 * math.Pi / samplesPerSec)
		if cfg.MarkFreq > cfg.SpaceFreq {
			normalize = -normalize
		}

		D.detector = &discriminatorDetector{ //nolint:exhaustruct
			lp:        D.lpFilter,
			centerOsc: newOscillator(0.5*float64(cfg.MarkFreq+cfg.SpaceFreq), samplesPerSec),
			cI:        newSampleHistory(lpTaps),
			cQ:        newSampleHistory(lpTaps),
			normalize: normalize,
		}
	}

	logger.Debug("AFSK demodulator ready",
		"profile", cfg.Profile, "rate", cfg.SampleRate, "baud", cfg.Baud,
		"mark", cfg.MarkFreq, "space", cfg.SpaceFreq,
		"pre_taps", len(D.preFilter), "lp_taps", len(D.lpFilter))

	return D, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        ProcessSample
 *
 * Purpose:     Demodulate one sample of the AFSK signal.
 *
 * Inputs:	sam	- One sample of audio, about -1 .. +1.
 *
 * Returns:	Demodulator output.  The sign says mark or space.
 *
 * Description:	Called once per audio sample.  Nothing is allocated
 *		here and nothing can fail.  With no signal at all the
 *		AGC has no range to work with and the result is 0.
 *
 *--------------------------------------------------------------------*/

func (D *DemodulatorState) ProcessSample(sam float64) float64 {
	/*
	 * Accumulate measure of the input signal level.
	 * We want decay to be substantially slower to get a longer
	 * range idea of the received audio.
	 */
	D.alevelRec.track(sam, D.quickAttack, D.sluggishDecay)

	var fsam = sam
	if D.usePrefilter {
		D.rawHistory.push(fsam)
		fsam = D.rawHistory.convolve(D.preFilter)
	}

	return D.detector.detect(fsam)
}

// AudioLevel describes the received signal strength on a 0 to 100ish scale.
// Mark and Space are -1 when the demodulator can't tell.
type AudioLevel struct {
	Rec   int
	Mark  int
	Space int
}

func (a AudioLevel) String() string {
	if a.Mark < 0 && a.Space < 0 {
		return strconv.Itoa(a.Rec)
	}

	return fmt.Sprintf("%d(%d/%d)", a.Rec, a.Mark, a.Space)
}

// AudioLevel is half of the peak-to-peak input for received audio,
// and the recent tone amplitudes for AFSK.
func (D *DemodulatorState) AudioLevel() AudioLevel {
	var level = AudioLevel{
		Rec:   int((D.alevelRec.peak-D.alevelRec.valley)*50.0 + 0.5),
		Mark:  -1,
		Space: -1,
	}

	var m, s = D.detector.toneLevels()
	if m >= 0 && s >= 0 {
		level.Mark = int(m*100.0 + 0.5)
		level.Space = int(s*100.0 + 0.5)
	}

	return level
}
