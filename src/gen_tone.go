package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:     Convert bits to AFSK audio samples.
 *
 *		Direct digital synthesis: a 32 bit phase accumulator is
 *		advanced by a different amount for each tone, so switching
 *		tones never makes a discontinuity in the waveform.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// SampleSink receives audio samples, about -1 .. +1.
type SampleSink func(sample float64)

// ToneGenerator holds the transmit modulator state for one channel.
type ToneGenerator struct {
	sampleRate int

	markChangePerSample  uint32
	spaceChangePerSample uint32

	ticksPerSample int64
	ticksPerBit    int64

	tonePhase uint32 // Phase accumulator for tone generation.
	bitLenAcc int64  // To accumulate fractional samples per bit.

	amplitude float64
	out       SampleSink
}

/*------------------------------------------------------------------
 *
 * Name:        NewToneGenerator
 *
 * Purpose:     Initialize for AFSK tone generation.
 *
 * Inputs:      sampleRate, baud, markFreq, spaceFreq
 *
 *		amplitude	- Signal amplitude on scale of 0 .. 1.
 *
 *		out		- Where the samples go.
 *
 * Description:	Calculate various constants for use by the direct digital synthesis
 * 		audio tone generation.
 *
 *----------------------------------------------------------------*/

func NewToneGenerator(sampleRate, baud, markFreq, spaceFreq int, amplitude float64, out SampleSink) (*ToneGenerator, error) {
	if sampleRate <= 0 || baud <= 0 {
		return nil, errors.Errorf("tone generator needs positive sample rate and baud, got %d and %d", sampleRate, baud)
	}

	if amplitude < 0 || amplitude > 1 {
		return nil, errors.Errorf("amplitude %.2f out of range 0 to 1", amplitude)
	}

	var perSample = func(f int) uint32 {
		return uint32(math.Round(float64(f) * TicksPerPLLCycle / float64(sampleRate)))
	}

	var g = &ToneGenerator{ //nolint:exhaustruct
		sampleRate:           sampleRate,
		markChangePerSample:  perSample(markFreq),
		spaceChangePerSample: perSample(spaceFreq),
		ticksPerSample:       int64(math.Round(TicksPerPLLCycle / float64(sampleRate))),
		ticksPerBit:          int64(math.Round(TicksPerPLLCycle / float64(baud))),
		amplitude:            amplitude,
		out:                  out,
	}

	if baud == 521 {
		// EAS SAME is really 520.83 baud.
		g.ticksPerBit = int64(math.Round(TicksPerPLLCycle / 520.833333333333))
	}

	return g, nil
}

// PutBit generates audio for one symbol.  A data '1' is the mark tone.
func (g *ToneGenerator) PutBit(mark bool) {
	var change = g.spaceChangePerSample
	if mark {
		change = g.markChangePerSample
	}

	for { /* until enough audio samples for this symbol. */
		g.tonePhase += change
		g.out(g.amplitude * fsin256(g.tonePhase))

		/* Enough for the bit time? */
		g.bitLenAcc += g.ticksPerSample
		if g.bitLenAcc >= g.ticksPerBit {
			break
		}
	}

	g.bitLenAcc -= g.ticksPerBit
}

// PutQuiet generates silence.
func (g *ToneGenerator) PutQuiet(d time.Duration) {
	var n = int(d.Seconds()*float64(g.sampleRate) + 0.5)
	for range n {
		g.out(0)
	}
}
