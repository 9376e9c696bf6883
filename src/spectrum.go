package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:     Frequency response of the generated filters.
 *
 *		Used by "atest --filters" to show what the demodulator
 *		is actually working with, and by the tests to check that
 *		the filters do what they claim.
 *
 *----------------------------------------------------------------*/

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ResponsePoint is the filter gain at one frequency.
type ResponsePoint struct {
	Freq   float64 // Hz
	Gain   float64 // linear magnitude
	GainDB float64
}

/*------------------------------------------------------------------
 *
 * Name:        FilterResponse
 *
 * Purpose:     Magnitude response of a FIR filter.
 *
 * Inputs:   	filter		- Taps.
 *		sampleRate	- Audio samples per second.
 *		fftSize		- Number of points.  Rounded up to a power of 2
 *				  at least as large as the filter.
 *
 * Returns:     fftSize/2+1 points from 0 Hz to sampleRate/2.
 *
 *----------------------------------------------------------------*/

func FilterResponse(filter []float64, sampleRate int, fftSize int) []ResponsePoint {
	var n = 1
	for n < fftSize || n < len(filter) {
		n <<= 1
	}

	var padded = make([]float64, n)
	copy(padded, filter)

	var fft = fourier.NewFFT(n)
	var coeffs = fft.Coefficients(nil, padded)

	var points = make([]ResponsePoint, len(coeffs))
	for k, c := range coeffs {
		var g = cmplx.Abs(c)
		points[k] = ResponsePoint{
			Freq:   float64(k) * float64(sampleRate) / float64(n),
			Gain:   g,
			GainDB: 20 * math.Log10(math.Max(g, 1e-12)),
		}
	}

	return points
}

// GainAt evaluates the magnitude response at a single frequency,
// given as a fraction of the sample rate.
func GainAt(filter []float64, f float64) float64 {
	var re, im float64
	for j, v := range filter {
		var w = 2 * math.Pi * f * float64(j)
		re += v * math.Cos(w)
		im -= v * math.Sin(w)
	}

	return math.Hypot(re, im)
}
