package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:     Generate the filters used by the demodulators.
 *
 *		All of these are pure functions of their arguments.
 *		They are called once when a channel is configured and
 *		the results never change after that.
 *
 *----------------------------------------------------------------*/

import (
	"math"
)

// Hard upper limit for the number of taps in any filter.
const MaxFilterSize = 1024

// WindowType selects the shape applied to a windowed-sinc filter.
type WindowType int

const (
	WindowTruncated WindowType = iota
	WindowCosine
	WindowHamming
	WindowBlackman
	WindowFlattop
)

func (w WindowType) String() string {
	switch w {
	case WindowTruncated:
		return "truncated"
	case WindowCosine:
		return "cosine"
	case WindowHamming:
		return "hamming"
	case WindowBlackman:
		return "blackman"
	case WindowFlattop:
		return "flattop"
	}

	return "unknown"
}

/*------------------------------------------------------------------
 *
 * Name:        Window
 *
 * Purpose:     Filter window shape functions.
 *
 * Inputs:   	windowType	- WindowHamming, etc.
 *		size		- Number of filter taps.
 *		index		- Index in range of 0 to size-1.
 *
 * Returns:     Multiplier for the window shape.
 *
 *----------------------------------------------------------------*/

func Window(windowType WindowType, size int, index int) float64 {
	var n = float64(size) // Save on a lot of casting later
	var j = float64(index)

	var center = 0.5 * (n - 1)

	switch windowType {
	case WindowCosine:
		return math.Cos((j - center) / n * math.Pi)

	case WindowHamming:
		return 0.53836 - 0.46164*math.Cos((j*2*math.Pi)/(n-1))

	case WindowBlackman:
		return 0.42659 - 0.49656*math.Cos((j*2*math.Pi)/(n-1)) +
			0.076849*math.Cos((j*4*math.Pi)/(n-1))

	case WindowFlattop:
		return 1.0 - 1.93*math.Cos((j*2*math.Pi)/(n-1)) +
			1.29*math.Cos((j*4*math.Pi)/(n-1)) -
			0.388*math.Cos((j*6*math.Pi)/(n-1)) +
			0.028*math.Cos((j*8*math.Pi)/(n-1))

	case WindowTruncated:
		fallthrough
	default:
		return 1.0
	}
}

/*------------------------------------------------------------------
 *
 * Name:        ClampTaps
 *
 * Purpose:     Force a tap count to be odd and within range.
 *
 * Inputs:   	taps	- Requested number of taps.
 *
 * Returns:     Usable number of taps, and whether the request had to be
 *		reduced.  Filters are never refused.  An oversized request
 *		degrades to the largest odd size we can handle.
 *
 *----------------------------------------------------------------*/

func ClampTaps(taps int) (int, bool) {
	if taps < 3 {
		return 3, false
	}

	taps |= 1 // odd number is a little better

	if taps > MaxFilterSize {
		return (MaxFilterSize - 1) | 1, true
	}

	return taps, false
}

// Normalize so the taps add up to one, i.e. unity gain at DC.
func normalizeSum(filter []float64) {
	var g = 0.0
	for _, v := range filter {
		g += v
	}

	if math.Abs(g) < 1e-12 {
		return
	}

	for j := range filter {
		filter[j] /= g
	}
}

/*------------------------------------------------------------------
 *
 * Name:        GenLowpass
 *
 * Purpose:     Generate low pass filter kernel.
 *
 * Inputs:   	fc		- Cutoff frequency as fraction of sampling frequency.
 *		filterSize	- Number of filter taps.
 *		wtype		- Window type, WindowHamming, etc.
 *
 * Returns:     Filter taps normalized for unity gain at DC.
 *
 *----------------------------------------------------------------*/

func GenLowpass(fc float64, filterSize int, wtype WindowType) []float64 {
	var filter = make([]float64, filterSize)
	var center = 0.5 * float64(filterSize-1)

	for j := range filterSize {
		var x = float64(j) - center

		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}

		filter[j] = sinc * Window(wtype, filterSize, j)
	}

	normalizeSum(filter)

	return filter
}

/*------------------------------------------------------------------
 *
 * Name:        GenBandpass
 *
 * Purpose:     Generate band pass filter kernel for the prefilter.
 *
 * Inputs:   	f1		- Lower cutoff frequency as fraction of sampling frequency.
 *		f2		- Upper cutoff frequency...
 *		filterSize	- Number of filter taps.
 *		wtype		- Window type, WindowHamming, etc.
 *
 * Returns:     Filter taps with unity gain in the middle of the passband.
 *
 * Reference:	http://www.labbookpages.co.uk/audio/firWindowing.html
 *
 *----------------------------------------------------------------*/

func GenBandpass(f1 float64, f2 float64, filterSize int, wtype WindowType) []float64 {
	var filter = make([]float64, filterSize)
	var center = 0.5 * float64(filterSize-1)

	for j := range filterSize {
		var x = float64(j) - center

		var sinc float64
		if x == 0 {
			sinc = 2 * (f2 - f1)
		} else {
			sinc = math.Sin(2*math.Pi*f2*x)/(math.Pi*x) -
				math.Sin(2*math.Pi*f1*x)/(math.Pi*x)
		}

		filter[j] = sinc * Window(wtype, filterSize, j)
	}

	/*
	 * Can't use same technique as for lowpass.
	 * Instead compute gain in middle of passband.
	 * See http://dsp.stackexchange.com/questions/4693/fir-filter-gain
	 */
	var w = 2 * math.Pi * (f1 + f2) / 2
	var g = 0.0
	for j := range filterSize {
		g += filter[j] * math.Cos((float64(j)-center)*w)
	}

	if math.Abs(g) > 1e-12 {
		for j := range filterSize {
			filter[j] /= g
		}
	}

	return filter
}

/*------------------------------------------------------------------
 *
 * Name:        rrc
 *
 * Purpose:     Root Raised Cosine function.
 *		It's mostly the sinc function with cos windowing to taper off edges faster.
 *
 * Inputs:      t		- Time in units of symbol duration.
 *				  i.e. The centers of two adjacent symbols would differ by 1.
 *
 *		a		- Roll off factor, between 0 and 1.
 *
 * Returns:	Should be 1 for t = 0 and 0 at all other integer values of t.
 *
 *----------------------------------------------------------------*/

func rrc(t float64, a float64) float64 {
	var sinc float64
	if t > -0.001 && t < 0.001 {
		sinc = 1
	} else {
		sinc = math.Sin(math.Pi*t) / (math.Pi * t)
	}

	var window float64
	if math.Abs(a*t) > 0.499 && math.Abs(a*t) < 0.501 {
		window = math.Pi / 4
	} else {
		window = math.Cos(math.Pi*a*t) / (1 - math.Pow(2*a*t, 2))
	}

	return sinc * window
}

// GenRRCLowpass makes the Root Raised Cosine low pass filter which is
// supposed to minimize intersymbol interference.
func GenRRCLowpass(filterTaps int, rolloff float64, samplesPerSymbol float64) []float64 {
	var filter = make([]float64, filterTaps)

	for k := range filterTaps {
		var t = (float64(k) - (float64(filterTaps)-1.0)/2.0) / samplesPerSymbol
		filter[k] = rrc(t, rolloff)
	}

	normalizeSum(filter)

	return filter
}

/* end dsp.go */
