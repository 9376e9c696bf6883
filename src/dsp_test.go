package viperwolf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestClampTaps(t *testing.T) {
	var cases = []struct {
		in      int
		want    int
		clamped bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, false},
		{10, 11, false},
		{383, 383, false},
		{1023, 1023, false},
		{1024, 1023, true},
		{5000, 1023, true},
	}

	for _, tc := range cases {
		var got, clamped = ClampTaps(tc.in)
		assert.Equal(t, tc.want, got, "taps for %d", tc.in)
		assert.Equal(t, tc.clamped, clamped, "clamped for %d", tc.in)
	}
}

func TestClampTaps_AlwaysOddAndInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var n, _ = ClampTaps(rapid.IntRange(-10, 10000).Draw(t, "taps"))

		assert.Equal(t, 1, n%2)
		assert.GreaterOrEqual(t, n, 3)
		assert.LessOrEqual(t, n, MaxFilterSize)
	})
}

func TestWindow(t *testing.T) {
	// Flat.
	assert.InDelta(t, 1.0, Window(WindowTruncated, 11, 0), 1e-12)
	assert.InDelta(t, 1.0, Window(WindowTruncated, 11, 5), 1e-12)

	// Cosine peaks in the middle.
	assert.InDelta(t, 1.0, Window(WindowCosine, 11, 5), 1e-12)
	assert.Less(t, Window(WindowCosine, 11, 0), 0.2)

	// Hamming doesn't go all the way to zero.
	assert.InDelta(t, 0.07672, Window(WindowHamming, 11, 0), 1e-5)
	assert.InDelta(t, 1.0, Window(WindowHamming, 11, 5), 1e-5)

	// Symmetric.
	for _, w := range []WindowType{WindowCosine, WindowHamming, WindowBlackman, WindowFlattop} {
		for j := range 11 {
			assert.InDelta(t, Window(w, 11, j), Window(w, 11, 10-j), 1e-9, "%s %d", w, j)
		}
	}
}

func TestGenLowpass_UnityAtDC(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var fc = rapid.Float64Range(0.01, 0.45).Draw(t, "fc")
		var taps, _ = ClampTaps(rapid.IntRange(3, 301).Draw(t, "taps"))
		var w = WindowType(rapid.IntRange(int(WindowTruncated), int(WindowHamming)).Draw(t, "window"))

		var filter = GenLowpass(fc, taps, w)

		assert.Len(t, filter, taps)

		var sum = 0.0
		for _, v := range filter {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})
}

func TestGenLowpass_Symmetric(t *testing.T) {
	var filter = GenLowpass(0.1, 51, WindowHamming)

	for j := range filter {
		assert.InDelta(t, filter[j], filter[len(filter)-1-j], 1e-12)
	}
}

func TestGenLowpass_Response(t *testing.T) {
	var filter = GenLowpass(0.05, 201, WindowHamming)

	assert.InDelta(t, 1.0, GainAt(filter, 0), 1e-9)
	assert.InDelta(t, 1.0, GainAt(filter, 0.02), 0.01)
	assert.Less(t, GainAt(filter, 0.2), 0.01)
}

func TestGenBandpass_UnityAtCenter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var f1 = rapid.Float64Range(0.01, 0.2).Draw(t, "f1")
		var f2 = f1 + rapid.Float64Range(0.02, 0.2).Draw(t, "width")
		var taps, _ = ClampTaps(rapid.IntRange(51, 401).Draw(t, "taps"))

		var filter = GenBandpass(f1, f2, taps, WindowTruncated)

		assert.InDelta(t, 1.0, GainAt(filter, (f1+f2)/2), 1e-6)
	})
}

func TestGenBandpass_RejectsOutOfBand(t *testing.T) {
	// Roughly the 1200 baud prefilter at 44100.
	var f1 = (1200 - 0.155*1200) / 44100.
	var f2 = (2200 + 0.155*1200) / 44100.
	var filter = GenBandpass(f1, f2, 383, WindowCosine)

	assert.InDelta(t, 1.0, GainAt(filter, 1700/44100.), 1e-6)
	assert.Greater(t, GainAt(filter, 1200/44100.), 0.5)
	assert.Greater(t, GainAt(filter, 2200/44100.), 0.5)
	assert.Less(t, GainAt(filter, 100/44100.), 0.05)
	assert.Less(t, GainAt(filter, 6000/44100.), 0.05)
}

func TestGenRRCLowpass(t *testing.T) {
	var filter = GenRRCLowpass(113, 0.20, 40)

	assert.Len(t, filter, 113)

	var sum = 0.0
	for _, v := range filter {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Biggest in the middle.
	var center = filter[56]
	for _, v := range filter {
		assert.LessOrEqual(t, v, center)
	}
}

func TestRRC(t *testing.T) {
	assert.InDelta(t, 1.0, rrc(0, 0.2), 1e-12)

	// Zero crossings at the other symbol centers.
	for _, tt := range []float64{1, 2, 3, -1, -2} {
		assert.InDelta(t, 0.0, rrc(tt, 0.2), 1e-9, "t=%g", tt)
	}

	// The singular point is handled.
	assert.False(t, math.IsNaN(rrc(2.5, 0.2)))
	assert.False(t, math.IsInf(rrc(2.5, 0.2), 0))
}
