package viperwolf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterResponse(t *testing.T) {
	var filter = GenLowpass(0.1, 101, WindowHamming)

	var points = FilterResponse(filter, 48000, 512)

	require.Len(t, points, 257)
	assert.InDelta(t, 0.0, points[0].Freq, 1e-9)
	assert.InDelta(t, 24000.0, points[len(points)-1].Freq, 1e-9)

	assert.InDelta(t, 1.0, points[0].Gain, 1e-6)
	assert.InDelta(t, 0.0, points[0].GainDB, 1e-4)

	// 0.3 of the sample rate is well into the stop band.
	var stop = points[153]
	assert.InDelta(t, 14400.0, stop.Freq, 100)
	assert.Less(t, stop.GainDB, -40.0)
}

func TestFilterResponse_GrowsToFitFilter(t *testing.T) {
	var filter = GenLowpass(0.1, 301, WindowHamming)

	var points = FilterResponse(filter, 8000, 16)

	assert.Len(t, points, 512/2+1)
}

func TestGainAt_MatchesFFT(t *testing.T) {
	var filter = GenRRCLowpass(95, 0.4, 36.75)
	var points = FilterResponse(filter, 44100, 1024)

	for _, k := range []int{0, 10, 50, 200} {
		assert.InDelta(t, points[k].Gain, GainAt(filter, points[k].Freq/44100), 1e-6, "bin %d", k)
	}
}
