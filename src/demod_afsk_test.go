package viperwolf

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseProfile(t *testing.T) {
	for in, want := range map[string]Profile{
		"A": ProfileAmplitude,
		"a": ProfileAmplitude,
		"E": ProfileAmplitude,
		"":  ProfileAmplitude,
		"B": ProfileDiscriminator,
		"d": ProfileDiscriminator,
	} {
		var got, err = ParseProfile(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	var _, err = ParseProfile("Z")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestSampleHistory(t *testing.T) {
	var h = newSampleHistory(3)

	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.push(v)
	}

	assert.Equal(t, []float64{5, 4, 3}, h.recent())
	assert.InDelta(t, 5*1+4*10+3*100, h.convolve([]float64{1, 10, 100}), 1e-12)

	// Wraps around many times without losing order.
	for v := range 100 {
		h.push(float64(v))
	}
	assert.Equal(t, []float64{99, 98, 97}, h.recent())
}

func TestOscillator(t *testing.T) {
	var o = newOscillator(1200, 48000)

	assert.Equal(t, uint32(107374182), o.delta)
	assert.InDelta(t, 1.0, o.cos(), 1e-9)
	assert.InDelta(t, 0.0, o.sin(), 1e-9)

	// A quarter cycle later.
	for range 10 {
		o.advance()
	}
	assert.InDelta(t, 0.0, o.cos(), 0.05)
	assert.InDelta(t, 1.0, o.sin(), 0.01)

	// And back around.
	for range 30 {
		o.advance()
	}
	assert.InDelta(t, 1.0, o.cos(), 0.01)
}

func TestAGC(t *testing.T) {
	var peak, valley, out = agc(1, 0.7, 0.00009, 0, 0)

	assert.InDelta(t, 0.7, peak, 1e-9)
	assert.InDelta(t, 0.00009, valley, 1e-9)
	assert.InDelta(t, 0.5, out, 1e-3)

	// Nothing to work with.
	_, _, out = agc(0, 0.7, 0.00009, 0, 0)
	assert.InDelta(t, 0.0, out, 1e-12)
}

func TestAGC_SettlesOnSinusoid(t *testing.T) {
	// The same output span whatever the input level.
	for _, amplitude := range []float64{0.01, 1, 2, 50} {
		var peak, valley = 0.0, 0.0
		var lo, hi = math.Inf(1), math.Inf(-1)
		var spread []float64

		for n := range 48000 {
			var in = amplitude * math.Sin(2*math.Pi*1200*float64(n)/48000)

			var out float64
			peak, valley, out = agc(in, 0.7, 0.00009, peak, valley)

			// Last few cycles only.
			if n >= 48000-400 {
				lo = min(lo, out)
				hi = max(hi, out)
			}

			if n%4000 == 0 {
				spread = append(spread, peak-valley)
			}
		}

		var last = spread[len(spread)-1]
		assert.Greater(t, last, 0.0)
		assert.InEpsilon(t, 2*amplitude, last, 0.02, "amplitude %g", amplitude)
		assert.InEpsilon(t, last, spread[len(spread)-2], 0.001, "still moving at amplitude %g", amplitude)

		assert.InDelta(t, 1.0, hi-lo, 0.01, "amplitude %g", amplitude)
	}
}

func TestAGC_OutputRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var peak, valley = 0.0, 0.0
		var n = rapid.IntRange(1, 200).Draw(t, "n")

		for i := range n {
			var in = rapid.Float64Range(0, 10).Draw(t, fmt.Sprintf("in%d", i))

			var out float64
			peak, valley, out = agc(in, 0.7, 0.00009, peak, valley)

			assert.GreaterOrEqual(t, out, -0.5-1e-9)
			assert.LessOrEqual(t, out, 0.5+1e-9)
		}
	})
}

func TestNewDemodulator_Rejects(t *testing.T) {
	var good = DemodConfig{SampleRate: 44100, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileAmplitude}

	var _, err = NewDemodulator(good, quietLogger())
	require.NoError(t, err)

	for name, mutate := range map[string]func(*DemodConfig){
		"rate":     func(c *DemodConfig) { c.SampleRate = 0 },
		"baud":     func(c *DemodConfig) { c.Baud = -1 },
		"too slow": func(c *DemodConfig) { c.SampleRate = 4000 },
		"nyquist":  func(c *DemodConfig) { c.SpaceFreq = 30000 },
		"same":     func(c *DemodConfig) { c.SpaceFreq = 1200 },
		"profile":  func(c *DemodConfig) { c.Profile = 'Z' },
	} {
		var cfg = good
		mutate(&cfg)

		var _, err = NewDemodulator(cfg, quietLogger())
		assert.Error(t, err, name)
	}
}

func TestNewDemodulator_Filters(t *testing.T) {
	for _, tc := range []struct {
		cfg     DemodConfig
		preTaps int
		lpTaps  int
	}{
		// 383 taps is the classic 1200 baud prefilter at 44100.
		{DemodConfig{SampleRate: 44100, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileAmplitude}, 383, 103},
		{DemodConfig{SampleRate: 48000, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileDiscriminator}, 327, 81},
		{DemodConfig{SampleRate: 44100, Baud: 300, MarkFreq: 1600, SpaceFreq: 1800, Profile: ProfileAmplitude}, 273, 411},
	} {
		var D, err = NewDemodulator(tc.cfg, quietLogger())
		require.NoError(t, err)

		assert.Len(t, D.PreFilter(), tc.preTaps, "%+v", tc.cfg)
		assert.Len(t, D.LowpassFilter(), tc.lpTaps, "%+v", tc.cfg)
		assert.Equal(t, 1, len(D.PreFilter())%2)
		assert.Equal(t, 1, len(D.LowpassFilter())%2)
	}
}

func TestNewDemodulator_PLLStep(t *testing.T) {
	var D, err = NewDemodulator(DemodConfig{SampleRate: 48000, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileAmplitude}, quietLogger())
	require.NoError(t, err)

	// 40 samples per bit.
	assert.Equal(t, int32(107374182), D.PLLStepPerSample())
}

func TestNewDemodulator_HugeFilterIsReduced(t *testing.T) {
	var D, err = NewDemodulator(DemodConfig{SampleRate: 192000, Baud: 300, MarkFreq: 1600, SpaceFreq: 1800, Profile: ProfileAmplitude}, quietLogger())
	require.NoError(t, err)

	assert.LessOrEqual(t, len(D.PreFilter()), MaxFilterSize)
	assert.LessOrEqual(t, len(D.LowpassFilter()), MaxFilterSize)
}

// Demodulator output sign follows the tone.
func TestDemodulator_ToneSign(t *testing.T) {
	for _, profile := range []Profile{ProfileAmplitude, ProfileDiscriminator} {
		var D, err = NewDemodulator(DemodConfig{SampleRate: 48000, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: profile}, quietLogger())
		require.NoError(t, err)

		var last float64
		var gen, genErr = NewToneGenerator(48000, 1200, 1200, 2200, 0.5, func(s float64) { last = D.ProcessSample(s) })
		require.NoError(t, genErr)

		// Both tones, so the AGC knows what each looks like.
		for i := range 80 {
			gen.PutBit(i/4%2 == 0)
		}

		for range 60 {
			gen.PutBit(true)
		}
		assert.Positive(t, last, "mark, profile %s", profile)

		for range 60 {
			gen.PutBit(false)
		}
		assert.Negative(t, last, "space, profile %s", profile)
	}
}

func TestDemodulator_Silence(t *testing.T) {
	var D, err = NewDemodulator(DemodConfig{SampleRate: 44100, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileAmplitude}, quietLogger())
	require.NoError(t, err)

	for range 10000 {
		assert.InDelta(t, 0.0, D.ProcessSample(0), 1e-12)
	}

	assert.Equal(t, 0, D.AudioLevel().Rec)
}

func TestDemodulator_AudioLevel(t *testing.T) {
	var A, err = NewDemodulator(DemodConfig{SampleRate: 48000, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileAmplitude}, quietLogger())
	require.NoError(t, err)

	var B, errB = NewDemodulator(DemodConfig{SampleRate: 48000, Baud: 1200, MarkFreq: 1200, SpaceFreq: 2200, Profile: ProfileDiscriminator}, quietLogger())
	require.NoError(t, errB)

	var gen, genErr = NewToneGenerator(48000, 1200, 1200, 2200, 0.5, func(s float64) {
		A.ProcessSample(s)
		B.ProcessSample(s)
	})
	require.NoError(t, genErr)

	for i := range 400 {
		gen.PutBit(i%3 == 0)
	}

	// Half of peak to peak, scaled so full range is 100.
	var level = A.AudioLevel()
	assert.InDelta(t, 50, level.Rec, 3)
	assert.Positive(t, level.Mark)
	assert.Positive(t, level.Space)

	assert.InDelta(t, 50, B.AudioLevel().Rec, 3)
	assert.Equal(t, -1, B.AudioLevel().Mark)
	assert.Equal(t, -1, B.AudioLevel().Space)
}

func TestAudioLevel_String(t *testing.T) {
	assert.Equal(t, "50(25/27)", AudioLevel{Rec: 50, Mark: 25, Space: 27}.String())
	assert.Equal(t, "50", AudioLevel{Rec: 50, Mark: -1, Space: -1}.String())
}
