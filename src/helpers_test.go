package viperwolf

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

const testFrameText = "WB2OSZ-15>TEST:,The quick brown fox jumps over the lazy dog!  1 of 4"

func quietLogger() *log.Logger {
	return NewLogger(io.Discard, "error")
}

// afskParams describes a test signal.
type afskParams struct {
	rate, baud, mark, space int

	stuffing bool
	fcs      bool
}

func afsk1200(rate int) afskParams {
	return afskParams{rate: rate, baud: 1200, mark: 1200, space: 2200, stuffing: true, fcs: true}
}

// genAFSK makes clean audio for some frames, with quiet before and after.
func genAFSK(t testing.TB, p afskParams, frames ...[]byte) []float64 {
	t.Helper()

	var out []float64
	var gen, err = NewToneGenerator(p.rate, p.baud, p.mark, p.space, 0.5, func(s float64) { out = append(out, s) })
	require.NoError(t, err)

	gen.PutQuiet(100 * time.Millisecond)

	var enc = NewHDLCEncoder(p.stuffing, gen.PutBit)
	for _, f := range frames {
		enc.SendFlags(32)
		enc.SendFrame(f, p.fcs)
		enc.SendFlags(8)
		gen.PutQuiet(50 * time.Millisecond)
	}

	gen.PutQuiet(100 * time.Millisecond)

	return out
}

func channelConfig(p afskParams, profile Profile) ChannelConfig {
	return ChannelConfig{
		Number:         0,
		SampleRate:     p.rate,
		Baud:           p.baud,
		MarkFreq:       p.mark,
		SpaceFreq:      p.space,
		Profile:        profile,
		Decimate:       1,
		Framing:        FramingHDLC,
		CheckFCS:       p.fcs,
		Input:          0,
		FrameQueueSize: 0,
	}
}

func newTestChannel(t testing.TB, cfg ChannelConfig) *Channel {
	t.Helper()

	var c, err = NewChannel(cfg, quietLogger(), nil)
	require.NoError(t, err)

	return c
}

func drainFrames(q *FrameQueue) []ReceivedFrame {
	var frames []ReceivedFrame
	for {
		var rf, ok = q.TryGet()
		if !ok {
			return frames
		}
		frames = append(frames, rf)
	}
}

// feedBits runs line bits through a deframer and collects copies of
// every frame it reports.
func feedBits(d *Deframer, bits []bool) [][]byte {
	var frames [][]byte
	for _, b := range bits {
		if f, ok := d.OnBit(b); ok {
			frames = append(frames, append([]byte(nil), f...))
		}
	}

	return frames
}
