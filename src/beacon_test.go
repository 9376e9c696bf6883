package viperwolf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestBeaconDecoder(t *testing.T, cfg BeaconConfig) *BeaconDecoder {
	t.Helper()

	var b, err = NewBeaconDecoder(1, 1200, cfg)
	require.NoError(t, err)

	return b
}

func feedBeacon(b *BeaconDecoder, bits []bool) []BeaconMessage {
	var msgs []BeaconMessage
	for _, bit := range bits {
		if msg, ok := b.OnBit(bit); ok {
			msgs = append(msgs, msg)
		}
	}

	return msgs
}

func encodeBeacon(t *testing.T, text string, cfg BeaconConfig) []bool {
	t.Helper()

	var bits, err = EncodeBeaconBits(text, cfg)
	require.NoError(t, err)

	return bits
}

// MSB first, no preamble or end.
func asciiBits(s string) []bool {
	var bits []bool
	for i := range len(s) {
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, s[i]>>shift&1 == 1)
		}
	}

	return bits
}

func TestParseBitPattern(t *testing.T) {
	var p, err = parseBitPattern("1101")
	require.NoError(t, err)
	assert.Equal(t, 4, p.length())
	assert.True(t, p.matches(0b1111101))
	assert.False(t, p.matches(0b1111100))

	for _, bad := range []string{"", "12", "1 0", string(make([]byte, 65))} {
		_, err = parseBitPattern(bad)
		assert.Error(t, err, "%q", bad)
	}
}

func TestBeaconDecoder_RoundTrip(t *testing.T) {
	for _, spaceIsOne := range []bool{true, false} {
		var cfg = BeaconConfig{SpaceIsOne: spaceIsOne} //nolint:exhaustruct
		var b = newTestBeaconDecoder(t, cfg)

		var when = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		b.now = func() time.Time { return when }

		// Some idle bits first.
		var bits = make([]bool, 20)
		bits = append(bits, encodeBeacon(t, "Hello, beacon", cfg)...)

		var msgs = feedBeacon(b, bits)

		require.Len(t, msgs, 1)
		assert.Equal(t, BeaconMessage{Channel: 1, Text: "Hello, beacon", Time: when}, msgs[0])
		assert.False(t, b.InMessage())
	}
}

func TestBeaconDecoder_AnyASCII(t *testing.T) {
	var preamble, _ = parseBitPattern(DefaultBeaconPreamble)

	rapid.Check(t, func(rt *rapid.T) {
		var chars = rapid.SliceOfN(rapid.ByteRange(0x20, 0x7e), 0, 40).Draw(rt, "text")
		var text = string(chars)

		// Text like "UUU" contains the preamble and would start over
		// part way through a character.
		var history uint64
		for _, bit := range asciiBits(text) {
			history <<= 1
			if bit {
				history |= 1
			}
			if preamble.matches(history) {
				return
			}
		}

		var b, err = NewBeaconDecoder(0, 1200, BeaconConfig{}) //nolint:exhaustruct
		require.NoError(rt, err)

		var bits, encErr = EncodeBeaconBits(text, BeaconConfig{}) //nolint:exhaustruct
		require.NoError(rt, encErr)

		var msgs = feedBeacon(b, bits)

		require.Len(rt, msgs, 1)
		assert.Equal(rt, text, msgs[0].Text)
	})
}

func TestBeaconDecoder_EndsWithOnes(t *testing.T) {
	// 'q' and DEL end in 1 bits, which run into the end sequence.
	var cfg = BeaconConfig{} //nolint:exhaustruct
	var b = newTestBeaconDecoder(t, cfg)

	var msgs = feedBeacon(b, encodeBeacon(t, "seq", cfg))
	require.Len(t, msgs, 1)
	assert.Equal(t, "seq", msgs[0].Text)

	msgs = feedBeacon(b, encodeBeacon(t, "abc\x7f", cfg))
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc\x7f", msgs[0].Text)
}

func TestBeaconDecoder_SecondPreambleRestarts(t *testing.T) {
	var cfg = BeaconConfig{SpaceIsOne: false} //nolint:exhaustruct
	var b = newTestBeaconDecoder(t, cfg)

	var bits []bool
	for _, ch := range DefaultBeaconPreamble {
		bits = append(bits, ch == '1')
	}
	bits = append(bits, asciiBits("xx")...)
	bits = append(bits, encodeBeacon(t, "hi", cfg)...)

	var msgs = feedBeacon(b, bits)

	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
}

func TestBeaconDecoder_Timeout(t *testing.T) {
	// 24 bits at 1200 baud.
	var cfg = BeaconConfig{Timeout: 20 * time.Millisecond, SpaceIsOne: false} //nolint:exhaustruct
	var b = newTestBeaconDecoder(t, cfg)

	var full = encodeBeacon(t, "too slow", cfg)
	var preambleLen = len(DefaultBeaconPreamble)

	feedBeacon(b, full[:preambleLen])
	assert.True(t, b.InMessage())

	// The rest is too late.
	assert.Empty(t, feedBeacon(b, full[preambleLen:]))
	assert.False(t, b.InMessage())

	// Short enough is fine.
	var msgs = feedBeacon(b, encodeBeacon(t, "a", cfg))
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Text)
}

func TestBeaconDecoder_CustomPatterns(t *testing.T) {
	var cfg = BeaconConfig{Preamble: "1100110011", End: "1111111111", SpaceIsOne: false} //nolint:exhaustruct
	var b = newTestBeaconDecoder(t, cfg)

	var msgs = feedBeacon(b, encodeBeacon(t, "custom", cfg))

	require.Len(t, msgs, 1)
	assert.Equal(t, "custom", msgs[0].Text)
}

func TestNewBeaconDecoder_Errors(t *testing.T) {
	var _, err = NewBeaconDecoder(0, 0, BeaconConfig{}) //nolint:exhaustruct
	assert.Error(t, err)

	_, err = NewBeaconDecoder(0, 1200, BeaconConfig{Preamble: "abc"}) //nolint:exhaustruct
	assert.Error(t, err)

	_, err = NewBeaconDecoder(0, 1200, BeaconConfig{End: "2"}) //nolint:exhaustruct
	assert.Error(t, err)
}

func TestEncodeBeaconBits(t *testing.T) {
	var bits, err = EncodeBeaconBits("A", BeaconConfig{Preamble: "10", End: "11", SpaceIsOne: false}) //nolint:exhaustruct
	require.NoError(t, err)

	assert.Equal(t, []bool{
		true, false,
		false, true, false, false, false, false, false, true,
		true, true,
	}, bits)

	inverted, err := EncodeBeaconBits("A", BeaconConfig{Preamble: "10", End: "11", SpaceIsOne: true}) //nolint:exhaustruct
	require.NoError(t, err)
	for i := range bits {
		assert.Equal(t, !bits[i], inverted[i])
	}

	_, err = EncodeBeaconBits("caf\xc3\xa9", BeaconConfig{}) //nolint:exhaustruct
	assert.Error(t, err)
}
