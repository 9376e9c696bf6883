package viperwolf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFCS_CheckValue(t *testing.T) {
	// Standard check value for CRC-16/X-25.
	assert.Equal(t, uint16(0x906E), FCS([]byte("123456789")))
}

func TestCheckFCS(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var data = rapid.SliceOfN(rapid.Byte(), 1, MaxFrameLen).Draw(t, "data")
		var fcs = FCS(data)
		var frame = append(append([]byte(nil), data...), byte(fcs), byte(fcs>>8))

		var got, ok = CheckFCS(frame)
		assert.True(t, ok)
		assert.Equal(t, data, got)

		// Any single bit error is caught.
		var bit = rapid.IntRange(0, 8*len(frame)-1).Draw(t, "bit")
		frame[bit/8] ^= 1 << (bit % 8)

		_, ok = CheckFCS(frame)
		assert.False(t, ok)
	})
}

func TestCheckFCS_TooShort(t *testing.T) {
	var _, ok = CheckFCS([]byte{0x12, 0x34})
	assert.False(t, ok)
}
