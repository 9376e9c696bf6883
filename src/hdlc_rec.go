package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Extract frames from a stream of bits.
 *
 * Description:	Bits come from the clock recovery one at a time.
 *		Undo the NRZI encoding, look for the special "flag"
 *		pattern, and collect everything in between into octets.
 *
 *		There is no going back.  Each bit is dealt with as it
 *		arrives and then forgotten.
 *
 *---------------------------------------------------------------*/

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	MinFrameLen = 4
	MaxFrameLen = 330
)

// The special pattern 01111110 indicates beginning and ending of a frame.
const hdlcFlag = 0x7e

// Framing selects how strictly the bits between flags are interpreted.
type Framing int

const (
	// Standard HDLC.  Remove stuffed bits, give up on seven 1 bits in a row,
	// and only report a frame when the closing flag shows up.
	FramingHDLC Framing = iota

	// No bit stuffing.  Anything that has reached the minimum length
	// is available immediately, even before the closing flag.
	FramingSimple
)

func (f Framing) String() string {
	switch f {
	case FramingHDLC:
		return "hdlc"
	case FramingSimple:
		return "simple"
	}

	return "unknown"
}

func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hdlc":
		return FramingHDLC, nil
	case "simple", "unstuffed":
		return FramingSimple, nil
	}

	return 0, errors.Errorf("unknown framing %q, expected hdlc or simple", s)
}

func (f Framing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Framing) UnmarshalText(text []byte) error {
	var parsed, err = ParseFraming(string(text))
	if err != nil {
		return err
	}

	*f = parsed

	return nil
}

// Deframer is the receive side state for one channel.
type Deframer struct {
	framing Framing

	prevRaw bool // Previous bit, for NRZI decoding.

	patDet byte // 8 bit pattern detector shift register.

	oacc byte // Accumulator for building up an octet.
	olen int  // Number of bits in oacc.  -1 while hunting for a flag.

	frameBuf [MaxFrameLen]byte
	frameLen int
	overflow bool // Frame in progress is longer than we can hold.

	// Most recent completed frame, until someone asks for it.
	lastFrame   [MaxFrameLen]byte
	lastLen     int
	haveFrame   bool
	slotCurrent bool // Slot holds the frame still in progress.
}

func NewDeframer(framing Framing) *Deframer {
	var d = &Deframer{framing: framing} //nolint:exhaustruct
	d.Reset()

	return d
}

// Reset forgets everything, including any unretrieved frame.
func (d *Deframer) Reset() {
	*d = Deframer{framing: d.framing} //nolint:exhaustruct

	d.olen = -1 // Nothing until we see a flag.
}

// Hunting is true between frames, while waiting for a flag.
func (d *Deframer) Hunting() bool {
	return d.olen < 0
}

/*-----------------------------------------------------------
 *
 * Name:        OnBit
 *
 * Purpose:     Process one bit from the clock recovery.
 *
 * Inputs:      raw	- Bit as sampled from the demodulator.
 *			  Not yet NRZI decoded.
 *
 * Returns:	A frame, if this bit made one available, and true.
 *		The slice refers to internal storage and is only good
 *		until the next call.  RetrieveFrame gives a copy.
 *
 *-----------------------------------------------------------*/

func (d *Deframer) OnBit(raw bool) ([]byte, bool) {
	/*
	 * Using NRZI encoding,
	 *   A '0' bit is represented by an inversion since previous bit.
	 *   A '1' bit is represented by no change.
	 */
	var dbit = raw == d.prevRaw
	d.prevRaw = raw

	/*
	 * Octets are sent LSB first.
	 * Shift the most recent 8 bits thru the pattern detector.
	 */
	d.patDet >>= 1
	if dbit {
		d.patDet |= 0x80
	}

	if d.patDet == hdlcFlag {
		return d.onFlag()
	}

	if d.framing == FramingHDLC {
		if d.patDet == 0xfe {
			/*
			 * Valid data will never have 7 one bits in a row.
			 *
			 *	11111110
			 *
			 * This indicates loss of signal.
			 */
			d.olen = -1 // Stop accumulating octets.
			d.frameLen = 0
			d.overflow = false

			return nil, false
		}

		if (d.patDet & 0xfc) == 0x7c {
			/*
			 * If we have five '1' bits in a row, followed by a '0' bit,
			 *
			 *	0111110xx
			 *
			 * the current '0' bit should be discarded because it was added for
			 * "bit stuffing."
			 */
			return nil, false
		}
	}

	if d.olen < 0 {
		return nil, false
	}

	d.oacc >>= 1
	if dbit {
		d.oacc |= 0x80
	}
	d.olen++

	if d.olen < 8 {
		return nil, false
	}

	d.olen = 0

	if d.frameLen < MaxFrameLen {
		d.frameBuf[d.frameLen] = d.oacc
		d.frameLen++
	} else if !d.overflow {
		// Too long.  Nothing more from this frame will be reported.
		d.overflow = true
		if d.slotCurrent {
			d.haveFrame = false
			d.slotCurrent = false
		}
	}

	if d.framing == FramingSimple && !d.overflow && d.frameLen >= MinFrameLen {
		d.slotCurrent = true

		return d.publish(), true
	}

	return nil, false
}

func (d *Deframer) onFlag() ([]byte, bool) {
	var frame []byte
	var ok bool

	/*
	 * If we have an adequate number of whole octets, it is a candidate for
	 * further processing.
	 *
	 * It might look odd that olen is being tested for 7 instead of 0.
	 * This is because oacc would already have 7 bits from the special
	 * "flag" pattern before it is detected here.
	 */
	if d.framing == FramingHDLC && d.olen == 7 && d.frameLen >= MinFrameLen && !d.overflow {
		frame, ok = d.publish(), true
	}

	// Start of a new frame.
	d.olen = 0
	d.frameLen = 0
	d.overflow = false
	d.slotCurrent = false

	return frame, ok
}

// Copy the frame in progress into the "last frame" slot.
// Anything there that was never retrieved is lost.
func (d *Deframer) publish() []byte {
	copy(d.lastFrame[:], d.frameBuf[:d.frameLen])
	d.lastLen = d.frameLen
	d.haveFrame = true

	return d.lastFrame[:d.lastLen]
}

// RetrieveFrame hands over the most recent completed frame, once.
func (d *Deframer) RetrieveFrame() ([]byte, bool) {
	if !d.haveFrame {
		return nil, false
	}

	d.haveFrame = false
	d.slotCurrent = false

	var out = make([]byte, d.lastLen)
	copy(out, d.lastFrame[:d.lastLen])

	return out, true
}
