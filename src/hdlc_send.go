package viperwolf

/*-------------------------------------------------------------
 *
 * Purpose:	Convert frames to a stream of bits.
 *
 * Description:	This is the inverse of hdlc_rec.go.  Send:
 *			start flag
 *			bit stuffed data
 *			optional FCS
 *			end flag
 *		NRZI encoding for everything, including the "flags."
 *
 *		Viperwolf only receives over the air, but we need this
 *		to make test signals with gen_packets and in the tests.
 *
 *--------------------------------------------------------------*/

// BitSink receives one line bit at a time, e.g. a tone generator.
type BitSink func(bit bool)

// HDLCEncoder holds the transmit state for one channel.
type HDLCEncoder struct {
	put      BitSink
	stuffing bool

	stuff   int  // Number of consecutive 1 bits sent, for bit stuffing.
	nrziOut bool // Current line level.

	bitsSent int
}

// NewHDLCEncoder sends bits to put.  Turn off stuffing only to generate
// the simplified framing that some transmitters use.
func NewHDLCEncoder(stuffing bool, put BitSink) *HDLCEncoder {
	return &HDLCEncoder{ //nolint:exhaustruct
		put:      put,
		stuffing: stuffing,
	}
}

// BitsSent is the number of line bits so far, including flags and stuffing.
// Divide by the baud rate for the time required.
func (e *HDLCEncoder) BitsSent() int {
	return e.bitsSent
}

// SendFlags sends count flag patterns, as a preamble or postamble.
func (e *HDLCEncoder) SendFlags(count int) {
	for range count {
		e.sendControl(hdlcFlag)
	}
}

/*-------------------------------------------------------------
 *
 * Name:	SendFrame
 *
 * Purpose:	Send one complete frame.
 *
 * Inputs:	frame	- Frame contents.
 *		withFCS	- Append the frame check sequence.
 *
 * Returns:	Number of bits sent including "flags" and the
 *		stuffing bits.
 *
 *--------------------------------------------------------------*/

func (e *HDLCEncoder) SendFrame(frame []byte, withFCS bool) int {
	var before = e.bitsSent

	e.sendControl(hdlcFlag) /* Start frame */

	for _, b := range frame {
		e.sendData(b)
	}

	if withFCS {
		var fcs = FCS(frame)
		e.sendData(byte(fcs & 0xff))
		e.sendData(byte(fcs >> 8))
	}

	e.sendControl(hdlcFlag) /* End frame */

	return e.bitsSent - before
}

func (e *HDLCEncoder) sendControl(x byte) {
	for range 8 {
		e.sendBitNRZI(x&1 != 0)
		x >>= 1
	}

	e.stuff = 0
}

func (e *HDLCEncoder) sendData(x byte) {
	for range 8 {
		e.sendBitNRZI(x&1 != 0)
		if x&1 != 0 {
			e.stuff++
			if e.stuffing && e.stuff == 5 {
				e.sendBitNRZI(false)
				e.stuff = 0
			}
		} else {
			e.stuff = 0
		}
		x >>= 1
	}
}

/*
 * NRZI encoding.
 * data 1 bit -> no change.
 * data 0 bit -> invert signal.
 */
func (e *HDLCEncoder) sendBitNRZI(b bool) {
	if !b {
		e.nrziOut = !e.nrziOut
	}

	e.put(e.nrziOut)
	e.bitsSent++
}

// EncodeFrameBits is a convenience for tests and tools: the line bits for
// some leading flags, one frame, and some trailing flags.
func EncodeFrameBits(frame []byte, stuffing bool, withFCS bool, preamble, postamble int) []bool {
	var out []bool
	var enc = NewHDLCEncoder(stuffing, func(bit bool) { out = append(out, bit) })

	enc.SendFlags(preamble)
	enc.SendFrame(frame, withFCS)
	enc.SendFlags(postamble)

	return out
}
