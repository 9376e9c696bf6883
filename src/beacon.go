package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Simple beacon messages, sent without HDLC.
 *
 * Description:	Some small transmitters just key up and send
 *
 *			101010101010		preamble
 *			ASCII, 8 bits per char, MSB first
 *			11111111		end sequence
 *
 *		straight out as tones, no NRZI, no stuffing.  An ASCII
 *		character can never have its high bit set so the end
 *		sequence can't show up in the text at a character boundary.
 *
 *		The decoder works on the raw bits from the clock recovery.
 *		A second preamble before the end starts over.  If the end
 *		doesn't show up in time the partial message is discarded.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultBeaconPreamble = "101010101010"
	DefaultBeaconEnd      = "11111111"
	DefaultBeaconTimeout  = 5 * time.Second

	// Longest message we will collect, in characters.
	maxBeaconChars = 256
)

// BeaconMessage is one decoded beacon.
type BeaconMessage struct {
	Channel int
	Text    string
	Time    time.Time
}

// BeaconConfig controls the decoder.  Zero values mean the defaults,
// except SpaceIsOne which must be set explicitly.
type BeaconConfig struct {
	Preamble string
	End      string
	Timeout  time.Duration

	// The transmitter sends a 1 on the higher of the two tones, which the
	// demodulator calls space.  Invert everything from the clock recovery.
	SpaceIsOne bool
}

func (c BeaconConfig) withDefaults() BeaconConfig {
	if c.Preamble == "" {
		c.Preamble = DefaultBeaconPreamble
	}
	if c.End == "" {
		c.End = DefaultBeaconEnd
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultBeaconTimeout
	}

	return c
}

// A bit pattern matched against the most recent bits.
type bitPattern struct {
	bits uint64
	mask uint64
}

func parseBitPattern(s string) (bitPattern, error) {
	if len(s) == 0 || len(s) > 64 {
		return bitPattern{}, errors.Errorf("bit pattern %q must be 1 to 64 bits", s)
	}

	var p bitPattern
	for _, ch := range s {
		p.bits <<= 1
		p.mask = p.mask<<1 | 1
		switch ch {
		case '1':
			p.bits |= 1
		case '0':
		default:
			return bitPattern{}, errors.Errorf("bit pattern %q may only contain 0 and 1", s)
		}
	}

	return p, nil
}

func (p bitPattern) matches(history uint64) bool {
	return history&p.mask == p.bits
}

func (p bitPattern) length() int {
	var n = 0
	for m := p.mask; m != 0; m >>= 1 {
		n++
	}

	return n
}

// BeaconDecoder finds beacon messages in a bit stream for one channel.
type BeaconDecoder struct {
	channel     int
	preamble    bitPattern
	end         bitPattern
	endLen      int
	spaceIsOne  bool
	timeoutBits int

	history uint64 // Most recent bits, newest in the LSB.

	inMessage bool
	sinceSync int // Bits since the preamble.
	collected []bool

	now func() time.Time
}

func NewBeaconDecoder(channel, baud int, cfg BeaconConfig) (*BeaconDecoder, error) {
	if baud <= 0 {
		return nil, errors.Errorf("beacon decoder needs a positive baud rate, got %d", baud)
	}

	cfg = cfg.withDefaults()

	var pre, err = parseBitPattern(cfg.Preamble)
	if err != nil {
		return nil, errors.Wrap(err, "beacon preamble")
	}

	var end, endErr = parseBitPattern(cfg.End)
	if endErr != nil {
		return nil, errors.Wrap(endErr, "beacon end sequence")
	}

	return &BeaconDecoder{ //nolint:exhaustruct
		channel:     channel,
		preamble:    pre,
		end:         end,
		endLen:      end.length(),
		spaceIsOne:  cfg.SpaceIsOne,
		timeoutBits: int(cfg.Timeout.Seconds() * float64(baud)),
		collected:   make([]bool, 0, maxBeaconChars*8+64),
		now:         time.Now,
	}, nil
}

// InMessage is true between a preamble and the end or timeout.
func (b *BeaconDecoder) InMessage() bool {
	return b.inMessage
}

/*------------------------------------------------------------------
 *
 * Name:        OnBit
 *
 * Purpose:     Process one bit from the clock recovery.
 *
 * Returns:	A message and true when the end sequence completes one.
 *
 *----------------------------------------------------------------*/

func (b *BeaconDecoder) OnBit(bit bool) (BeaconMessage, bool) {
	if b.spaceIsOne {
		bit = !bit
	}

	b.history <<= 1
	if bit {
		b.history |= 1
	}

	if !b.inMessage {
		if b.preamble.matches(b.history) {
			b.startMessage()
		}

		return BeaconMessage{}, false
	}

	b.collected = append(b.collected, bit)
	b.sinceSync++

	// Only look for the end between characters.  The last character can
	// end with 1 bits which would otherwise cut the message short.
	var textBits = len(b.collected) - b.endLen
	if textBits >= 0 && textBits%8 == 0 && b.end.matches(b.history) {
		var text = bitsToASCII(b.collected[:textBits])
		b.inMessage = false
		b.collected = b.collected[:0]

		return BeaconMessage{Channel: b.channel, Text: text, Time: b.now()}, true
	}

	if b.preamble.matches(b.history) {
		// Start over with the new one.
		b.startMessage()

		return BeaconMessage{}, false
	}

	if b.sinceSync > b.timeoutBits || len(b.collected) > maxBeaconChars*8+b.endLen {
		b.inMessage = false
		b.collected = b.collected[:0]
	}

	return BeaconMessage{}, false
}

func (b *BeaconDecoder) startMessage() {
	b.inMessage = true
	b.sinceSync = 0
	b.collected = b.collected[:0]

	// Don't let the preamble bits count toward the end sequence.
	b.history = 0
}

// MSB first, any incomplete character at the end is ignored.
func bitsToASCII(bits []bool) string {
	var out = make([]byte, 0, len(bits)/8)
	for i := 0; i+8 <= len(bits); i += 8 {
		var c byte
		for _, bit := range bits[i : i+8] {
			c <<= 1
			if bit {
				c |= 1
			}
		}
		out = append(out, c)
	}

	return string(out)
}

/*------------------------------------------------------------------
 *
 * Name:        EncodeBeaconBits
 *
 * Purpose:     The line bits for a beacon message, as the transmitter
 *		would send them, for testing.
 *
 * Inputs:	text	- Message.  Only 7 bit ASCII.
 *		cfg	- Same as for the decoder.
 *
 *----------------------------------------------------------------*/

func EncodeBeaconBits(text string, cfg BeaconConfig) ([]bool, error) {
	cfg = cfg.withDefaults()

	if _, err := parseBitPattern(cfg.Preamble); err != nil {
		return nil, errors.Wrap(err, "beacon preamble")
	}

	if _, err := parseBitPattern(cfg.End); err != nil {
		return nil, errors.Wrap(err, "beacon end sequence")
	}

	for i := range len(text) {
		if text[i] >= 0x80 {
			return nil, errors.Errorf("beacon text must be ASCII, byte %d is 0x%02x", i, text[i])
		}
	}

	var out []bool
	var put = func(bit bool) {
		if cfg.SpaceIsOne {
			bit = !bit
		}
		out = append(out, bit)
	}

	for _, ch := range cfg.Preamble {
		put(ch == '1')
	}

	for i := range len(text) {
		for shift := 7; shift >= 0; shift-- {
			put(text[i]>>shift&1 == 1)
		}
	}

	for _, ch := range cfg.End {
		put(ch == '1')
	}

	return out, nil
}
