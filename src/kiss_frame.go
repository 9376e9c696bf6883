package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Common code used by serial port, pseudo terminal, and
 *		network versions of the KISS protocol.
 *
 * Description: The KISS TNC protocol is described in http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the frame contains:
 *
 *			* radio channel in upper nybble.
 *			* command in lower nybble.
 *
 *		We only receive so the only thing we normally send to the
 *		client application is
 *
 *			_0	Data Frame	Received frame in raw format.
 *
 *		From the client we accept "Set Hardware" queries.  Anything
 *		else, including frames to transmit, is ignored.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const (
	KissCmdDataFrame   = 0
	KissCmdTxDelay     = 1
	KissCmdPersistence = 2
	KissCmdSlotTime    = 3
	KissCmdTxTail      = 4
	KissCmdFullDuplex  = 5
	KissCmdSetHardware = 6
	KissCmdEndKiss     = 15
)

/*
 * Special characters used by SLIP protocol.
 */
const (
	FEND  = 0xC0
	FESC  = 0xDB
	TFEND = 0xDC
	TFESC = 0xDD
)

const maxKissLen = 2048 /* KISS calls for at least 1024. */

const maxNoiseLen = 100

// FrameSink is something that wants every received frame.
// SendFrame must not block for long.
type FrameSink interface {
	SendFrame(rf ReceivedFrame) error
}

/*-------------------------------------------------------------------
 *
 * Name:        KissEncapsulate
 *
 * Purpose:     Convert a frame to KISS format.
 *
 * Inputs:	in	- Frame including the "type indicator" byte.
 *
 * Returns:	FEND, data with FEND and FESC replaced, FEND.
 *		Absolute max length will be twice input plus 2.
 *
 *-----------------------------------------------------------------*/

func KissEncapsulate(in []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(in) + 2)

	buf.WriteByte(FEND)

	for _, b := range in {
		switch b {
		case FEND:
			buf.WriteByte(FESC)
			buf.WriteByte(TFEND)
		case FESC:
			buf.WriteByte(FESC)
			buf.WriteByte(TFESC)
		default:
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(FEND)

	return buf.Bytes()
}

// KissDataFrame builds the complete KISS message for a received frame.
func KissDataFrame(channel int, data []byte) []byte {
	var msg = make([]byte, 0, len(data)+1)
	msg = append(msg, byte(channel<<4)|KissCmdDataFrame)
	msg = append(msg, data...)

	return KissEncapsulate(msg)
}

/*-------------------------------------------------------------------
 *
 * Name:        KissUnwrap
 *
 * Purpose:     Extract original data from a KISS frame.
 *
 * Inputs:	in	- The KISS encoded representation.
 *				FEND		- Magic frame separator, optional.
 *				data		- with escapes.
 *				FEND		- Magic frame separator.
 *
 * Returns:	Data without the escapes or FEND.  First byte is the
 *		"type indicator" with type and channel.  Note that this
 *		is "binary" data and can contain nul (0x00) values.
 *
 *-----------------------------------------------------------------*/

func KissUnwrap(in []byte) ([]byte, error) {
	if len(in) < 2 {
		/* Need at least the "type indicator" byte and FEND. */
		return nil, errors.New("KISS message less than minimum length")
	}

	if in[len(in)-1] != FEND {
		return nil, errors.New("KISS frame should end with FEND")
	}
	in = in[:len(in)-1]

	if len(in) > 0 && in[0] == FEND {
		in = in[1:] // Skip over optional leading FEND
	}

	var escaped = false
	var out = make([]byte, 0, len(in))
	for _, b := range in {
		if b == FEND {
			return nil, errors.New("KISS frame should not have FEND in the middle")
		}

		switch {
		case escaped:
			switch b {
			case TFESC:
				out = append(out, FESC)
			case TFEND:
				out = append(out, FEND)
			default:
				return nil, errors.Errorf("KISS protocol error, found 0x%02x after FESC", b)
			}
			escaped = false
		case b == FESC:
			escaped = true
		default:
			out = append(out, b)
		}
	}

	if escaped {
		return nil, errors.New("KISS frame ends with FESC")
	}

	return out, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        KissDecoder
 *
 * Purpose:     Collect bytes from a client into KISS messages.
 *
 * Description:	Anything before the first FEND is noise.  Some applications
 *		send "restart" or similar text to get a TNC into KISS mode.
 *
 *-----------------------------------------------------------------*/

type kissState int

const (
	kissSearching  kissState = iota /* Looking for FEND to start KISS frame. */
	kissCollecting                  /* In process of collecting KISS frame. */
)

type KissDecoder struct {
	state kissState
	msg   []byte // Leading FEND and escapes included.
	noise []byte
}

func NewKissDecoder() *KissDecoder {
	return &KissDecoder{ //nolint:exhaustruct
		msg:   make([]byte, 0, maxKissLen),
		noise: make([]byte, 0, maxNoiseLen),
	}
}

// KissEvent is what a byte from the client completed, if anything.
type KissEvent struct {
	Message []byte // Unwrapped message, type indicator first.
	Noise   []byte // A line of text that wasn't KISS.
	Err     error
}

// Feed takes one byte.  It returns true when there is something to act on.
func (k *KissDecoder) Feed(ch byte) (KissEvent, bool) {
	switch k.state {
	case kissSearching:
		if ch == FEND {
			k.noise = k.noise[:0]
			k.msg = append(k.msg[:0], ch)
			k.state = kissCollecting

			return KissEvent{}, false
		}

		/* Noise to be rejected. */
		if len(k.noise) < maxNoiseLen {
			k.noise = append(k.noise, ch)
		}

		if ch == '\r' {
			var ev = KissEvent{Noise: append([]byte(nil), k.noise...)} //nolint:exhaustruct
			k.noise = k.noise[:0]

			return ev, true
		}

		return KissEvent{}, false

	case kissCollecting:
		if ch == FEND {
			if len(k.msg) == 1 {
				/* Empty frame.  Just go on collecting. */
				return KissEvent{}, false
			}

			k.msg = append(k.msg, ch)
			k.state = kissSearching

			var data, err = KissUnwrap(k.msg)
			k.msg = k.msg[:0]

			return KissEvent{Message: data, Err: err}, true //nolint:exhaustruct
		}

		if len(k.msg) < maxKissLen {
			k.msg = append(k.msg, ch)

			return KissEvent{}, false
		}

		k.state = kissSearching
		k.msg = k.msg[:0]

		return KissEvent{Err: errors.New("KISS message exceeded maximum length")}, true //nolint:exhaustruct
	}

	return KissEvent{}, false
}

/*-------------------------------------------------------------------
 *
 * Name:        kissHandleEvent
 *
 * Purpose:     Act on something from a KISS client.
 *
 * Inputs:	ev	- From KissDecoder.
 *		reply	- Send raw bytes back to the same client.
 *
 *-----------------------------------------------------------------*/

func kissHandleEvent(ev KissEvent, reply func([]byte), logger *log.Logger) {
	if ev.Err != nil {
		logger.Warn("KISS", "err", ev.Err)

		return
	}

	if ev.Noise != nil {
		logger.Debug("rejected noise from KISS client", "text", fmt.Sprintf("%q", ev.Noise))

		/* Try to appease client app by sending something back. */
		var text = string(bytes.ToLower(ev.Noise))
		if text == "restart\r" || text == "reset\r" {
			reply([]byte{FEND, FEND})
		} else {
			reply([]byte("\r\ncmd:"))
		}

		return
	}

	if len(ev.Message) == 0 {
		return
	}

	var channel = int(ev.Message[0] >> 4)
	var cmd = ev.Message[0] & 0xf

	switch cmd {
	case KissCmdDataFrame:
		logger.Debug("receive only, frame from KISS client discarded", "chan", channel, "len", len(ev.Message)-1)
	case KissCmdSetHardware:
		if response, ok := kissSetHardware(ev.Message[1:], logger); ok {
			var msg = append([]byte{byte(channel<<4) | KissCmdSetHardware}, response...)
			reply(KissEncapsulate(msg))
		}
	case KissCmdEndKiss:
		logger.Debug("KISS client asked to leave KISS mode, ignored")
	default:
		logger.Debug("KISS command ignored", "chan", channel, "cmd", cmd)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	kissSetHardware
 *
 * Purpose:	Process the "set hardware" command.
 *
 * Queries:	(Client to TNC, no parameters, generate a response.)
 *
 *			Query		Response
 *			-----		--------
 *
 *			TNC:		TNC:VIPERWOLF 9.9
 *
 *			TXBUF:		TXBUF:0		We never transmit.
 *
 *--------------------------------------------------------------------*/

func kissSetHardware(command []byte, logger *log.Logger) ([]byte, bool) {
	var cmd, value, found = bytes.Cut(command, []byte{':'})
	if !found {
		logger.Warn("KISS Set Hardware expected the form COMMAND:[parameter[,parameter...]]", "command", string(command))

		return nil, false
	}

	if len(value) > 0 {
		logger.Warn("KISS Set Hardware did not expect a parameter", "command", string(cmd))
	}

	switch string(cmd) {
	case "TNC":
		return []byte("TNC:VIPERWOLF " + Version()), true
	case "TXBUF":
		return []byte("TXBUF:0"), true
	}

	logger.Warn("KISS Set Hardware unrecognized command", "command", string(cmd))

	return nil, false
}
