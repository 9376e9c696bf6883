package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Where the audio comes from.
 *
 *		Three kinds of input are here:
 *
 *		* WAV file.
 *
 *		* Raw signed 16 bit little endian samples from a stream,
 *		  e.g. "rtl_fm ... | viperwolf -r 24000 -".
 *
 *		* The same raw format in UDP datagrams, the way gqrx and
 *		  other SDR applications stream audio.
 *
 *		Sound cards are in the soundcard package because they
 *		need cgo.
 *
 *		Samples are always delivered interleaved, normalized to
 *		about -1 .. +1.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// AudioSource supplies interleaved audio samples.
type AudioSource interface {
	SampleRate() int
	Channels() int

	// Read fills buf with up to len(buf) samples.  Returns io.EOF when
	// there will never be more.
	Read(buf []float64) (int, error)

	Close() error
}

/*------------------------------------------------------------------
 *
 * WAV file
 *
 *---------------------------------------------------------------*/

type WAVSource struct {
	file    io.Closer
	decoder *wav.Decoder
	buf     audio.IntBuffer

	sampleRate int
	channels   int
	bitDepth   int
}

// OpenWAVSource opens a WAV file for reading.
func OpenWAVSource(path string) (*WAVSource, error) {
	var f, err = os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	var src, srcErr = NewWAVSource(f)
	if srcErr != nil {
		f.Close()

		return nil, errors.Wrap(srcErr, path)
	}

	src.file = f

	return src, nil
}

// NewWAVSource reads WAV data from r.
func NewWAVSource(r io.ReadSeeker) (*WAVSource, error) {
	var decoder = wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, errors.Wrap(err, "can't find audio data")
	}

	var bitDepth = int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Errorf("unsupported bits per sample %d", bitDepth)
	}

	if decoder.NumChans < 1 {
		return nil, errors.Errorf("bad number of channels %d", decoder.NumChans)
	}

	return &WAVSource{ //nolint:exhaustruct
		decoder: decoder,
		buf: audio.IntBuffer{ //nolint:exhaustruct
			Format:         decoder.Format(),
			SourceBitDepth: bitDepth,
		},
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   bitDepth,
	}, nil
}

func (w *WAVSource) SampleRate() int { return w.sampleRate }
func (w *WAVSource) Channels() int   { return w.channels }
func (w *WAVSource) BitDepth() int   { return w.bitDepth }

func (w *WAVSource) Read(buf []float64) (int, error) {
	if cap(w.buf.Data) < len(buf) {
		w.buf.Data = make([]int, len(buf))
	}
	w.buf.Data = w.buf.Data[:len(buf)]

	var n, err = w.decoder.PCMBuffer(&w.buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}

		return 0, err
	}

	// 8 bit WAV is unsigned, everything else signed.
	var offset, scale = 0.0, 1.0
	switch w.bitDepth {
	case 8:
		offset, scale = 128, 128
	case 16:
		scale = 32768
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	}

	for i := range n {
		buf[i] = (float64(w.buf.Data[i]) - offset) / scale
	}

	return n, nil
}

func (w *WAVSource) Close() error {
	if w.file == nil {
		return nil
	}

	return w.file.Close()
}

/*------------------------------------------------------------------
 *
 * Raw 16 bit samples from a stream
 *
 *---------------------------------------------------------------*/

type RawSource struct {
	r          *bufio.Reader
	closer     io.Closer
	sampleRate int
	channels   int
	raw        []byte
}

// NewRawSource reads signed 16 bit little endian samples.  Closing it
// closes r if r is an io.Closer other than stdin.
func NewRawSource(r io.Reader, sampleRate, channels int) (*RawSource, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, errors.Errorf("raw audio needs a sample rate and channel count, got %d and %d", sampleRate, channels)
	}

	var src = &RawSource{ //nolint:exhaustruct
		r:          bufio.NewReader(r),
		sampleRate: sampleRate,
		channels:   channels,
	}

	if c, ok := r.(io.Closer); ok && r != os.Stdin {
		src.closer = c
	}

	return src, nil
}

func (s *RawSource) SampleRate() int { return s.sampleRate }
func (s *RawSource) Channels() int   { return s.channels }

func (s *RawSource) Read(buf []float64) (int, error) {
	if cap(s.raw) < 2*len(buf) {
		s.raw = make([]byte, 2*len(buf))
	}

	var raw = s.raw[:2*len(buf)]

	// Wait for at least one whole sample but don't insist on a full buffer
	// or a live stream would lag.
	var n, err = io.ReadAtLeast(s.r, raw, 2)
	if n < 2 {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}

		return 0, err
	}

	if n%2 == 1 {
		var b, berr = s.r.ReadByte()
		if berr != nil {
			n--
		} else {
			raw[n] = b
			n++
		}
	}

	return decodeS16LE(raw[:n], buf), nil
}

func (s *RawSource) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}

func decodeS16LE(raw []byte, out []float64) int {
	var n = min(len(raw)/2, len(out))
	for i := range n {
		out[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}

	return n
}

/*------------------------------------------------------------------
 *
 * UDP from an SDR application
 *
 *---------------------------------------------------------------*/

// Max UDP payload gqrx and friends send.
const udpMaxDatagram = 64 * 1024

type UDPSource struct {
	conn       net.PacketConn
	sampleRate int
	channels   int
	raw        []byte
	pending    []byte // Left over from the last datagram.
}

// ListenUDPSource receives raw 16 bit audio on addr, e.g. ":7355".
func ListenUDPSource(addr string, sampleRate, channels int) (*UDPSource, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, errors.Errorf("UDP audio needs a sample rate and channel count, got %d and %d", sampleRate, channels)
	}

	var conn, err = net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for audio on %s", addr)
	}

	return &UDPSource{ //nolint:exhaustruct
		conn:       conn,
		sampleRate: sampleRate,
		channels:   channels,
		raw:        make([]byte, udpMaxDatagram),
	}, nil
}

func (u *UDPSource) SampleRate() int { return u.sampleRate }
func (u *UDPSource) Channels() int   { return u.channels }
func (u *UDPSource) Addr() net.Addr  { return u.conn.LocalAddr() }

func (u *UDPSource) Read(buf []float64) (int, error) {
	for len(u.pending) < 2 {
		var n, _, err = u.conn.ReadFrom(u.raw)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0, io.EOF
			}

			return 0, errors.Wrap(err, "UDP audio")
		}

		u.pending = u.raw[:n]
	}

	var n = decodeS16LE(u.pending, buf)
	u.pending = u.pending[2*n:]
	if len(u.pending) == 1 {
		u.pending = nil // Odd byte in a datagram.  Shouldn't happen.
	}

	return n, nil
}

func (u *UDPSource) Close() error {
	return u.conn.Close()
}
