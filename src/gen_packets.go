package viperwolf

/*------------------------------------------------------------------
 *
 * Name:	gen_packets
 *
 * Purpose:	Test program for generating AFSK frames.
 *
 * Description:	Given messages, generate audio with the frames so we
 *		can test the demodulators with something known.
 *
 *		The output is a .WAV file.
 *
 *		Each line from the input file, or stdin for "-", is
 *		sent as one frame.  Without any input, some built in
 *		frames are sent.  With --beacon the text is sent as a
 *		simple beacon instead, without HDLC.
 *
 *		Example, to test the receive side with noise:
 *
 *			gen_packets -n 100 -o noisy.wav
 *			atest -L 63 -G 71 noisy.wav
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	DefaultGenSampleRate = 44100

	minSampleRate = 8000
	maxSampleRate = 192000
)

const genPacketsRandMax = 0x7fffffff

// Tests that decode noisy frames expect a count in a narrow range, which
// depends on exactly this noise.  Don't replace it with math/rand.
type genPacketsRand struct {
	seed int32
}

func (r *genPacketsRand) next() int32 {
	r.seed = int32((uint32(r.seed)*1103515245 + 12345) & genPacketsRandMax)

	return r.seed
}

// -1 .. +1
func (r *genPacketsRand) unit() float64 {
	return (float64(r.next()) - genPacketsRandMax/2.0) / (genPacketsRandMax / 2.0)
}

/*------------------------------------------------------------------
 *
 * Name:	WAVWriter
 *
 * Purpose:	Collect audio samples and write them to a .WAV file.
 *
 *------------------------------------------------------------------*/

type WAVWriter struct {
	file     *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	bitDepth int
	channels int

	noiseLevel float64
	rand       *genPacketsRand
}

func CreateWAV(fname string, sampleRate, bitDepth, channels int) (*WAVWriter, error) {
	if bitDepth != 8 && bitDepth != 16 {
		return nil, errors.Errorf("%d bits per sample, must be 8 or 16", bitDepth)
	}

	var f, err = os.Create(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open %s for write", fname)
	}

	return &WAVWriter{ //nolint:exhaustruct
		file:     f,
		enc:      wav.NewEncoder(f, sampleRate, bitDepth, channels, 1),
		bitDepth: bitDepth,
		channels: channels,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           make([]int, 0, 4096),
			SourceBitDepth: bitDepth,
		},
		rand: &genPacketsRand{seed: 1},
	}, nil
}

// SetNoise adds random noise of about this amplitude to later samples.
func (w *WAVWriter) SetNoise(level float64) {
	w.noiseLevel = level
}

// Put adds one sample, -1 .. +1, to every audio channel.
func (w *WAVWriter) Put(sample float64) {
	for range w.channels {
		var s = sample
		if w.noiseLevel > 0 {
			s += 5 * w.rand.unit() * w.noiseLevel
		}
		s = math.Max(-1, math.Min(1, s))

		var v int
		if w.bitDepth == 8 {
			v = int(math.Round(s*127)) + 128
		} else {
			v = int(math.Round(s * 32767))
		}

		w.buf.Data = append(w.buf.Data, v)
	}

	if len(w.buf.Data) >= cap(w.buf.Data)-w.channels {
		w.flush() //nolint:errcheck
	}
}

func (w *WAVWriter) flush() error {
	if len(w.buf.Data) == 0 {
		return nil
	}

	var err = w.enc.Write(w.buf)
	w.buf.Data = w.buf.Data[:0]

	return errors.Wrap(err, "write audio")
}

// Close writes the final header sizes.
func (w *WAVWriter) Close() error {
	var err = w.flush()

	if encErr := w.enc.Close(); err == nil {
		err = errors.Wrap(encErr, "finish WAV file")
	}

	if closeErr := w.file.Close(); err == nil {
		err = errors.Wrap(closeErr, "close WAV file")
	}

	return err
}

type genPacketsOptions struct {
	baud       int
	sampleRate int
	framing    Framing
	fcs        bool
	beacon     bool
	beaconCfg  BeaconConfig
}

// genFrame sends one frame, or beacon, after some quiet time.
func genFrame(w *WAVWriter, tones *ToneGenerator, text string, opts genPacketsOptions) error {
	// Provide enough time for the DCD to drop.
	// Then throw in a random amount of time so that receiving
	// DPLL will need to adjust to a new phase.
	var samplesPerSymbol = opts.sampleRate / opts.baud
	var n = int(float64(samplesPerSymbol) * (32 + float64(w.rand.next())/float64(genPacketsRandMax)))

	for range n {
		w.Put(0)
	}

	if opts.beacon {
		var bits, err = EncodeBeaconBits(text, opts.beaconCfg)
		if err != nil {
			return err
		}

		for _, b := range bits {
			tones.PutBit(b)
		}

		return nil
	}

	var enc = NewHDLCEncoder(opts.framing == FramingHDLC, tones.PutBit)
	enc.SendFlags(32)
	enc.SendFrame([]byte(text), opts.fcs)
	enc.SendFlags(2)

	return nil
}

func GenPacketsMain() {
	os.Exit(genPackets(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func genPackets(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var flags = pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var baud = flags.IntP("bitrate", "B", DefaultBaud, `Bits / second for data.
300 bps defaults to AFSK tones of 1600 & 1800.
1200 bps uses AFSK tones of 1200 & 2200.`)
	var markFrequency = flags.IntP("mark", "m", 0, "Mark frequency.")
	var spaceFrequency = flags.IntP("space", "s", 0, "Space frequency.")
	var noisyPacketCount = flags.IntP("noisy-packet-count", "n", 0, "Generate specified number of frames with increasing noise.")
	var packetCount = flags.IntP("packet-count", "N", 0, "Generate specified number of frames.")
	var amplitude = flags.IntP("amplitude", "a", 50, "Signal amplitude in range of 0 - 200%.") // 100% is actually half of the digital signal range so we have some headroom for adding noise, etc.
	var audioSampleRate = flags.IntP("audio-sample-rate", "r", DefaultGenSampleRate, "Audio sample rate.")
	var eightBitsPerSample = flags.BoolP("eight-bps", "8", false, "8 bit audio rather than 16.")
	var twoSoundChannels = flags.BoolP("two-sound-channels", "2", false, "2 channels (stereo) audio rather than one channel.")
	var outputFile = flags.StringP("output-file", "o", "", "Send output to .wav file.")
	var framingStr = flags.StringP("framing", "f", "hdlc", "hdlc or simple (no bit stuffing).")
	var noFCS = flags.Bool("no-fcs", false, "Don't append a frame check sequence.")
	var beacon = flags.String("beacon", "", "Send this text as a beacon message rather than frames.")
	var callsign = flags.String("callsign", "", "Append this to the beacon text.")
	var spaceIsOne = flags.Bool("beacon-space-is-one", true, "Send beacon 1 bits on the space tone.")
	var help = flags.BoolP("help", "h", false, "Display help text.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [OPTION]... [FILE]\n", args[0])
		fmt.Fprintf(stderr, "Generate audio file for AFSK frames.\n")
		fmt.Fprintf(stderr, "Each line of FILE, or stdin for -, is one frame.\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	if *help {
		flags.Usage()

		return 1
	}

	if *amplitude < 0 || *amplitude > 200 {
		fmt.Fprintf(stderr, "Amplitude must be in range of 0 to 200, not %d.\n", *amplitude)

		return 1
	}

	if *noisyPacketCount > 0 && *packetCount > 0 {
		fmt.Fprintf(stderr, "Cannot choose both noisy packets (-n) and noiseless (-N) packets - pick at most one.\n")

		return 1
	}

	if *audioSampleRate < minSampleRate || *audioSampleRate > maxSampleRate {
		fmt.Fprintf(stderr, "Use a more reasonable audio sample rate in range of %d - %d, not %d.\n",
			minSampleRate, maxSampleRate, *audioSampleRate)

		return 1
	}

	var framing, framingErr = ParseFraming(*framingStr)
	if framingErr != nil {
		fmt.Fprintf(stderr, "%s\n", framingErr)

		return 1
	}

	if *outputFile == "" {
		fmt.Fprintf(stderr, "ERROR: The -o output file option must be specified.\n")
		flags.Usage()

		return 1
	}

	var mark, space = tonesForBaud(*baud)
	if *markFrequency != 0 {
		mark = *markFrequency
	}
	if *spaceFrequency != 0 {
		space = *spaceFrequency
	}

	var bitDepth = 16
	if *eightBitsPerSample {
		bitDepth = 8
	}

	var channels = 1
	if *twoSoundChannels {
		channels = 2
	}

	var opts = genPacketsOptions{
		baud:       *baud,
		sampleRate: *audioSampleRate,
		framing:    framing,
		fcs:        !*noFCS,
		beacon:     *beacon != "",
		beaconCfg:  BeaconConfig{SpaceIsOne: *spaceIsOne}, //nolint:exhaustruct
	}

	var w, err = CreateWAV(*outputFile, opts.sampleRate, bitDepth, channels)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)

		return 1
	}

	// 100% amplitude is half the digital range.
	var tones, tonesErr = NewToneGenerator(opts.sampleRate, opts.baud, mark, space, float64(*amplitude)/200, w.Put)
	if tonesErr != nil {
		w.Close()
		fmt.Fprintf(stderr, "%s\n", tonesErr)

		return 1
	}

	var send = func(text string) bool {
		if err := genFrame(w, tones, text, opts); err != nil {
			fmt.Fprintf(stderr, "%q: %s\n", text, err)

			return false
		}

		return true
	}

	var ok = true

	switch {
	case opts.beacon:
		var text = *beacon
		if *callsign != "" {
			text += " " + *callsign
		}
		ok = send(text)
		tones.PutQuiet(opts.beaconCfg.withDefaults().Timeout / 10)

	case len(flags.Args()) > 0:
		/*
		 * Get user frame(s) from file or stdin if specified.
		 * "-n" option is ignored in this case.
		 */
		if len(flags.Args()) > 1 {
			fmt.Fprintf(stderr, "Warning: File(s) beyond the first are ignored.\n")
		}

		var input = stdin
		if arg := flags.Args()[0]; arg != "-" {
			var f, openErr = os.Open(arg) //nolint:gosec // We expect to read from a user-supplied file from CLI
			if openErr != nil {
				w.Close()
				fmt.Fprintf(stderr, "Can't open %s for read: %s\n", arg, openErr)

				return 1
			}
			defer f.Close()
			input = f
		}

		var scanner = bufio.NewScanner(input)
		for scanner.Scan() && ok {
			fmt.Fprintf(stdout, "%s\n", scanner.Text())
			ok = send(scanner.Text())
		}

	case *noisyPacketCount > 0 || *packetCount > 0:
		/*
		 * Generate frames with increasing noise level.
		 * Would probably be better to record real noise from a radio but
		 * for now just use a random number generator.
		 */
		var count = max(*noisyPacketCount, *packetCount)
		for i := 1; i <= count && ok; i++ {
			if *noisyPacketCount > 0 {
				var perAmp = .0023 // About 2/3 should be decoded properly.
				if opts.baud < 600 {
					perAmp = .0048
				}
				w.SetNoise(float64(*amplitude) * perAmp * (float64(i) / float64(count)))
			}

			ok = send(fmt.Sprintf("WB2OSZ-15>TEST:,The quick brown fox jumps over the lazy dog!  %04d of %04d", i, count))
		}

	default:
		fmt.Fprintf(stdout, "built in message...\n")
		for i := 1; i <= 4 && ok; i++ {
			ok = send(fmt.Sprintf("WB2OSZ-15>TEST:,The quick brown fox jumps over the lazy dog!  %d of 4", i))
		}
	}

	if !opts.beacon {
		// Time for the receiver's DCD to drop after the last one.
		tones.PutQuiet(100 * time.Millisecond)
	}

	if err := w.Close(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)

		return 1
	}

	if !ok {
		return 1
	}

	return 0
}
