package viperwolf

/*-------------------------------------------------------------------
 *
 * Purpose:     Test fixture for the demodulators.
 *
 * Inputs:	Takes audio from .WAV files instead of the audio device.
 *
 * Description:	This can be used to test the demodulators under
 *		controlled and reproducible conditions for tweaking.
 *
 *		For example
 *
 *		(1) Download WA8LMF's TNC Test CD image file from
 *			http://wa8lmf.net/TNCtest/index.htm
 *
 *		(2) "Rip" the desired tracks.  Select .WAV file format.
 *
 *		"Track 2" is used for most tests because that is more
 *		realistic for most people using the speaker output.
 *
 *		With stereo audio and -2, the number of frames decoded
 *		will be twice the number expected because the left and
 *		right channels are decoded separately.
 *
 *--------------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Audio frames, one sample per channel, per block.
const atestBlockFrames = 256

type atestOptions struct {
	baud      int
	mark      int
	space     int
	profile   Profile
	decimate  int
	framing   Framing
	checkFCS  bool
	input     int // 0, 1, or 2 for both.
	hex       bool
	quiet     bool
	dcd       bool
	bits      bool
	filters   bool
	beacon    bool
	beaconCfg BeaconConfig
}

// Results of decoding one file.
type atestResult struct {
	frames   int
	beacons  int
	duration time.Duration

	dcdCount   int
	dcdMissing int64
}

func AtestMain() {
	os.Exit(atest(os.Args, os.Stdout, os.Stderr))
}

// Returns the exit code.
func atest(args []string, stdout, stderr io.Writer) int {
	var flags = pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var baud = flags.IntP("bitrate", "B", DefaultBaud, `Bits/second for data.
300 bps defaults to AFSK tones of 1600 & 1800.
1200 bps uses AFSK tones of 1200 & 2200.`)
	var mark = flags.IntP("mark", "m", 0, "Mark frequency.  0 to choose from the bit rate.")
	var space = flags.IntP("space", "s", 0, "Space frequency.  0 to choose from the bit rate.")
	var profileStr = flags.StringP("modem-profile", "P", "A", "Demodulator type, A for amplitude or B for frequency discriminator.")
	var decimate = flags.IntP("decimate", "D", 1, "Divide audio sample rate by n.")
	var framingStr = flags.StringP("framing", "f", "hdlc", "hdlc or simple (no bit stuffing).")
	var checkFCS = flags.Bool("check-fcs", true, "Only count frames with a good FCS.")
	var errorIfLessThan = flags.IntP("error-if-less-than", "L", -1, "Error if less than this number decoded.")
	var errorIfGreaterThan = flags.IntP("error-if-greater-than", "G", -1, "Error if greater than this number decoded.")
	var channel0 = flags.BoolP("channel-0", "0", false, "Use channel 0 (left) of stereo audio.  This is the default.")
	var channel1 = flags.BoolP("channel-1", "1", false, "Use channel 1 (right) of stereo audio.")
	var channel2 = flags.BoolP("channel-2", "2", false, "Use both channels of stereo audio.")
	var hexDisplay = flags.BoolP("hex-display", "h", false, "Print frame contents as hexadecimal bytes.")
	var quiet = flags.BoolP("quiet", "q", false, "Only print the counts.")
	var dcd = flags.Bool("dcd", false, "Show data carrier detect on and off times.")
	var bits = flags.Bool("bits", false, "Print every recovered bit, 0 or 1, one line per file and channel.")
	var filters = flags.Bool("filters", false, "Print the demodulator filters and their frequency response.")
	var beacon = flags.Bool("beacon", false, "Also look for beacon messages.")
	var spaceIsOne = flags.Bool("beacon-space-is-one", true, "Beacon transmitter sends 1 on the space tone.")
	var help = flags.Bool("help", false, "Display help text.")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "%s is a test application which decodes frames from audio recordings.\n", args[0])
		fmt.Fprintf(stderr, "This provides an easy way to test decoding performance much quicker than normal real-time.\n")
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Usage: %s [OPTION]... <WAV FILE>...\n", args[0])
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Examples:\n")
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "$ gen_packets -o test1.wav\n")
		fmt.Fprintf(stderr, "$ atest test1.wav\n")
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "$ gen_packets -B 300 -o test3.wav\n")
		fmt.Fprintf(stderr, "$ atest -B 300 test3.wav\n")
		fmt.Fprintf(stderr, "\n")
		fmt.Fprintf(stderr, "Try different combinations of options to compare decoding performance.\n")
	}

	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	if *help {
		flags.Usage()

		return 1
	}

	var opts = atestOptions{ //nolint:exhaustruct
		baud:     *baud,
		mark:     *mark,
		space:    *space,
		decimate: *decimate,
		checkFCS: *checkFCS,
		hex:      *hexDisplay,
		quiet:    *quiet,
		dcd:      *dcd,
		bits:     *bits,
		filters:  *filters,
		beacon:   *beacon,
		beaconCfg: BeaconConfig{ //nolint:exhaustruct
			SpaceIsOne: *spaceIsOne,
		},
	}

	var err error
	if opts.profile, err = ParseProfile(*profileStr); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)

		return 1
	}

	if opts.framing, err = ParseFraming(*framingStr); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)

		return 1
	}

	if opts.decimate < 1 || opts.decimate > 8 {
		fmt.Fprintf(stderr, "Decimate should be between 1 and 8 inclusive, not %d.\n", opts.decimate)

		return 1
	}

	var channelFlagCount int
	for _, b := range []bool{*channel0, *channel1, *channel2} {
		if b {
			channelFlagCount++
		}
	}
	if channelFlagCount > 1 {
		fmt.Fprintf(stderr, "Only one of left/right/both channels can be selected.\n")

		return 1
	}
	switch {
	case *channel1:
		opts.input = 1
	case *channel2:
		opts.input = 2
	}

	/* We have similar logic in gen_packets.go that needs to be kept in sync. */
	var defMark, defSpace = tonesForBaud(opts.baud)
	if opts.mark == 0 {
		opts.mark = defMark
	}
	if opts.space == 0 {
		opts.space = defSpace
	}

	if len(flags.Args()) == 0 {
		fmt.Fprintf(stderr, "Specify .WAV file name on command line.\n\n")
		flags.Usage()

		return 1
	}

	var logger = NewLogger(stderr, "warn")
	var out = bufio.NewWriter(stdout)
	defer out.Flush()

	var startTime = time.Now()
	var totalFiletime time.Duration
	var total = 0

	for _, wavFileName := range flags.Args() {
		var res, err = atestFile(wavFileName, opts, out, logger)
		if err != nil {
			out.Flush()
			fmt.Fprintf(stderr, "%s\n", err)

			return 1
		}

		fmt.Fprintf(out, "%d from %s\n", res.frames, wavFileName)
		if opts.beacon {
			fmt.Fprintf(out, "%d beacon messages from %s\n", res.beacons, wavFileName)
		}
		if opts.dcd {
			fmt.Fprintf(out, "DCD count = %d\n", res.dcdCount)
			fmt.Fprintf(out, "DCD missing errors = %d\n", res.dcdMissing)
		}

		total += res.frames
		totalFiletime += res.duration
	}

	var elapsed = time.Since(startTime)

	fmt.Fprintf(out, "%d packets decoded in %.3f seconds.  %.1f x realtime\n",
		total, elapsed.Seconds(), totalFiletime.Seconds()/max(elapsed.Seconds(), 1e-9))

	if *errorIfLessThan != -1 && total < *errorIfLessThan {
		fmt.Fprintf(out, "\n * * * TEST FAILED: number decoded is less than %d * * * \n", *errorIfLessThan)

		return 1
	}
	if *errorIfGreaterThan != -1 && total > *errorIfGreaterThan {
		fmt.Fprintf(out, "\n * * * TEST FAILED: number decoded is greater than %d * * * \n", *errorIfGreaterThan)

		return 1
	}

	return 0
}

// Usual tones for a data rate.
func tonesForBaud(baud int) (int, int) {
	if baud < 600 { // e.g. HF SSB packet
		return 1600, 1800
	}

	return DefaultMarkFreq, DefaultSpaceFreq
}

/*-------------------------------------------------------------------
 *
 * Name:        atestFile
 *
 * Purpose:     Decode everything in one file.
 *
 * Description:	The modem is set up again for each file because they
 *		could have different sample rates.
 *
 *--------------------------------------------------------------------*/

func atestFile(fname string, opts atestOptions, out io.Writer, logger *log.Logger) (atestResult, error) {
	var res atestResult

	var src, err = OpenWAVSource(fname)
	if err != nil {
		return res, err
	}
	defer src.Close()

	var numInputs = src.Channels()
	if opts.input >= numInputs && !(opts.input == 2 && numInputs == 2) {
		return res, errors.Errorf("%s has only %d audio channel(s)", fname, numInputs)
	}

	fmt.Fprintf(out, "%d samples per second.  %d bits per sample.  %d audio channels.\n",
		src.SampleRate(), src.BitDepth(), numInputs)

	var configs []ChannelConfig
	for input := range numInputs {
		if opts.input != 2 && input != opts.input {
			continue
		}
		configs = append(configs, ChannelConfig{ //nolint:exhaustruct
			Number:     input,
			SampleRate: src.SampleRate(),
			Baud:       opts.baud,
			MarkFreq:   opts.mark,
			SpaceFreq:  opts.space,
			Profile:    opts.profile,
			Decimate:   opts.decimate,
			Framing:    opts.framing,
			CheckFCS:   opts.checkFCS,
			Input:      input,
		})
	}

	var modem, modemErr = NewMultiModem(numInputs, configs, 0, logger, nil)
	if modemErr != nil {
		return res, modemErr
	}

	if opts.filters {
		for _, c := range modem.Channels() {
			printFilters(out, c.Number(), c.Demodulator())
		}
	}

	// Sample number from the file, for time stamps relative to the beginning.
	var sampleNumber = 0
	var sampleTime = func() string {
		var sec = float64(sampleNumber) / float64(src.SampleRate())
		var minutes = int(sec / 60.)
		sec -= float64(minutes * 60)

		return fmt.Sprintf("%d:%06.3f", minutes, sec)
	}

	var beacons = make(map[int]*BeaconDecoder)
	var beaconBits = make(map[int]*BitQueue)
	var bitLines = make(map[int]*[]byte)

	// The channel callbacks below run on the channel goroutines.
	var mu sync.Mutex
	var dcdStart = make(map[int]string)

	for _, c := range modem.Channels() {
		if opts.beacon {
			var dec, err = NewBeaconDecoder(c.Number(), opts.baud, opts.beaconCfg)
			if err != nil {
				return res, err
			}
			beacons[c.Number()] = dec
			beaconBits[c.Number()] = NewBitQueue(DefaultBitQueueSize)
			c.AttachBitQueue(beaconBits[c.Number()])
		}

		if opts.bits {
			var line = new([]byte)
			bitLines[c.Number()] = line
			c.OnBit(func(bit bool) {
				var ch = byte('0')
				if bit {
					ch = '1'
				}
				*line = append(*line, ch)
			})
		}

		// Every frame should arrive while the carrier detect is on.
		c.OnFrame(func(ReceivedFrame) {
			if !c.DataDetect() {
				atomic.AddInt64(&res.dcdMissing, 1)
			}
		})

		if opts.dcd {
			// sampleNumber only changes between blocks.
			c.OnDCDChange(func(on bool) {
				mu.Lock()
				defer mu.Unlock()

				if on {
					res.dcdCount++
					dcdStart[c.Number()] = sampleTime()
				} else {
					fmt.Fprintf(out, "DCD[%d]  %s - %s\n", c.Number(), dcdStart[c.Number()], sampleTime())
				}
			})
		}
	}

	var buf = make([]float64, atestBlockFrames*numInputs)

	for {
		var n, readErr = src.Read(buf)
		if n > 0 {
			modem.ProcessInterleaved(buf[:n])
			sampleNumber += n / numInputs
		}

		// Frames are time stamped with the end of the block they finished in.
		for {
			var rf, ok = modem.Frames().TryGet()
			if !ok {
				break
			}
			res.frames++
			atestPrintFrame(out, res.frames, sampleTime(), rf, opts)
		}

		for _, c := range modem.Channels() {
			var dec = beacons[c.Number()]
			if dec == nil {
				continue
			}
			for {
				var bit, ok = beaconBits[c.Number()].TryGet()
				if !ok {
					break
				}
				if msg, found := dec.OnBit(bit); found {
					res.beacons++
					if !opts.quiet {
						fmt.Fprintf(out, "\nBEACON %s [%d] %s\n", sampleTime(), msg.Channel, msg.Text)
					}
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return res, readErr
		}
	}

	res.duration = time.Duration(float64(sampleNumber) / float64(src.SampleRate()) * float64(time.Second))

	fmt.Fprintf(out, "Duration = %.1f seconds.\n", res.duration.Seconds())

	if opts.bits {
		for _, c := range modem.Channels() {
			fmt.Fprintf(out, "bits[%d] %s\n", c.Number(), *bitLines[c.Number()])
		}
	}

	fmt.Fprintf(out, "\n\n")

	return res, nil
}

func atestPrintFrame(out io.Writer, count int, when string, rf ReceivedFrame, opts atestOptions) {
	if opts.quiet {
		return
	}

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "DECODED[%d] %s audio level = %s   %+.1f%%\n", count, when, rf.Level, rf.SpeedError)
	fmt.Fprintf(out, "[%d] %s\n", rf.Channel, SafeText(rf.Data))

	if opts.hex {
		fmt.Fprintf(out, "------\n")
		fmt.Fprint(out, HexDump(rf.Data))
		fmt.Fprintf(out, "------\n")
	}
}

// Filter taps and the response at the interesting frequencies.
func printFilters(out io.Writer, channel int, D *DemodulatorState) {
	var rate = float64(D.SampleRate())

	var show = func(name string, filter []float64) {
		if len(filter) == 0 {
			fmt.Fprintf(out, "[%d] %s: none\n", channel, name)

			return
		}

		fmt.Fprintf(out, "[%d] %s: %d taps\n", channel, name, len(filter))

		var points = FilterResponse(filter, D.SampleRate(), 256)
		var step = max(len(points)/32, 1)
		for i := 0; i < len(points); i += step {
			fmt.Fprintf(out, "    %7.0f Hz  %6.1f dB\n", points[i].Freq, points[i].GainDB)
		}
	}

	show("prefilter", D.PreFilter())
	show("lowpass", D.LowpassFilter())

	fmt.Fprintf(out, "[%d] lowpass gain at baud/2 = %.3f\n", channel, GainAt(D.LowpassFilter(), float64(D.Baud())/2/rate))
}
