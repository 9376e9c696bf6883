// Package viperwolf is a soundcard AFSK modem: audio in, frames out.
package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the receive-only AFSK modem:
 *
 *			AFSK demodulators using the "sound card",
 *			an SDR audio stream, or a recording.
 *			HDLC deframing.
 *			Simple beacon message decoding.
 *			KISS TNC emulator, over TCP, pseudo terminal,
 *			and serial port.
 *			Log of received frames.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/doismellburning/viperwolf/src/soundcard"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

/*-------------------------------------------------------------------
 *
 * Name:        ViperwolfMain
 *
 * Purpose:     Main program for the virtual TNC.
 *
 * Inputs:	Command line arguments.
 *		See usage message for details.
 *
 * Outputs:	Received frames are shown on stderr, along with
 *		everything else that is logged.
 *
 *		A socket and pseudo terminal can be created for
 *		for communication with other applications.
 *
 *--------------------------------------------------------------------*/

func ViperwolfMain() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.  Searched for if not given.")
	var enablePseudoTerminal = pflag.BoolP("enable-ptty", "p", false, "Enable pseudo terminal for KISS protocol.")
	var bitrate = pflag.IntP("bitrate", "B", 0, `Bits/second for data on channel 0.
300 bps defaults to AFSK tones of 1600 & 1800.
1200 bps uses AFSK tones of 1200 & 2200.`)
	var modemProfile = pflag.StringP("modem-profile", "P", "", "Demodulator for channel 0, A for amplitude or B for frequency discriminator.")
	var decimate = pflag.IntP("decimate", "D", 0, "Divide audio sample rate by n for channel 0.")
	var audioSampleRate = pflag.IntP("audio-sample-rate", "r", 0, "Audio sample rate, per sec.")
	var audioChannels = pflag.IntP("audio-channels", "n", 0, "Number of audio channels, 1 or 2.")
	var kissPort = pflag.IntP("kiss-port", "k", -1, "KISS TCP port.  0 to disable.")
	var logDir = pflag.StringP("log-dir", "l", "", "Directory name for log files.")
	var logFile = pflag.StringP("log-file", "L", "", "File name for logging.")
	var timestampFormat = pflag.StringP("timestamp-format", "T", "", "'strftime' format for the time stamp in the log file.")
	var logLevel = pflag.StringP("log-level", "d", "", "Logging level: debug, info, warn, error.")
	var metricsListen = pflag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100.")
	var beacon = pflag.Bool("beacon", false, "Also look for simple beacon messages.")
	var hexDisplay = pflag.BoolP("hex-display", "x", false, "Show received frames in hexadecimal.")
	var quiet = pflag.BoolP("quiet", "q", false, "Don't show received frames.")
	var listDevices = pflag.Bool("list-devices", false, "List sound card input devices and exit.")
	var version = pflag.BoolP("version", "v", false, "Print version and exit.")

	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - a software 'soundcard' AFSK modem and KISS TNC.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: viperwolf [options] [ - | stdin | UDP:nnnn | file.wav | device ]\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "After any options, there can be a single command line argument for the source of\n")
		fmt.Fprintf(os.Stderr, "received audio.  This can override the audio input specified in the configuration file.\n")
	}

	// !!! PARSE !!!
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if *version {
		printVersion(false)
		os.Exit(0)
	}

	if *listDevices {
		var devices, err = soundcard.Devices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}

		for _, d := range devices {
			fmt.Println(d)
		}

		os.Exit(0)
	}

	var cfg, err = LoadConfig(*configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	/*
	 * Possibly override some by command line options.
	 */

	if len(pflag.Args()) > 0 {
		if len(pflag.Args()) > 1 {
			fmt.Fprintf(os.Stderr, "Warning: File(s) beyond the first are ignored.\n")
		}

		applyAudioArg(&cfg.Audio, pflag.Arg(0))
	}

	if *audioSampleRate != 0 {
		cfg.Audio.SampleRate = *audioSampleRate
	}

	if *audioChannels != 0 {
		cfg.Audio.Channels = *audioChannels
	}

	var ch0 = &cfg.Channels[0]

	if *bitrate != 0 {
		ch0.Baud = *bitrate
		ch0.Mark, ch0.Space = tonesForBaud(*bitrate)
		if *bitrate < 600 {
			ch0.Decimate = 3 // Reduce CPU load.
		}
	}

	if *modemProfile != "" {
		if ch0.Profile, err = ParseProfile(*modemProfile); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
	}

	if *decimate != 0 {
		ch0.Decimate = *decimate
	}

	if *kissPort >= 0 {
		cfg.KISS.TCPPort = *kissPort
	}

	if *logDir != "" && *logFile != "" {
		fmt.Fprintf(os.Stderr, "Logging options -l and -L can't be used together.  Pick one or the other.\n")
		os.Exit(1)
	}

	if *logDir != "" {
		cfg.Log.Dir, cfg.Log.File = *logDir, ""
	}

	if *logFile != "" {
		cfg.Log.Dir, cfg.Log.File = "", *logFile
	}

	if *timestampFormat != "" {
		cfg.Log.TimestampFormat = *timestampFormat
	}

	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}

	if *enablePseudoTerminal {
		cfg.KISS.PTY = true
	}

	if *beacon {
		cfg.Beacon.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var logger = NewLogger(os.Stderr, cfg.Log.Level)
	logger.Info(VersionString())

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var showFrames = !*quiet
	if err := runViperwolf(ctx, cfg, showFrames, *hexDisplay, logger); err != nil {
		logger.Error("terminating", "err", err)
		stop()
		os.Exit(1)
	}
}

// The single command line argument for the audio source.
func applyAudioArg(a *AudioConfig, arg string) {
	switch {
	case arg == "-" || arg == "stdin":
		a.Source = "stdin"
	case strings.HasPrefix(strings.ToUpper(arg), "UDP:"):
		a.Source = "udp"
		a.UDP = ":" + arg[4:]
	case strings.HasSuffix(strings.ToLower(arg), ".wav"):
		a.Source = "wav"
		a.File = arg
	default:
		a.Source = "soundcard"
		a.Device = arg
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        openAudio
 *
 * Purpose:     Open the audio source
 *			- soundcard
 *			- stdin
 *			- UDP
 *			- WAV file
 *
 *--------------------------------------------------------------------*/

func openAudio(a AudioConfig) (AudioSource, error) {
	switch a.Source {
	case "stdin":
		return NewRawSource(os.Stdin, a.SampleRate, a.Channels)
	case "udp":
		return ListenUDPSource(a.UDP, a.SampleRate, a.Channels)
	case "wav":
		var src, err = OpenWAVSource(a.File)
		if err != nil {
			return nil, err
		}

		if src.Channels() != a.Channels {
			src.Close()

			return nil, errors.Errorf("%s has %d audio channels but %d are configured", a.File, src.Channels(), a.Channels)
		}

		return src, nil
	case "soundcard":
		return soundcard.Open(a.Device, a.SampleRate, a.Channels)
	}

	return nil, errors.Errorf("unknown audio source %q", a.Source)
}

/*-------------------------------------------------------------------
 *
 * Name:        runViperwolf
 *
 * Purpose:     Set everything up and receive until the audio ends or
 *		ctx is done.
 *
 *--------------------------------------------------------------------*/

func runViperwolf(ctx context.Context, cfg *Config, showFrames, hex bool, logger *log.Logger) error {
	var source, err = openAudio(cfg.Audio)
	if err != nil {
		return errors.Wrap(err, "pointless to continue without audio")
	}

	// A blocking read only returns when the source is closed.
	var closeSource = sync.OnceValue(source.Close)
	defer closeSource() //nolint:errcheck
	var stopClose = context.AfterFunc(ctx, func() { closeSource() }) //nolint:errcheck
	defer stopClose()

	logger.Info("audio input", "source", cfg.Audio.Source,
		"rate", source.SampleRate(), "channels", source.Channels())

	var registry *prometheus.Registry
	var metrics *Metrics
	if cfg.Metrics.Listen != "" {
		registry = prometheus.NewRegistry()
		metrics = NewMetrics(registry)
	}

	var modem, modemErr = NewMultiModem(source.Channels(), cfg.ChannelConfigs(source.SampleRate()), cfg.Queues.Frames, logger, metrics)
	if modemErr != nil {
		return modemErr
	}

	var receiver, recvErr = NewReceiver(source, modem, logger, metrics)
	if recvErr != nil {
		return recvErr
	}

	receiver.SetGain(cfg.Audio.Gain)

	if showFrames {
		receiver.AddSink(NewFrameMonitor(logger, hex))
	}

	var ctx2, cancel = context.WithCancel(ctx)
	defer cancel()

	var g, gctx = errgroup.WithContext(ctx2)

	if cfg.Metrics.Listen != "" {
		var srv = &http.Server{ //nolint:exhaustruct
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), //nolint:exhaustruct
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Listen)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics")
			}

			return nil
		})

		context.AfterFunc(gctx, func() { srv.Close() }) //nolint:errcheck
	}

	/*
	 * Provide the KISS interfaces for use by client applications.
	 */

	if cfg.KISS.TCPPort > 0 {
		var kiss, err = ListenKiss(":"+strconv.Itoa(cfg.KISS.TCPPort), cfg.KISS.MaxClients, -1, logger, metrics)
		if err != nil {
			return err
		}
		defer kiss.Close()

		receiver.AddSink(kiss)
		g.Go(func() error { return kiss.Serve(gctx) })

		if cfg.KISS.DNSSD {
			g.Go(func() error {
				// Nice to have, not worth stopping for.
				if err := AnnounceKiss(gctx, cfg.KISS.DNSSDName, kiss.Port(), logger); err != nil {
					logger.Warn("DNS-SD announcement failed", "err", err)
				}

				return nil
			})
		}
	}

	if cfg.KISS.PTY {
		var pty, err = OpenKissPTY(TmpKissTNCSymlink, logger)
		if err != nil {
			return err
		}
		defer pty.Close()

		receiver.AddSink(pty)
	}

	if cfg.KISS.SerialPort != "" {
		var serial, err = OpenKissSerial(cfg.KISS.SerialPort, cfg.KISS.SerialSpeed, logger)
		if err != nil {
			return err
		}
		defer serial.Close()

		receiver.AddSink(serial)
	}

	var frameLog, logErr = NewFrameLog(cfg.Log.Dir, cfg.Log.File, cfg.Log.TimestampFormat, logger)
	if logErr != nil {
		return logErr
	}

	if frameLog != nil {
		defer frameLog.Close()

		receiver.AddSink(frameLog)
		receiver.OnBeacon(func(msg BeaconMessage) {
			if err := frameLog.WriteBeacon(msg); err != nil {
				logger.Warn("couldn't log beacon", "err", err)
			}
		})
	}

	if cfg.DCDGPIO.Chip != "" {
		var ind, err = OpenDCDIndicator(cfg.DCDGPIO.Chip, cfg.DCDGPIO.Line, cfg.DCDGPIO.ActiveLow, logger)
		if err != nil {
			return err
		}
		defer ind.Close()

		modem.Channels()[cfg.DCDGPIO.Channel].OnDCDChange(ind.Set)
	}

	if cfg.Beacon.Enabled {
		if err := receiver.EnableBeacons(cfg.BeaconConfig(), cfg.Queues.Bits); err != nil {
			return err
		}
	}

	/*
	 * Get sound samples and decode them.
	 */

	g.Go(func() error {
		// Everything else stops when the audio does.
		defer cancel()

		return receiver.Run(gctx)
	})

	return g.Wait()
}
