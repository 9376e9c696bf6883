package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration information from a file.
 *
 * Description:	This file describes what channels to listen to, with
 *		what tones and speeds, where the audio comes from and
 *		where decoded frames go.
 *
 *		Anything not mentioned keeps its default.  Command line
 *		options are applied on top of the file afterward.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultBaud      = 1200
	DefaultMarkFreq  = 1200
	DefaultSpaceFreq = 2200
	DefaultKISSPort  = 8001
)

type Config struct {
	Audio    AudioConfig       `yaml:"audio"`
	Channels []ChannelSettings `yaml:"channels"`
	KISS     KISSConfig        `yaml:"kiss"`
	Log      LogConfig         `yaml:"log"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	DCDGPIO  GPIOConfig        `yaml:"dcd_gpio"`
	Beacon   BeaconSettings    `yaml:"beacon"`
	Queues   QueueConfig       `yaml:"queues"`
}

type AudioConfig struct {
	// soundcard, wav, stdin, or udp.
	Source string `yaml:"source"`

	Device string `yaml:"device"` // Sound card name or number.
	File   string `yaml:"file"`   // For wav.
	UDP    string `yaml:"udp"`    // Listen address for udp, e.g. ":7355".

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Multiply every sample by this.
	Gain float64 `yaml:"gain"`
}

// ChannelSettings describes one modem.  Its position in the list is the
// channel number.
type ChannelSettings struct {
	Input    int     `yaml:"input"` // Which audio channel, 0 is left.
	Baud     int     `yaml:"baud"`
	Mark     int     `yaml:"mark"`
	Space    int     `yaml:"space"`
	Profile  Profile `yaml:"profile"`
	Decimate int     `yaml:"decimate"`
	Framing  Framing `yaml:"framing"`
	CheckFCS bool    `yaml:"check_fcs"`
}

type KISSConfig struct {
	TCPPort    int    `yaml:"tcp_port"` // 0 to disable.
	MaxClients int    `yaml:"max_clients"`
	DNSSD      bool   `yaml:"dns_sd"`
	DNSSDName  string `yaml:"dns_sd_name"`

	PTY bool `yaml:"pty"`

	SerialPort  string `yaml:"serial_port"`
	SerialSpeed int    `yaml:"serial_speed"`
}

type LogConfig struct {
	Level string `yaml:"level"`

	// Received frame log.  Dir gives a new file each day, otherwise File.
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`

	// strftime format for the isotime column.
	TimestampFormat string `yaml:"timestamp_format"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9100", empty for none.
}

type GPIOConfig struct {
	Chip      string `yaml:"chip"` // e.g. gpiochip0, empty for none.
	Line      int    `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
	Channel   int    `yaml:"channel"`
}

type BeaconSettings struct {
	Enabled    bool          `yaml:"enabled"`
	Preamble   string        `yaml:"preamble"`
	End        string        `yaml:"end"`
	Timeout    time.Duration `yaml:"timeout"`
	SpaceIsOne bool          `yaml:"space_is_one"`
}

type QueueConfig struct {
	Bits   int `yaml:"bits"`
	Frames int `yaml:"frames"`
}

func defaultChannel() ChannelSettings {
	return ChannelSettings{
		Input:    0,
		Baud:     DefaultBaud,
		Mark:     DefaultMarkFreq,
		Space:    DefaultSpaceFreq,
		Profile:  ProfileAmplitude,
		Decimate: 1,
		Framing:  FramingHDLC,
		CheckFCS: false,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{ //nolint:exhaustruct
			Source:     "soundcard",
			SampleRate: 44100,
			Channels:   1,
			Gain:       1,
		},
		Channels: []ChannelSettings{defaultChannel()},
		KISS: KISSConfig{ //nolint:exhaustruct
			TCPPort:     DefaultKISSPort,
			MaxClients:  DefaultKISSClients,
			DNSSD:       false,
			SerialSpeed: 9600,
		},
		Log: LogConfig{ //nolint:exhaustruct
			Level:           "info",
			TimestampFormat: "%Y-%m-%dT%H:%M:%SZ",
		},
		Metrics: MetricsConfig{}, //nolint:exhaustruct
		DCDGPIO: GPIOConfig{},    //nolint:exhaustruct
		Beacon: BeaconSettings{
			Enabled:    false,
			Preamble:   DefaultBeaconPreamble,
			End:        DefaultBeaconEnd,
			Timeout:    DefaultBeaconTimeout,
			SpaceIsOne: true,
		},
		Queues: QueueConfig{
			Bits:   DefaultBitQueueSize,
			Frames: DefaultFrameQueueSize,
		},
	}
}

// Where to look when no file is named.
func configSearchLocations() []string {
	var locations = []string{"viperwolf.yaml"} // Current working directory

	if dir, err := os.UserConfigDir(); err == nil {
		locations = append(locations, filepath.Join(dir, "viperwolf", "viperwolf.yaml"))
	}

	return append(locations,
		"/usr/local/etc/viperwolf/viperwolf.yaml",
		"/etc/viperwolf/viperwolf.yaml",
	)
}

// FindConfig returns the first configuration file that exists, or "" if none.
func FindConfig() string {
	for _, location := range configSearchLocations() {
		if info, err := os.Stat(location); err == nil && !info.IsDir() {
			return location
		}
	}

	return ""
}

/*------------------------------------------------------------------
 *
 * Name:	LoadConfig
 *
 * Purpose:	Read and check a configuration file.
 *
 * Inputs:	path	- File name.  Empty means search the usual
 *			  places and use the defaults if nothing is found.
 *
 * Returns:	Complete configuration, or an error for a file that can't
 *		be read or doesn't make sense.
 *
 *----------------------------------------------------------------*/

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = FindConfig()
		if path == "" {
			return DefaultConfig(), nil
		}
	}

	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration")
	}

	var cfg, parseErr = ParseConfig(bytes.NewReader(data))
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, path)
	}

	return cfg, nil
}

// ParseConfig reads YAML on top of the defaults and validates the result.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg = DefaultConfig()

	// Channels listed in the file replace the default one entirely.
	var raw struct {
		Channels []yaml.Node `yaml:"channels"`
	}

	var data, err = io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration")
	}

	var dec = yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse configuration")
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse configuration")
	}

	if raw.Channels != nil {
		cfg.Channels = cfg.Channels[:0]
		for i := range raw.Channels {
			var ch = defaultChannel()
			if err := raw.Channels[i].Decode(&ch); err != nil {
				return nil, errors.Wrapf(err, "channel %d", i)
			}
			cfg.Channels = append(cfg.Channels, ch)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate returns the first problem found, wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.Audio.Source {
	case "soundcard", "stdin":
	case "wav":
		if c.Audio.File == "" {
			return invalid("audio source wav needs a file")
		}
	case "udp":
		if c.Audio.UDP == "" {
			return invalid("audio source udp needs a listen address")
		}
	default:
		return invalid("unknown audio source %q, expected soundcard, wav, stdin, or udp", c.Audio.Source)
	}

	if c.Audio.SampleRate <= 0 && c.Audio.Source != "wav" {
		return invalid("audio sample rate %d", c.Audio.SampleRate)
	}

	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return invalid("audio channels %d, must be 1 or 2", c.Audio.Channels)
	}

	if c.Audio.Gain <= 0 {
		return invalid("audio gain %g must be positive", c.Audio.Gain)
	}

	if len(c.Channels) == 0 {
		return invalid("no channels")
	}

	for n, ch := range c.Channels {
		if ch.Input < 0 || ch.Input >= c.Audio.Channels {
			return invalid("channel %d input %d, audio has %d channels", n, ch.Input, c.Audio.Channels)
		}

		if ch.Baud <= 0 {
			return invalid("channel %d baud %d", n, ch.Baud)
		}

		if ch.Mark <= 0 || ch.Space <= 0 || ch.Mark == ch.Space {
			return invalid("channel %d tones %d and %d", n, ch.Mark, ch.Space)
		}

		if ch.Decimate < 1 || ch.Decimate > 8 {
			return invalid("channel %d decimate %d, must be 1 to 8", n, ch.Decimate)
		}

		if _, err := ParseProfile(ch.Profile.String()); err != nil {
			return invalid("channel %d: %s", n, err)
		}
	}

	if c.KISS.TCPPort < 0 || c.KISS.TCPPort > 65535 {
		return invalid("KISS TCP port %d", c.KISS.TCPPort)
	}

	if c.KISS.MaxClients < 1 {
		return invalid("KISS max clients %d", c.KISS.MaxClients)
	}

	if c.KISS.DNSSD && c.KISS.TCPPort == 0 {
		return invalid("DNS-SD needs the KISS TCP port")
	}

	if c.DCDGPIO.Chip != "" {
		if c.DCDGPIO.Line < 0 {
			return invalid("DCD GPIO line %d", c.DCDGPIO.Line)
		}

		if c.DCDGPIO.Channel < 0 || c.DCDGPIO.Channel >= len(c.Channels) {
			return invalid("DCD GPIO channel %d, only %d channels", c.DCDGPIO.Channel, len(c.Channels))
		}
	}

	if c.Beacon.Enabled {
		if _, err := parseBitPattern(c.Beacon.Preamble); err != nil {
			return invalid("beacon preamble: %s", err)
		}

		if _, err := parseBitPattern(c.Beacon.End); err != nil {
			return invalid("beacon end: %s", err)
		}

		if c.Beacon.Timeout <= 0 {
			return invalid("beacon timeout %s", c.Beacon.Timeout)
		}
	}

	if c.Queues.Bits < 1 || c.Queues.Frames < 1 {
		return invalid("queue sizes %d and %d must be positive", c.Queues.Bits, c.Queues.Frames)
	}

	return nil
}

// ChannelConfigs converts the channel settings for NewMultiModem.
func (c *Config) ChannelConfigs(sampleRate int) []ChannelConfig {
	var out = make([]ChannelConfig, 0, len(c.Channels))
	for n, ch := range c.Channels {
		out = append(out, ChannelConfig{
			Number:         n,
			SampleRate:     sampleRate,
			Baud:           ch.Baud,
			MarkFreq:       ch.Mark,
			SpaceFreq:      ch.Space,
			Profile:        ch.Profile,
			Decimate:       ch.Decimate,
			Framing:        ch.Framing,
			CheckFCS:       ch.CheckFCS,
			Input:          ch.Input,
			FrameQueueSize: c.Queues.Frames,
		})
	}

	return out
}

func (c *Config) BeaconConfig() BeaconConfig {
	return BeaconConfig{
		Preamble:   c.Beacon.Preamble,
		End:        c.Beacon.End,
		Timeout:    c.Beacon.Timeout,
		SpaceIsOne: c.Beacon.SpaceIsOne,
	}
}
