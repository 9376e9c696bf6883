package viperwolf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseConfigString(t *testing.T, s string) (*Config, error) {
	t.Helper()

	return ParseConfig(strings.NewReader(s))
}

func TestParseConfig_Empty(t *testing.T) {
	var cfg, err = parseConfigString(t, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Overrides(t *testing.T) {
	var cfg, err = parseConfigString(t, `
audio:
  source: wav
  file: test.wav
kiss:
  tcp_port: 8002
log:
  level: debug
  dir: /tmp/heard
beacon:
  enabled: true
  timeout: 2s
  space_is_one: false
queues:
  frames: 10
`)
	require.NoError(t, err)

	assert.Equal(t, "wav", cfg.Audio.Source)
	assert.Equal(t, "test.wav", cfg.Audio.File)
	assert.Equal(t, 44100, cfg.Audio.SampleRate, "not mentioned so keeps default")
	assert.Equal(t, 8002, cfg.KISS.TCPPort)
	assert.Equal(t, DefaultKISSClients, cfg.KISS.MaxClients)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/heard", cfg.Log.Dir)
	assert.True(t, cfg.Beacon.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Beacon.Timeout)
	assert.False(t, cfg.Beacon.SpaceIsOne)
	assert.Equal(t, DefaultBeaconPreamble, cfg.Beacon.Preamble)
	assert.Equal(t, 10, cfg.Queues.Frames)
	assert.Equal(t, DefaultBitQueueSize, cfg.Queues.Bits)
	assert.Len(t, cfg.Channels, 1)
}

func TestParseConfig_Channels(t *testing.T) {
	var cfg, err = parseConfigString(t, `
audio:
  channels: 2
  sample_rate: 48000
channels:
  - input: 0
  - input: 1
    baud: 300
    mark: 1600
    space: 1800
    profile: D
    framing: simple
    check_fcs: true
`)
	require.NoError(t, err)

	require.Len(t, cfg.Channels, 2)

	// Unmentioned fields get the defaults, not zero.
	assert.Equal(t, defaultChannel(), cfg.Channels[0])

	var second = cfg.Channels[1]
	assert.Equal(t, 1, second.Input)
	assert.Equal(t, 300, second.Baud)
	assert.Equal(t, 1600, second.Mark)
	assert.Equal(t, 1800, second.Space)
	assert.Equal(t, ProfileDiscriminator, second.Profile)
	assert.Equal(t, 1, second.Decimate)
	assert.Equal(t, FramingSimple, second.Framing)
	assert.True(t, second.CheckFCS)

	var configs = cfg.ChannelConfigs(48000)
	require.Len(t, configs, 2)
	assert.Equal(t, 1, configs[1].Number)
	assert.Equal(t, 1, configs[1].Input)
	assert.Equal(t, 48000, configs[1].SampleRate)
	assert.Equal(t, 300, configs[1].Baud)
	assert.Equal(t, FramingSimple, configs[1].Framing)
	assert.Equal(t, DefaultFrameQueueSize, configs[1].FrameQueueSize)
}

func TestParseConfig_UnknownField(t *testing.T) {
	var _, err = parseConfigString(t, "audio:\n  sorce: wav\n")

	assert.Error(t, err)
}

func TestParseConfig_BadProfile(t *testing.T) {
	var _, err = parseConfigString(t, "channels:\n  - profile: Z\n")

	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestValidate(t *testing.T) {
	for name, breakIt := range map[string]func(*Config){
		"source":         func(c *Config) { c.Audio.Source = "tape" },
		"wav no file":    func(c *Config) { c.Audio.Source = "wav" },
		"udp no addr":    func(c *Config) { c.Audio.Source = "udp" },
		"sample rate":    func(c *Config) { c.Audio.SampleRate = 0 },
		"audio channels": func(c *Config) { c.Audio.Channels = 3 },
		"gain":           func(c *Config) { c.Audio.Gain = 0 },
		"no channels":    func(c *Config) { c.Channels = nil },
		"input":          func(c *Config) { c.Channels[0].Input = 1 },
		"baud":           func(c *Config) { c.Channels[0].Baud = 0 },
		"same tones":     func(c *Config) { c.Channels[0].Space = c.Channels[0].Mark },
		"decimate":       func(c *Config) { c.Channels[0].Decimate = 9 },
		"profile":        func(c *Config) { c.Channels[0].Profile = 'Q' },
		"port":           func(c *Config) { c.KISS.TCPPort = 70000 },
		"clients":        func(c *Config) { c.KISS.MaxClients = 0 },
		"dns-sd":         func(c *Config) { c.KISS.DNSSD = true; c.KISS.TCPPort = 0 },
		"gpio channel":   func(c *Config) { c.DCDGPIO.Chip = "gpiochip0"; c.DCDGPIO.Channel = 1 },
		"beacon pattern": func(c *Config) { c.Beacon.Enabled = true; c.Beacon.Preamble = "10x" },
		"beacon timeout": func(c *Config) { c.Beacon.Enabled = true; c.Beacon.Timeout = 0 },
		"queues":         func(c *Config) { c.Queues.Frames = 0 },
	} {
		var cfg = DefaultConfig()
		require.NoError(t, cfg.Validate(), name)

		breakIt(cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestLoadConfig(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "viperwolf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kiss:\n  max_clients: 1\n"), 0o600))

	var cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.KISS.MaxClients)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Search(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, os.WriteFile("viperwolf.yaml", []byte("kiss:\n  tcp_port: 0\n"), 0o600))
	assert.Equal(t, "viperwolf.yaml", FindConfig())

	var cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.KISS.TCPPort)
}

func TestBeaconConfigFromConfig(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Beacon.End = "1111"

	var bc = cfg.BeaconConfig()

	assert.Equal(t, DefaultBeaconPreamble, bc.Preamble)
	assert.Equal(t, "1111", bc.End)
	assert.Equal(t, DefaultBeaconTimeout, bc.Timeout)
	assert.True(t, bc.SpaceIsOne)
}
