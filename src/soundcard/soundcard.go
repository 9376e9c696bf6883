// Package soundcard captures live audio with PortAudio for the receiver.
package soundcard

/*------------------------------------------------------------------
 *
 * Purpose:   	Interface to audio device commonly called a "sound card"
 *		for historical reasons.
 *
 *		PortAudio hides the operating system differences.
 *		This is kept apart from the rest because it needs cgo.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// Frames per PortAudio read.  About 20 ms at 48000.
const framesPerBuffer = 1024

var (
	initOnce sync.Once
	initErr  error
)

func initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})

	return errors.Wrap(initErr, "portaudio")
}

// Source is a sound card input.  It satisfies viperwolf.AudioSource.
type Source struct {
	stream     *portaudio.Stream
	buf        []int16
	pending    []int16
	sampleRate int
	channels   int
	name       string
}

// Devices lists the input devices, numbered from 1 for Open.
func Devices() ([]string, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	var devices, err = portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(err, "list audio devices")
	}

	var list []string
	for i, d := range devices {
		if d.MaxInputChannels > 0 {
			list = append(list, fmt.Sprintf("%d: %s (in:%d)", i+1, d.Name, d.MaxInputChannels))
		}
	}

	return list, nil
}

func findDevice(dev string) (*portaudio.DeviceInfo, error) {
	if dev == "" || dev == "default" {
		return portaudio.DefaultInputDevice()
	}

	var devices, err = portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if i, err := strconv.Atoi(dev); err == nil && i > 0 && i <= len(devices) {
		return devices[i-1], nil
	}

	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.HasPrefix(d.Name, dev) {
			return d, nil
		}
	}

	return nil, errors.Errorf("audio device not found: %s", dev)
}

/*------------------------------------------------------------------
 *
 * Name:        Open
 *
 * Purpose:     Start capturing.
 *
 * Inputs:	dev		- Device number from Devices, the start of its
 *				  name, or "" for the system default.
 *		sampleRate	- e.g. 44100 or 48000.
 *		channels	- 1 for mono, 2 for stereo.
 *
 *----------------------------------------------------------------*/

func Open(dev string, sampleRate, channels int) (*Source, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	var info, err = findDevice(dev)
	if err != nil {
		return nil, errors.Wrap(err, "sound card")
	}

	var p = portaudio.LowLatencyParameters(info, nil)
	p.Input.Channels = channels
	p.Output.Channels = 0
	p.SampleRate = float64(sampleRate)
	p.FramesPerBuffer = framesPerBuffer

	var s = &Source{ //nolint:exhaustruct
		buf:        make([]int16, framesPerBuffer*channels),
		sampleRate: sampleRate,
		channels:   channels,
		name:       info.Name,
	}

	s.stream, err = portaudio.OpenStream(p, s.buf)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", info.Name)
	}

	if err := s.stream.Start(); err != nil {
		s.stream.Close()

		return nil, errors.Wrapf(err, "start %s", info.Name)
	}

	return s, nil
}

func (s *Source) SampleRate() int { return s.sampleRate }
func (s *Source) Channels() int   { return s.channels }
func (s *Source) Name() string    { return s.name }

func (s *Source) Read(out []float64) (int, error) {
	if len(s.pending) == 0 {
		// An overflow only means we lost some audio.  Carry on.
		if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return 0, errors.Wrap(err, "read sound card")
		}

		s.pending = s.buf
	}

	var n = min(len(out), len(s.pending))
	for i := range n {
		out[i] = float64(s.pending[i]) / 32768
	}

	s.pending = s.pending[n:]

	return n, nil
}

func (s *Source) Close() error {
	var stopErr = s.stream.Stop()
	var closeErr = s.stream.Close()

	if stopErr != nil {
		return errors.Wrap(stopErr, "stop sound card")
	}

	return errors.Wrap(closeErr, "close sound card")
}
