package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:	Run several channels from one audio stream.
 *
 * Description:	A stereo sound card gives two radio channels.  We can
 *		also have more than one modem listening to the same
 *		audio, e.g. with different tones or profiles, in hopes
 *		that one will do better with a less than ideal signal.
 *
 *		Audio arrives interleaved, one sample per input in turn.
 *		Each block is split up by input and then every channel
 *		works through its share on its own goroutine.  Channels
 *		share nothing except the frame queue.
 *
 *------------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type MultiModem struct {
	numInputs int
	channels  []*Channel

	// De-interleaved audio, one slice per input.
	inputs [][]float64

	// Average DC bias level per input.
	// Shouldn't happen with a soundcard but could with mistuned SDR.
	dcAverage []float64

	// Start of a set of samples split across blocks.
	partial []float64

	frames *FrameQueue
}

/*------------------------------------------------------------------------------
 *
 * Name:	NewMultiModem
 *
 * Purpose:	Set up all the channels for an audio stream.
 *
 * Inputs:	numInputs	- Number of interleaved channels in the audio, 1 or 2 usually.
 *		configs		- One per channel.  Input selects the audio channel.
 *		frameQueueSize	- Size of the queue shared by all channels.  0 for default.
 *
 *------------------------------------------------------------------------------*/

func NewMultiModem(numInputs int, configs []ChannelConfig, frameQueueSize int, logger *log.Logger, metrics *Metrics) (*MultiModem, error) {
	if numInputs < 1 {
		return nil, errors.Errorf("need at least one audio channel, got %d", numInputs)
	}

	if len(configs) == 0 {
		return nil, errors.New("no channels configured")
	}

	if frameQueueSize <= 0 {
		frameQueueSize = DefaultFrameQueueSize
	}

	var m = &MultiModem{ //nolint:exhaustruct
		numInputs: numInputs,
		inputs:    make([][]float64, numInputs),
		dcAverage: make([]float64, numInputs),
		partial:   make([]float64, 0, numInputs),
		frames:    NewFrameQueue(frameQueueSize),
	}

	var seen = make(map[int]bool)
	for _, cfg := range configs {
		if cfg.Input < 0 || cfg.Input >= numInputs {
			return nil, errors.Errorf("channel %d listens to audio channel %d but there are only %d", cfg.Number, cfg.Input, numInputs)
		}

		if seen[cfg.Number] {
			return nil, errors.Errorf("channel %d configured more than once", cfg.Number)
		}
		seen[cfg.Number] = true

		var c, err = NewChannel(cfg, logger, metrics)
		if err != nil {
			return nil, err
		}

		c.UseFrameQueue(m.frames)
		m.channels = append(m.channels, c)
	}

	return m, nil
}

func (m *MultiModem) Channels() []*Channel { return m.channels }
func (m *MultiModem) NumInputs() int       { return m.numInputs }

// Frames is where frames from every channel end up.
func (m *MultiModem) Frames() *FrameQueue { return m.frames }

// DCAverage is the DC bias of an input, scaled to about +-200 like the
// audio level.
func (m *MultiModem) DCAverage(input int) int {
	return int(m.dcAverage[input] * 200)
}

/*------------------------------------------------------------------------------
 *
 * Name:	ProcessInterleaved
 *
 * Purpose:	Feed a block of audio to the proper channels.
 *
 * Inputs:	samples	- Interleaved, normalized to about -1 .. +1.
 *			  Need not end on a whole set of samples.  The
 *			  remainder is held until the next block.
 *
 * Description:	Returns when every channel has finished with the block.
 *
 *------------------------------------------------------------------------------*/

func (m *MultiModem) ProcessInterleaved(samples []float64) {
	for i := range m.inputs {
		m.inputs[i] = m.inputs[i][:0]
	}

	for _, s := range samples {
		m.partial = append(m.partial, s)
		if len(m.partial) < m.numInputs {
			continue
		}

		for i, v := range m.partial {
			m.dcAverage[i] = m.dcAverage[i]*0.999 + v*0.001
			m.inputs[i] = append(m.inputs[i], v)
		}
		m.partial = m.partial[:0]
	}

	if len(m.channels) == 1 {
		var c = m.channels[0]
		c.ProcessSamples(m.inputs[c.input])

		return
	}

	var g errgroup.Group
	for _, c := range m.channels {
		g.Go(func() error {
			c.ProcessSamples(m.inputs[c.input])

			return nil
		})
	}

	_ = g.Wait() // Nothing in there can fail.
}
