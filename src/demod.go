package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Everything needed for one radio channel:
 *		demodulator, clock recovery and deframer.
 *
 * Description:	Audio samples go in one at a time.  Frames come out
 *		through the single "last frame" slot, the frame queue,
 *		and the optional frame callback.  Raw bits can also be
 *		tapped off for the beacon decoder or for debugging.
 *
 *		Nothing in ProcessSample blocks, allocates per sample,
 *		or returns an error.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// ReceivedFrame is a frame with the circumstances of its reception.
type ReceivedFrame struct {
	Channel int
	Data    []byte // Without the FCS, if that was checked.
	Level   AudioLevel
	Time    time.Time

	// True if the FCS was checked and correct.  False if not checked.
	FCSOK bool

	// Estimated transmitter clock error in percent.  Positive is fast.
	SpeedError float64
}

// ChannelConfig is everything needed to set up a channel.
type ChannelConfig struct {
	Number int

	SampleRate int // Of the audio before decimation.
	Baud       int
	MarkFreq   int
	SpaceFreq  int
	Profile    Profile

	// Average this many input samples into one.  0 and 1 both mean none.
	Decimate int

	Framing  Framing
	CheckFCS bool

	// Which channel of interleaved multichannel audio to listen to.
	Input int

	FrameQueueSize int // 0 for the default.
}

// Channel is one demodulator chain.
type Channel struct {
	number   int
	input    int
	checkFCS bool

	demod    *DemodulatorState
	pll      *PLL
	deframer *Deframer

	decimate    int
	decimateSum float64
	decimateN   int

	frames  *FrameQueue
	bits    *BitQueue
	onFrame func(ReceivedFrame)
	onBit   BitSink

	bitCount int // Since the last flush to metrics.

	pending     []byte
	havePending bool

	metrics *channelMetrics
	logger  *log.Logger
	now     func() time.Time
}

/*------------------------------------------------------------------
 *
 * Name:        NewChannel
 *
 * Purpose:     Build a channel from its configuration.
 *
 * Inputs:	cfg	- Channel parameters.
 *		logger	- Parent logger.  May be nil.
 *		metrics	- May be nil for none.
 *
 * Returns:	The channel, or an error if the configuration is unusable.
 *
 *----------------------------------------------------------------*/

func NewChannel(cfg ChannelConfig, logger *log.Logger, metrics *Metrics) (*Channel, error) {
	logger = defaultLogger(logger).With("chan", cfg.Number)

	var decimate = max(cfg.Decimate, 1)
	if cfg.SampleRate%decimate != 0 {
		logger.Warn("sample rate is not a multiple of decimation, demodulator rate rounded down",
			"rate", cfg.SampleRate, "decimate", decimate)
	}

	var D, err = NewDemodulator(DemodConfig{
		SampleRate: cfg.SampleRate / decimate,
		Baud:       cfg.Baud,
		MarkFreq:   cfg.MarkFreq,
		SpaceFreq:  cfg.SpaceFreq,
		Profile:    cfg.Profile,
	}, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "channel %d", cfg.Number)
	}

	var queueSize = cfg.FrameQueueSize
	if queueSize <= 0 {
		queueSize = DefaultFrameQueueSize
	}

	var c = &Channel{ //nolint:exhaustruct
		number:   cfg.Number,
		input:    cfg.Input,
		checkFCS: cfg.CheckFCS,
		demod:    D,
		pll:      NewPLL(D),
		deframer: NewDeframer(cfg.Framing),
		decimate: decimate,
		frames:   NewFrameQueue(queueSize),
		metrics:  metrics.forChannel(cfg.Number),
		logger:   logger,
		now:      time.Now,
	}

	c.pll.OnDCDChange(func(on bool) {
		c.metrics.setDCD(on)
		c.logger.Debug("data carrier detect", "on", on)
	})

	logger.Info("channel ready",
		"profile", cfg.Profile, "baud", cfg.Baud, "mark", cfg.MarkFreq, "space", cfg.SpaceFreq,
		"rate", D.SampleRate(), "framing", cfg.Framing,
		"prefilter", len(D.PreFilter()), "lowpass", len(D.LowpassFilter()))

	return c, nil
}

func (c *Channel) Number() int                    { return c.number }
func (c *Channel) Demodulator() *DemodulatorState { return c.demod }
func (c *Channel) PLL() *PLL                      { return c.pll }
func (c *Channel) Frames() *FrameQueue            { return c.frames }
func (c *Channel) DataDetect() bool               { return c.pll.DataDetect() }
func (c *Channel) AudioLevel() AudioLevel         { return c.demod.AudioLevel() }

// AttachBitQueue sends a copy of every recovered bit to q.
func (c *Channel) AttachBitQueue(q *BitQueue) {
	c.bits = q
}

// UseFrameQueue replaces the channel's own frame queue, so several
// channels can share one.
func (c *Channel) UseFrameQueue(q *FrameQueue) {
	c.frames = q
}

// OnBit calls fn, from the sample processing goroutine, for every recovered bit.
func (c *Channel) OnBit(fn BitSink) {
	c.onBit = fn
}

// OnFrame calls fn, from the sample processing goroutine, for every frame.
// It must not block.
func (c *Channel) OnFrame(fn func(ReceivedFrame)) {
	c.onFrame = fn
}

// OnDCDChange adds fn to what happens when the carrier detect changes.
func (c *Channel) OnDCDChange(fn func(bool)) {
	var prev = c.pll.onDCDChange
	c.pll.OnDCDChange(func(on bool) {
		if prev != nil {
			prev(on)
		}
		fn(on)
	})
}

/*------------------------------------------------------------------
 *
 * Name:        ProcessSample
 *
 * Purpose:     Feed one audio sample through the whole chain.
 *
 * Inputs:	sam	- Audio sample, normalized to about -1 .. +1.
 *
 *----------------------------------------------------------------*/

func (c *Channel) ProcessSample(sam float64) {
	if c.decimate > 1 {
		c.decimateSum += sam
		c.decimateN++
		if c.decimateN < c.decimate {
			return
		}
		sam = c.decimateSum / float64(c.decimate)
		c.decimateSum = 0
		c.decimateN = 0
	}

	var demodOut = c.demod.ProcessSample(sam)

	var bit, ok = c.pll.OnDemodSample(demodOut)
	if !ok {
		return
	}

	c.bitCount++

	if c.bits != nil && !c.bits.Put(bit) {
		c.metrics.bitDropped()
	}

	if c.onBit != nil {
		c.onBit(bit)
	}

	var frame, got = c.deframer.OnBit(bit)

	if c.deframer.framing == FramingSimple {
		c.simpleFrame(frame, got)

		return
	}

	if got {
		c.deliver(frame)
	}
}

// Without stuffing the deframer offers the frame again after every octet.
// Only the longest version, as it stood at the next flag, is queued.
func (c *Channel) simpleFrame(frame []byte, ok bool) {
	switch {
	case ok:
		c.pending = append(c.pending[:0], frame...)
		c.havePending = true
	case !c.havePending:
	case c.deframer.overflow:
		c.havePending = false
	case c.deframer.frameLen == 0:
		c.havePending = false
		c.deliver(c.pending)
	}
}

// ProcessSamples is ProcessSample for a block, with metrics updated once.
func (c *Channel) ProcessSamples(samples []float64) {
	for _, s := range samples {
		c.ProcessSample(s)
	}

	c.metrics.addSamples(len(samples))
	c.metrics.addBits(c.bitCount)
	c.bitCount = 0
}

func (c *Channel) deliver(frame []byte) {
	var rf = ReceivedFrame{ //nolint:exhaustruct
		Channel:    c.number,
		Level:      c.demod.AudioLevel(),
		Time:       c.now(),
		SpeedError: c.pll.SpeedError(),
	}

	// Next measurement is for the next frame.
	c.pll.ResetSpeedError()

	if c.checkFCS {
		var data, good = CheckFCS(frame)
		if !good {
			c.metrics.fcsError()
			c.logger.Debug("bad FCS, frame discarded", "len", len(frame))

			return
		}
		rf.Data = append([]byte(nil), data...)
		rf.FCSOK = true
	} else {
		rf.Data = append([]byte(nil), frame...)
	}

	c.metrics.frame(rf.Level)

	if !c.frames.Put(rf) {
		c.metrics.frameDropped()
		c.logger.Warn("frame queue full, frame discarded", "len", len(rf.Data))
	}

	if c.onFrame != nil {
		c.onFrame(rf)
	}
}

// RetrieveFrame hands over the most recent frame from the deframer, once.
// It ignores the FCS setting and the queue.
func (c *Channel) RetrieveFrame() ([]byte, bool) {
	return c.deframer.RetrieveFrame()
}
