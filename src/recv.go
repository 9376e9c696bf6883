package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Process audio input for receiving.
 *
 * Description:	One goroutine reads audio and passes it to the
 *		multi modem.  The demodulators never wait for anyone.
 *		When a frame is complete it goes into a queue.
 *
 *		Another goroutine waits for something to show up in the
 *		frame queue and hands each frame, one at a time, to the
 *		KISS clients, the log file, and so on.  Those don't have
 *		to worry about being reentrant.
 *
 *		If beacon decoding is enabled, each channel also sends
 *		its raw bits to a queue with a beacon decoder on the
 *		other end.
 *
 *		The flow looks like this:
 *
 *			AudioSource.Read
 *			  MultiModem.ProcessInterleaved
 *			    Channel.ProcessSample ... FrameQueue, BitQueue
 *
 *			FrameQueue -> FrameSink.SendFrame
 *			BitQueue -> BeaconDecoder.OnBit -> beacon handlers
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Samples per read, all channels together.
const recvBlockSize = 4096

type beaconListener struct {
	decoder *BeaconDecoder
	bits    *BitQueue
	metrics *channelMetrics
}

type Receiver struct {
	source AudioSource
	modem  *MultiModem
	gain   float64

	sinks []FrameSink

	beacons  []beaconListener
	onBeacon []func(BeaconMessage)

	metrics *Metrics
	logger  *log.Logger
}

/*------------------------------------------------------------------
 *
 * Name:        NewReceiver
 *
 * Purpose:     Connect an audio source to the demodulators.
 *
 * Inputs:	source	- Its channel count must match the modem.
 *		modem	- Channels already set up for the source's rate.
 *
 *----------------------------------------------------------------*/

func NewReceiver(source AudioSource, modem *MultiModem, logger *log.Logger, metrics *Metrics) (*Receiver, error) {
	if source.Channels() != modem.NumInputs() {
		return nil, errors.Errorf("audio has %d channels but the modem expects %d", source.Channels(), modem.NumInputs())
	}

	return &Receiver{ //nolint:exhaustruct
		source:  source,
		modem:   modem,
		gain:    1,
		metrics: metrics,
		logger:  defaultLogger(logger),
	}, nil
}

// SetGain multiplies every sample by g before demodulating.
func (r *Receiver) SetGain(g float64) {
	r.gain = g
}

// AddSink adds somewhere for received frames to go.
func (r *Receiver) AddSink(s FrameSink) {
	r.sinks = append(r.sinks, s)
}

/*------------------------------------------------------------------
 *
 * Name:        EnableBeacons
 *
 * Purpose:     Look for beacon messages on every channel.
 *
 * Inputs:	cfg		- Decoder settings.
 *		queueSize	- Bits waiting per channel.  0 for default.
 *
 *----------------------------------------------------------------*/

func (r *Receiver) EnableBeacons(cfg BeaconConfig, queueSize int) error {
	if queueSize <= 0 {
		queueSize = DefaultBitQueueSize
	}

	for _, c := range r.modem.Channels() {
		var dec, err = NewBeaconDecoder(c.Number(), c.Demodulator().Baud(), cfg)
		if err != nil {
			return errors.Wrapf(err, "channel %d", c.Number())
		}

		var q = NewBitQueue(queueSize)
		c.AttachBitQueue(q)

		r.beacons = append(r.beacons, beaconListener{
			decoder: dec,
			bits:    q,
			metrics: r.metrics.forChannel(c.Number()),
		})
	}

	return nil
}

// OnBeacon calls fn, from the beacon goroutine, for each beacon message.
func (r *Receiver) OnBeacon(fn func(BeaconMessage)) {
	r.onBeacon = append(r.onBeacon, fn)
}

/*------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Receive until the audio ends or ctx is done.
 *
 * Returns:	nil at end of audio or when ctx is done.  Frames
 *		already decoded are delivered before returning.
 *
 * Description:	The source is not closed here.  A blocking Read only
 *		returns when the caller closes the source.
 *
 *----------------------------------------------------------------*/

func (r *Receiver) Run(ctx context.Context) error {
	var g, gctx = errgroup.WithContext(ctx)
	var audioDone = make(chan struct{})

	g.Go(func() error {
		defer close(audioDone)

		return r.readAudio(gctx)
	})

	g.Go(func() error {
		drainQueue(gctx, r.modem.Frames(), audioDone, r.dispatch)

		return nil
	})

	for _, b := range r.beacons {
		g.Go(func() error {
			drainQueue(gctx, b.bits, audioDone, func(bit bool) {
				if msg, ok := b.decoder.OnBit(bit); ok {
					b.metrics.beacon()
					r.beacon(msg)
				}
			})

			return nil
		})
	}

	return g.Wait()
}

func (r *Receiver) readAudio(ctx context.Context) error {
	var buf = make([]float64, recvBlockSize-recvBlockSize%r.source.Channels())

	for ctx.Err() == nil {
		var n, err = r.source.Read(buf)

		if n > 0 {
			if r.gain != 1 {
				for i := range buf[:n] {
					buf[i] *= r.gain
				}
			}
			r.modem.ProcessInterleaved(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			r.logger.Info("end of audio input")

			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil // Source closed on the way out.
			}

			return errors.Wrap(err, "audio input failure")
		}
	}

	return nil
}

func (r *Receiver) dispatch(rf ReceivedFrame) {
	for _, s := range r.sinks {
		if err := s.SendFrame(rf); err != nil {
			r.logger.Warn("couldn't pass on received frame", "chan", rf.Channel, "err", err)
		}
	}
}

func (r *Receiver) beacon(msg BeaconMessage) {
	Print(r.logger, ColorRec, "beacon", "chan", msg.Channel, "text", msg.Text)

	for _, fn := range r.onBeacon {
		fn(msg)
	}
}

/*------------------------------------------------------------------
 *
 * Name:        drainQueue
 *
 * Purpose:     Call fn for each item from q until the audio is
 *		finished or ctx is done.
 *
 * Description:	Anything still in the queue at that point is
 *		handled before returning.
 *
 *----------------------------------------------------------------*/

func drainQueue[T any](ctx context.Context, q *Queue[T], audioDone <-chan struct{}, fn func(T)) {
	var stop, cancel = context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-audioDone:
			cancel()
		case <-stop.Done():
		}
	}()

	for {
		var item, err = q.Get(stop)
		if err != nil {
			break
		}
		fn(item)
	}

	for {
		var item, ok = q.TryGet()
		if !ok {
			return
		}
		fn(item)
	}
}

/*------------------------------------------------------------------
 *
 * Name:        FrameMonitor
 *
 * Purpose:     Show received frames as they arrive.
 *
 *----------------------------------------------------------------*/

type FrameMonitor struct {
	logger *log.Logger
	hex    bool
}

// NewFrameMonitor logs each frame.  With hex the contents are shown as
// hexadecimal rather than text.
func NewFrameMonitor(logger *log.Logger, hex bool) *FrameMonitor {
	return &FrameMonitor{logger: defaultLogger(logger), hex: hex}
}

func (m *FrameMonitor) SendFrame(rf ReceivedFrame) error {
	var keyvals = []any{"chan", rf.Channel, "audio_level", rf.Level.String(), "len", len(rf.Data)}

	if m.hex {
		keyvals = append(keyvals, "hex", HexDump(rf.Data))
	} else {
		keyvals = append(keyvals, "text", SafeText(rf.Data))
	}

	Print(m.logger, ColorRec, "frame", keyvals...)

	return nil
}
