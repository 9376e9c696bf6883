package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Prometheus metrics for the receive path.
 *
 *		Everything is labelled by radio channel.  A nil *Metrics
 *		is valid and records nothing, which is what the tools and
 *		tests use.
 *
 *---------------------------------------------------------------*/

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	samples    *prometheus.CounterVec
	bits       *prometheus.CounterVec
	frames     *prometheus.CounterVec
	fcsErrors  *prometheus.CounterVec
	queueDrops *prometheus.CounterVec
	beacons    *prometheus.CounterVec
	dcd        *prometheus.GaugeVec
	audioLevel *prometheus.GaugeVec
	clients    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	var factory = promauto.With(reg)

	return &Metrics{
		samples: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "audio_samples_total",
			Help:      "Audio samples processed by the demodulator",
		}, []string{"channel"}),
		bits: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "bits_total",
			Help:      "Bits recovered by the clock recovery PLL",
		}, []string{"channel"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "frames_total",
			Help:      "Frames delivered by the deframer",
		}, []string{"channel"}),
		fcsErrors: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "fcs_errors_total",
			Help:      "Frames discarded because the frame check sequence was wrong",
		}, []string{"channel"}),
		queueDrops: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "queue_drops_total",
			Help:      "Items discarded because a queue was full",
		}, []string{"channel", "queue"}),
		beacons: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "beacon_messages_total",
			Help:      "Beacon protocol messages decoded",
		}, []string{"channel"}),
		dcd: factory.NewGaugeVec(prometheus.GaugeOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "data_carrier_detect",
			Help:      "1 while the PLL is locked on to a signal",
		}, []string{"channel"}),
		audioLevel: factory.NewGaugeVec(prometheus.GaugeOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "audio_level",
			Help:      "Received audio level at the last frame",
		}, []string{"channel"}),
		clients: factory.NewGauge(prometheus.GaugeOpts{ //nolint:exhaustruct
			Namespace: "viperwolf",
			Name:      "kiss_tcp_clients",
			Help:      "Connected KISS TCP clients",
		}),
	}
}

// Counters for one channel, resolved once so the hot path doesn't
// look up labels.
type channelMetrics struct {
	samples    prometheus.Counter
	bits       prometheus.Counter
	frames     prometheus.Counter
	fcsErrors  prometheus.Counter
	bitDrops   prometheus.Counter
	frameDrops prometheus.Counter
	beacons    prometheus.Counter
	dcd        prometheus.Gauge
	audioLevel prometheus.Gauge
}

func (m *Metrics) forChannel(channel int) *channelMetrics {
	if m == nil {
		return nil
	}

	var ch = strconv.Itoa(channel)

	return &channelMetrics{
		samples:    m.samples.WithLabelValues(ch),
		bits:       m.bits.WithLabelValues(ch),
		frames:     m.frames.WithLabelValues(ch),
		fcsErrors:  m.fcsErrors.WithLabelValues(ch),
		bitDrops:   m.queueDrops.WithLabelValues(ch, "bits"),
		frameDrops: m.queueDrops.WithLabelValues(ch, "frames"),
		beacons:    m.beacons.WithLabelValues(ch),
		dcd:        m.dcd.WithLabelValues(ch),
		audioLevel: m.audioLevel.WithLabelValues(ch),
	}
}

func (m *Metrics) setClients(n int) {
	if m == nil {
		return
	}

	m.clients.Set(float64(n))
}

func (c *channelMetrics) addSamples(n int) {
	if c != nil {
		c.samples.Add(float64(n))
	}
}

func (c *channelMetrics) addBits(n int) {
	if c != nil {
		c.bits.Add(float64(n))
	}
}

func (c *channelMetrics) frame(level AudioLevel) {
	if c != nil {
		c.frames.Inc()
		c.audioLevel.Set(float64(level.Rec))
	}
}

func (c *channelMetrics) fcsError() {
	if c != nil {
		c.fcsErrors.Inc()
	}
}

func (c *channelMetrics) bitDropped() {
	if c != nil {
		c.bitDrops.Inc()
	}
}

func (c *channelMetrics) frameDropped() {
	if c != nil {
		c.frameDrops.Inc()
	}
}

func (c *channelMetrics) beacon() {
	if c != nil {
		c.beacons.Inc()
	}
}

func (c *channelMetrics) setDCD(on bool) {
	if c != nil {
		if on {
			c.dcd.Set(1)
		} else {
			c.dcd.Set(0)
		}
	}
}
