package viperwolf

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameCollector is a FrameSink that keeps everything.
type frameCollector struct {
	frames []ReceivedFrame
}

func (c *frameCollector) SendFrame(rf ReceivedFrame) error {
	c.frames = append(c.frames, rf)

	return nil
}

func toS16LE(samples []float64) []byte {
	var raw = make([]int16, len(samples))
	for i, s := range samples {
		raw[i] = int16(math.Round(s * 32767))
	}

	return s16le(raw...)
}

func newTestReceiver(t *testing.T, r io.Reader, p afskParams) *Receiver {
	t.Helper()

	var modem, err = NewMultiModem(1, []ChannelConfig{channelConfig(p, ProfileAmplitude)}, 0, quietLogger(), nil)
	require.NoError(t, err)

	src, err := NewRawSource(r, p.rate, 1)
	require.NoError(t, err)

	recv, err := NewReceiver(src, modem, quietLogger(), nil)
	require.NoError(t, err)

	return recv
}

func TestReceiver_Run(t *testing.T) {
	var p = afsk1200(48000)
	var audio = toS16LE(genAFSK(t, p, []byte("one"+testFrameText), []byte("two"+testFrameText)))

	var recv = newTestReceiver(t, bytes.NewReader(audio), p)

	var first, second frameCollector
	recv.AddSink(&first)
	recv.AddSink(&second)

	require.NoError(t, recv.Run(context.Background()))

	require.Len(t, first.frames, 2)
	assert.Equal(t, "one"+testFrameText, string(first.frames[0].Data))
	assert.Equal(t, "two"+testFrameText, string(first.frames[1].Data))
	assert.Equal(t, first.frames, second.frames)
}

func TestReceiver_Gain(t *testing.T) {
	var p = afsk1200(48000)
	var audio = toS16LE(genAFSK(t, p, []byte(testFrameText)))

	var recv = newTestReceiver(t, bytes.NewReader(audio), p)
	recv.SetGain(0)

	var sink frameCollector
	recv.AddSink(&sink)

	require.NoError(t, recv.Run(context.Background()))
	assert.Empty(t, sink.frames)
}

func TestReceiver_Beacons(t *testing.T) {
	var p = afsk1200(48000)
	var audio = toS16LE(genAFSK(t, p, []byte(testFrameText)))

	var recv = newTestReceiver(t, bytes.NewReader(audio), p)
	require.NoError(t, recv.EnableBeacons(BeaconConfig{}, 0)) //nolint:exhaustruct

	var sink frameCollector
	recv.AddSink(&sink)

	var heard []BeaconMessage
	recv.OnBeacon(func(msg BeaconMessage) { heard = append(heard, msg) })

	// Frames still come through with the beacon decoders taking bits.
	require.NoError(t, recv.Run(context.Background()))
	assert.Len(t, sink.frames, 1)

	heard = nil
	recv.beacon(BeaconMessage{Channel: 0, Text: "direct"}) //nolint:exhaustruct
	require.Len(t, heard, 1)
	assert.Equal(t, "direct", heard[0].Text)
}

func TestReceiver_StopsWhenCancelled(t *testing.T) {
	var p = afsk1200(48000)
	var pr, pw = io.Pipe()

	var recv = newTestReceiver(t, pr, p)

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- recv.Run(ctx) }()

	_, err := pw.Write(toS16LE(make([]float64, 4800)))
	require.NoError(t, err)

	cancel()

	// A blocked read only ends when the source does.
	pw.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewReceiver_ChannelMismatch(t *testing.T) {
	var modem, err = NewMultiModem(1, []ChannelConfig{channelConfig(afsk1200(48000), ProfileAmplitude)}, 0, quietLogger(), nil)
	require.NoError(t, err)

	src, err := NewRawSource(bytes.NewReader(nil), 48000, 2)
	require.NoError(t, err)

	_, err = NewReceiver(src, modem, quietLogger(), nil)
	assert.Error(t, err)
}

func TestDrainQueue_FinishesAfterAudio(t *testing.T) {
	var q = NewQueue[int](10)
	for i := range 5 {
		q.Put(i)
	}

	var audioDone = make(chan struct{})
	close(audioDone)

	var got []int
	drainQueue(context.Background(), q, audioDone, func(i int) { got = append(got, i) })

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestDrainQueue_Cancelled(t *testing.T) {
	var q = NewQueue[int](10)

	var ctx, cancel = context.WithCancel(context.Background())

	var got = make(chan int, 10)
	var done = make(chan struct{})
	go func() {
		drainQueue(ctx, q, make(chan struct{}), func(i int) { got <- i })
		close(done)
	}()

	q.Put(7)
	assert.Equal(t, 7, <-got)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drainQueue did not return")
	}
}

func TestFrameMonitor(t *testing.T) {
	var buf bytes.Buffer
	var m = NewFrameMonitor(NewLogger(&buf, "info"), false)

	require.NoError(t, m.SendFrame(ReceivedFrame{Channel: 1, Data: []byte("hello\r"), Level: AudioLevel{Rec: 50, Mark: 25, Space: 27}})) //nolint:exhaustruct

	assert.Contains(t, buf.String(), "kind=rec")
	assert.Contains(t, buf.String(), "audio_level=")
	assert.Contains(t, buf.String(), "50(25/27)")
	assert.Contains(t, buf.String(), "hello<0x0d>")

	buf.Reset()
	var hexMonitor = NewFrameMonitor(NewLogger(&buf, "info"), true)
	require.NoError(t, hexMonitor.SendFrame(ReceivedFrame{Data: []byte("hello")})) //nolint:exhaustruct

	assert.Contains(t, buf.String(), "68 65 6c 6c 6f")
}
