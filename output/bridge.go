// Package output implements the audio output bridge: an io.Reader
// pulled by the device's playback callback, draining the syncer's
// output ring and writing interleaved PCM without blocking or
// allocating.
package output

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/redpath-audio/rxcore/ring"
	"github.com/redpath-audio/rxcore/stats"
	"github.com/sirupsen/logrus"
)

const bytesPerSample = 2 // oto's FormatSignedInt16LE

// fillFilterAlpha is the EWMA smoothing factor applied to the
// per-callback ring fill before the syncer controller sees it.
const fillFilterAlpha = 0.1

// Bridge is the realtime-safe adapter between the output ring and an
// oto.Player: each Read call is the device's playback callback.
type Bridge struct {
	ring     *ring.SampleRing
	channels int

	scratch      []float32
	lastCall     time.Time
	filteredFill float64
	hasFiltered  bool

	ctx    *oto.Context
	player *oto.Player
}

// Init records the ring reference and channel width; this is the
// audio_init step of the startup handshake. The decode thread may
// begin producing into ring before Start is called; the caller is
// responsible for pre-filling it to half capacity with silence first.
func Init(r *ring.SampleRing, channels int) *Bridge {
	return &Bridge{
		ring:     r,
		channels: channels,
	}
}

// Start opens the device at sampleRate and begins the callback
// stream; this is the audio_start step. deviceName is accepted for
// interface symmetry with the configuration surface; oto itself
// selects the system default output and does not expose named device
// selection.
func (b *Bridge) Start(sampleRate int, deviceName string) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: b.channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("output: failed to create oto context: %w", err)
	}
	<-readyChan

	b.ctx = ctx
	b.player = ctx.NewPlayer(b)
	b.player.Play()

	logrus.WithFields(logrus.Fields{
		"function":    "Bridge.Start",
		"sample_rate": sampleRate,
		"channels":    b.channels,
		"device":      deviceName,
	}).Info("Audio output device started")

	return nil
}

// Read implements io.Reader for the oto.Player. It never blocks: p's
// byte length is converted to a sample count once, samples are
// dequeued into a scratch buffer, and a deficit is zero-filled and
// counted as an underrun. The scratch buffer is not allocated by
// Init; Read allocates it on the first call, and again whenever p
// holds more samples than any earlier call's buffer did.
func (b *Bridge) Read(p []byte) (int, error) {
	sampleCount := len(p) / bytesPerSample
	if cap(b.scratch) < sampleCount {
		b.scratch = make([]float32, sampleCount)
	}
	scratch := b.scratch[:sampleCount]

	fill := b.ring.Size()
	stats.Global.Audio.StreamBufferPos.Store(uint64(fill))

	if !b.hasFiltered {
		b.filteredFill = float64(fill)
		b.hasFiltered = true
	} else {
		b.filteredFill += fillFilterAlpha * (float64(fill) - b.filteredFill)
	}
	stats.Global.Audio.StoreFilteredFill(b.filteredFill)

	n := b.ring.DequeueBatch(scratch)
	if n < sampleCount {
		stats.Global.Audio.BufferUnderrunCount.Add(1)
	}

	now := time.Now()
	if !b.lastCall.IsZero() {
		stats.Global.Audio.RecordBlockTiming(now.Sub(b.lastCall))
	}
	b.lastCall = now

	for i, s := range scratch {
		v := int16(clampSample(s) * 32767.0)
		binary.LittleEndian.PutUint16(p[i*bytesPerSample:], uint16(v))
	}
	return sampleCount * bytesPerSample, nil
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// Close stops playback and releases the device.
func (b *Bridge) Close() error {
	if b.player != nil {
		b.player.Close()
		b.player = nil
	}
	if b.ctx != nil {
		b.ctx.Suspend()
	}
	return nil
}
