package syncer

import (
	"github.com/redpath-audio/rxcore/ring"
	"github.com/sirupsen/logrus"
)

// Overrun is returned when enqueueing a resampled block would exceed
// the ring's capacity.
const Overrun = -2

// Syncer resamples decoded sample blocks to the local device rate and
// enqueues the result into the output ring.
type Syncer struct {
	src      *linearSRC
	ring     *ring.SampleRing
	channels int
}

// New creates a syncer resampling from fin to fout, writing into
// ring. channels is the interleaving width of blocks passed to
// OnSamples/EnqueueBuf.
func New(fin, fout float64, channels int, r *ring.SampleRing) *Syncer {
	return &Syncer{
		src:      newLinearSRC(channels, fin, fout),
		ring:     r,
		channels: channels,
	}
}

// OnSamples implements codec.SampleBlockHandler: it treats a decoded
// block as one interleaved frame of frameSize = len(samples)/channels
// and enqueues the resampled result into the ring.
func (s *Syncer) OnSamples(samples []float32) {
	if s.channels == 0 {
		return
	}
	frameCount := len(samples) / s.channels
	s.EnqueueBuf(samples, frameCount)
}

// EnqueueBuf resamples frameCount frames of interleaved samples and
// pushes the result into the ring. Returns Overrun if the ring cannot
// absorb the resampled output without exceeding capacity; nothing is
// enqueued in that case and the resampled block is dropped. OnSamples
// discards the return value: it does not wait for the ring to drain
// and keeps feeding the next block as it arrives.
func (s *Syncer) EnqueueBuf(samples []float32, frameCount int) int {
	out := s.src.process(samples, frameCount)

	free := s.ring.Capacity() - s.ring.Size()
	if len(out) > free {
		logrus.WithFields(logrus.Fields{
			"function": "Syncer.EnqueueBuf",
			"produced": len(out),
			"free":     free,
		}).Warn("Ring overrun, dropping resampled block")
		return Overrun
	}

	n := s.ring.EnqueueBatch(out)
	return n
}

// ChangeRate atomically retunes the converter's target input rate.
func (s *Syncer) ChangeRate(newFin float64) {
	s.src.changeRate(newFin)
}
