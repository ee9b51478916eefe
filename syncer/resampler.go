// Package syncer implements an asynchronous sample-rate converter: it
// resamples decoded blocks from the sender's nominal rate to the
// local device rate, pushes the result into the output ring, and runs
// a closed-loop controller that steers the conversion ratio to keep
// the ring fill near its setpoint.
package syncer

import (
	"math"
	"sync/atomic"
)

// linearSRC is a continuously-retunable linear-interpolation sample
// rate converter: unlike a one-shot InputRate/OutputRate resampler
// fixed at construction, its ratio can change between calls without
// discontinuity.
type linearSRC struct {
	channels int
	fout     float64

	ratioBits atomic.Uint64 // math.Float64bits(fin/fout); read once per process call

	pos  float64   // fractional input position carried across calls
	last []float32 // last input frame, for left-boundary interpolation
}

// newLinearSRC creates a converter for the given channel count,
// initially tuned to fin/fout.
func newLinearSRC(channels int, fin, fout float64) *linearSRC {
	s := &linearSRC{
		channels: channels,
		fout:     fout,
		last:     make([]float32, channels),
	}
	s.ratioBits.Store(math.Float64bits(fin / fout))
	return s
}

// changeRate retunes the converter's target input rate. Safe to call
// concurrently with process; the new ratio takes effect on the next
// process call, never mid-frame.
func (s *linearSRC) changeRate(newFin float64) {
	s.ratioBits.Store(math.Float64bits(newFin / s.fout))
}

// process resamples one interleaved input frame block (frameCount
// frames of s.channels samples each) and returns the interleaved
// output. Output length varies call to call as the ratio is retuned.
func (s *linearSRC) process(input []float32, frameCount int) []float32 {
	ratio := math.Float64frombits(s.ratioBits.Load())

	out := make([]float32, 0, int(float64(frameCount)/ratio)+2)
	for s.pos < float64(frameCount) {
		idx := int(s.pos)
		frac := float32(s.pos - float64(idx))
		for ch := 0; ch < s.channels; ch++ {
			a := s.sampleAt(input, idx, ch, frameCount)
			b := s.sampleAt(input, idx+1, ch, frameCount)
			out = append(out, a+frac*(b-a))
		}
		s.pos += ratio
	}
	s.pos -= float64(frameCount)

	if frameCount > 0 {
		for ch := 0; ch < s.channels; ch++ {
			s.last[ch] = input[(frameCount-1)*s.channels+ch]
		}
	}
	return out
}

func (s *linearSRC) sampleAt(input []float32, idx, ch, frameCount int) float32 {
	switch {
	case idx < 0:
		return s.last[ch]
	case idx >= frameCount:
		return input[(frameCount-1)*s.channels+ch]
	default:
		return input[idx*s.channels+ch]
	}
}
