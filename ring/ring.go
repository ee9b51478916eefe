// Package ring implements the lock-free single-producer/single-consumer
// sample ring that bridges the decode thread to the realtime audio
// callback.
//
// There is exactly one producer (the decode thread, via Enqueue) and
// exactly one consumer (the audio callback, via Dequeue). Neither side
// ever blocks or allocates. Callers are responsible for checking Size
// against Capacity (producer) or zero (consumer) before calling — the
// ring itself performs no bounds checking, per its contract.
package ring

import "sync/atomic"

// SampleRing is a lock-free SPSC ring buffer of float32 audio samples.
//
// Thread assignment:
//   - writePos: producer only
//   - readPos: consumer only
//   - buf: immutable in identity after construction
//
// Capacity storage is rounded up to the next power of two; Capacity()
// reports only the logical, caller-visible size R, never the rounded
// allocation, per the "capacity vs logical size" design note.
type SampleRing struct {
	// writePos and readPos sit on separate cache lines so the producer
	// and consumer never false-share.
	writePos atomic.Uint64
	_        [56]byte
	readPos  atomic.Uint64
	_        [56]byte

	buf      []float32
	mask     uint64
	logicalR int
}

// NewSampleRing creates a ring with logical capacity R, backed by an
// allocation of next_pow2(R) slots.
func NewSampleRing(r int) *SampleRing {
	if r <= 0 {
		panic("ring: capacity must be positive")
	}
	size := 1
	for size < r {
		size <<= 1
	}
	return &SampleRing{
		buf:      make([]float32, size),
		mask:     uint64(size - 1),
		logicalR: r,
	}
}

// Capacity returns the logical capacity R (not the power-of-2 allocation).
func (r *SampleRing) Capacity() int {
	return r.logicalR
}

// Size returns a snapshot of the number of occupied slots.
func (r *SampleRing) Size() int {
	w := r.writePos.Load()
	rp := r.readPos.Load()
	return int(w - rp)
}

// Enqueue writes one sample. Caller must have already verified
// Size() < Capacity(); enqueueing past capacity silently corrupts the
// stream (per the ring's no-failure-mode contract).
func (r *SampleRing) Enqueue(v float32) {
	w := r.writePos.Load()
	r.buf[w&r.mask] = v
	r.writePos.Store(w + 1)
}

// Dequeue reads one sample. Caller must have already verified
// Size() > 0.
func (r *SampleRing) Dequeue() float32 {
	rp := r.readPos.Load()
	v := r.buf[rp&r.mask]
	r.readPos.Store(rp + 1)
	return v
}

// EnqueueBatch writes as many of samples as fit without exceeding
// Capacity(), returning the number actually written. It never blocks.
func (r *SampleRing) EnqueueBatch(samples []float32) int {
	free := r.logicalR - r.Size()
	n := len(samples)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.Enqueue(samples[i])
	}
	return n
}

// DequeueBatch reads up to len(out) samples, zero-filling any deficit,
// and returns the number of real (non-zero-filled) samples read.
func (r *SampleRing) DequeueBatch(out []float32) int {
	avail := r.Size()
	n := len(out)
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		out[i] = r.Dequeue()
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}
