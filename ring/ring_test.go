package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleRingRoundsToPowerOfTwo(t *testing.T) {
	r := NewSampleRing(100)
	assert.Equal(t, 100, r.Capacity())
	assert.Equal(t, uint64(127), r.mask) // next_pow2(100) = 128
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	r := NewSampleRing(8)
	for i := 0; i < 8; i++ {
		r.Enqueue(float32(i))
	}
	require.Equal(t, 8, r.Size())
	for i := 0; i < 8; i++ {
		assert.Equal(t, float32(i), r.Dequeue())
	}
	assert.Equal(t, 0, r.Size())
}

func TestDequeueBatchZeroFillsDeficit(t *testing.T) {
	r := NewSampleRing(8)
	r.Enqueue(1)
	r.Enqueue(2)
	out := make([]float32, 5)
	n := r.DequeueBatch(out)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2, 0, 0, 0}, out)
}

func TestEnqueueBatchStopsAtCapacity(t *testing.T) {
	r := NewSampleRing(4)
	n := r.EnqueueBatch([]float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, r.Size())
}

// TestConcurrentProducerConsumerPreservesOrder exercises the one
// producer / one consumer concurrency contract: the dequeued sequence
// must be a prefix of the enqueued sequence.
func TestConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	r := NewSampleRing(64)
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for r.Size() >= r.Capacity() {
			}
			r.Enqueue(float32(i))
		}
	}()

	got := make([]float32, 0, total)
	go func() {
		defer wg.Done()
		for len(got) < total {
			if r.Size() > 0 {
				got = append(got, r.Dequeue())
			}
		}
	}()

	wg.Wait()
	require.Len(t, got, total)
	for i, v := range got {
		assert.Equal(t, float32(i), v)
	}
}
