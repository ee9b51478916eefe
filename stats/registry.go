// Package stats implements the process-global atomic stats registry
// shared between the network threads, the decode thread, and the
// realtime audio callback.
//
// Every field is an individually atomic scalar or array element. There
// are no locks: readers may observe a slightly inconsistent snapshot
// across fields (one counter updated, a sibling not yet), but never a
// torn individual scalar.
package stats

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// StreamMeterBins is the width of the streamMeter histogram.
	StreamMeterBins = 64
	// BlockTimingRing is the depth of the callback jitter history.
	BlockTimingRing = 128
)

// ChannelStats accounts for a single logical channel's SBN bookkeeping
// and codec health.
type ChannelStats struct {
	DupBlockCount   atomic.Uint64
	OooBlockCount   atomic.Uint64
	CodecErrorCount atomic.Uint64
	CrcFailCount    atomic.Uint64
}

// EndpointStats accounts for one secure-transport endpoint.
type EndpointStats struct {
	BytesIn    atomic.Uint64
	BytesOut   atomic.Uint64
	Open       atomic.Bool
	Congested  atomic.Bool
	LastSbn    atomic.Uint32 // stores the last observed SBN as uint32 for atomicity
	HasLastSbn atomic.Bool
}

// AudioStats accounts for the audio output bridge and the syncer's
// closed-loop controller.
type AudioStats struct {
	BufferUnderrunCount atomic.Uint64
	AudioLoopXrunCount  atomic.Uint64
	StreamBufferPos     atomic.Uint64 // most recent, unfiltered ring fill observed by the callback
	filteredFillBits    atomic.Uint64 // math.Float64bits of the EWMA-filtered ring fill gauge

	streamMeterBins [StreamMeterBins]atomic.Uint64
	blockTimingRing [BlockTimingRing]atomic.Int64 // nanoseconds between callbacks
	blockTimingHead atomic.Uint64
}

// StoreFilteredFill records the EWMA-filtered ring fill gauge computed
// by the output bridge on every callback. The syncer controller steers
// on this rather than the raw StreamBufferPos so per-callback jitter
// doesn't feed straight into the resampling ratio.
func (a *AudioStats) StoreFilteredFill(v float64) {
	a.filteredFillBits.Store(math.Float64bits(v))
}

// FilteredFill reads the current EWMA-filtered ring fill gauge.
func (a *AudioStats) FilteredFill() float64 {
	return math.Float64frombits(a.filteredFillBits.Load())
}

// AddStreamMeterBin increments a bucket of the stream-meter histogram.
func (a *AudioStats) AddStreamMeterBin(i int) {
	a.streamMeterBins[i%StreamMeterBins].Add(1)
}

// StreamMeterBin reads a single bucket.
func (a *AudioStats) StreamMeterBin(i int) uint64 {
	return a.streamMeterBins[i%StreamMeterBins].Load()
}

// RecordBlockTiming appends a callback-to-callback interval to the
// jitter ring, overwriting the oldest entry.
func (a *AudioStats) RecordBlockTiming(d time.Duration) {
	idx := a.blockTimingHead.Add(1) - 1
	a.blockTimingRing[idx%BlockTimingRing].Store(int64(d))
}

// BlockTiming reads raw slot i (modulo BlockTimingRing) of the jitter
// ring. Slot numbers are fixed positions, not offsets from the write
// head: write n lands in slot n%BlockTimingRing.
func (a *AudioStats) BlockTiming(i int) time.Duration {
	return time.Duration(a.blockTimingRing[i%BlockTimingRing].Load())
}

// Registry is the fixed schema of process-wide counters and gauges.
type Registry struct {
	Channel   ChannelStats
	Endpoints []EndpointStats
	Audio     AudioStats
}

// NewRegistry allocates a registry sized for n endpoints. All fields
// start zeroed; atomic.Uint64/Bool zero values are already valid.
func NewRegistry(endpointCount int) *Registry {
	return &Registry{
		Endpoints: make([]EndpointStats, endpointCount),
	}
}

// Global is the process-wide stats registry. It is replaced wholesale
// at init time by receiver.New once the endpoint count is known; the
// audio callback and network threads never need to discover it beyond
// a single pointer read.
var Global = NewRegistry(1)

// Init resets Global to a freshly zeroed registry sized for n
// endpoints. Must be called once during process init, before any
// thread begins touching stats.
func Init(endpointCount int) {
	Global = NewRegistry(endpointCount)
}

// Snapshot is a point-in-time, non-atomic copy of the registry's
// values, suitable for serialization by an external telemetry
// consumer. Fields may be mutually inconsistent (see package doc).
type Snapshot struct {
	DupBlockCount   uint64
	OooBlockCount   uint64
	CodecErrorCount uint64
	CrcFailCount    uint64

	Endpoints []EndpointSnapshot

	BufferUnderrunCount uint64
	AudioLoopXrunCount  uint64
	StreamBufferPos     uint64
	FilteredFill        float64
}

// EndpointSnapshot is the per-endpoint portion of Snapshot.
type EndpointSnapshot struct {
	BytesIn   uint64
	BytesOut  uint64
	Open      bool
	Congested bool
}

// Snapshot copies the current field values without any cross-field
// consistency guarantee.
func (r *Registry) Snapshot() Snapshot {
	eps := make([]EndpointSnapshot, len(r.Endpoints))
	for i := range r.Endpoints {
		eps[i] = EndpointSnapshot{
			BytesIn:   r.Endpoints[i].BytesIn.Load(),
			BytesOut:  r.Endpoints[i].BytesOut.Load(),
			Open:      r.Endpoints[i].Open.Load(),
			Congested: r.Endpoints[i].Congested.Load(),
		}
	}
	return Snapshot{
		DupBlockCount:       r.Channel.DupBlockCount.Load(),
		OooBlockCount:       r.Channel.OooBlockCount.Load(),
		CodecErrorCount:     r.Channel.CodecErrorCount.Load(),
		CrcFailCount:        r.Channel.CrcFailCount.Load(),
		Endpoints:           eps,
		BufferUnderrunCount: r.Audio.BufferUnderrunCount.Load(),
		AudioLoopXrunCount:  r.Audio.AudioLoopXrunCount.Load(),
		StreamBufferPos:     r.Audio.StreamBufferPos.Load(),
		FilteredFill:        r.Audio.FilteredFill(),
	}
}
