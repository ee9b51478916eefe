package demux

import (
	"errors"
	"fmt"
)

// ErrTruncatedHeader is returned when a cleartext payload is too short
// to contain even the symbol header.
var ErrTruncatedHeader = errors.New("demux: payload shorter than symbol header")

// ErrUnknownChannel is returned when a payload names a channel id the
// Demultiplexer was not configured with.
var ErrUnknownChannel = errors.New("demux: unknown channel id")

// Demultiplexer routes cleartext payloads (after the transport layer
// has stripped the synthetic IPv4 header) to the right Channel by
// chId.
type Demultiplexer struct {
	channels map[uint8]*Channel
}

// NewDemultiplexer builds a router over the given channels, keyed by
// their configured id. This core registers exactly one (the audio
// channel), but the demux itself is channel-polymorphic.
func NewDemultiplexer(channels ...*Channel) *Demultiplexer {
	m := make(map[uint8]*Channel, len(channels))
	for _, c := range channels {
		m[c.id] = c
	}
	return &Demultiplexer{channels: m}
}

// OnPacket implements transport.OnPacket: it parses the symbol header
// (chId, sbn, symbolIndex) and feeds the remaining bytes to the named
// channel. epIndex is accepted to satisfy the transport.OnPacket
// capability but is not otherwise used — symbol routing does not
// depend on which endpoint a redundant copy arrived on.
func (d *Demultiplexer) OnPacket(buf []byte, epIndex int) {
	_ = epIndex
	if err := d.Dispatch(buf); err != nil {
		// Malformed headers are a protocol error and are dropped
		// silently at this layer (no per-malformed-header counter is
		// tracked in the stats schema).
		return
	}
}

// Dispatch parses one cleartext payload and routes it to its channel.
func (d *Demultiplexer) Dispatch(buf []byte) error {
	if len(buf) < symbolHeaderLen {
		return ErrTruncatedHeader
	}
	chID := buf[0]
	sbn := buf[1]
	symbolIndex := int(buf[2])
	payload := buf[symbolHeaderLen:]

	ch, ok := d.channels[chID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, chID)
	}
	ch.FeedSymbol(sbn, symbolIndex, payload)
	return nil
}
