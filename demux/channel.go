package demux

import (
	"fmt"
	"sync"

	"github.com/redpath-audio/rxcore/stats"
	"github.com/sirupsen/logrus"
)

// symbolHeaderLen is the size of the small per-symbol header this
// demultiplexer parses: channel id, block sequence number, and symbol
// index within the block.
const symbolHeaderLen = 3

// BlockHandler is the capability a channel consumes one decoded
// payload slab plus its SBN through.
type BlockHandler interface {
	OnBlock(slab []byte, sbn uint8)
}

// Resetter is implemented by the downstream framer so the demux can
// force a reset when a forward SBN jump means a block was skipped
// mid-packet.
type Resetter interface {
	Reset()
}

// Channel tracks one logical stream's SBN ordering state and buffers
// in-flight FEC symbols until a block is decodable. This core uses
// exactly one channel (audio), but the type itself is
// channel-polymorphic.
//
// A block spans K datagrams sharing one SBN: one FEC symbol per
// datagram. Ordering and dedup are therefore decided once per block,
// at the transition to a new SBN, not once per symbol — the 2nd..Kth
// symbols of a block always share blockSbn with the one already being
// assembled and must simply accumulate.
type Channel struct {
	id      uint8
	k, l    int
	decoder FECDecoder
	handler BlockHandler
	framer  Resetter

	mu         sync.Mutex
	hasBlock   bool
	blockSbn   uint8
	pending    map[int][]byte // symbol index -> payload, for the in-flight block
	delivered  bool           // blockSbn already decoded and handed to handler
	suppressed bool           // blockSbn dropped by a forward-jump reset, never decodes
}

// NewChannel constructs a channel with source-symbol count k, symbol
// length l, a FEC decoder, and the handler/framer it delivers to.
func NewChannel(id uint8, k, l int, decoder FECDecoder, handler BlockHandler, framer Resetter) *Channel {
	return &Channel{
		id:      id,
		k:       k,
		l:       l,
		decoder: decoder,
		handler: handler,
		framer:  framer,
		pending: make(map[int][]byte, k),
	}
}

// sbnDiff computes the modular distance from sbnLast to sbn:
// positive means forward, 0 means duplicate, negative means an
// old/out-of-order block.
func sbnDiff(sbnLast, sbn uint8) int {
	raw := int(sbnLast) - int(sbn)
	if raw > 128 {
		return 256 - int(sbnLast) + int(sbn)
	}
	return int(sbn) - int(sbnLast)
}

// FeedSymbol ingests one FEC source symbol for this channel. header
// must already have been parsed into sbn/symbolIndex by the caller
// (Demultiplexer.Dispatch); payload is the raw L-byte symbol body.
func (c *Channel) FeedSymbol(sbn uint8, symbolIndex int, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasBlock {
		c.beginBlock(sbn)
		c.storeSymbol(symbolIndex, payload)
		c.tryDecode(sbn)
		return
	}

	if sbn == c.blockSbn {
		// Another symbol of the block already being assembled (or
		// already delivered/suppressed) — not a new block, so no
		// ordering decision to make.
		if c.delivered {
			stats.Global.Channel.DupBlockCount.Add(1)
			return
		}
		if c.suppressed {
			return
		}
		c.storeSymbol(symbolIndex, payload)
		c.tryDecode(sbn)
		return
	}

	diff := sbnDiff(c.blockSbn, sbn)
	switch {
	case diff < 0:
		stats.Global.Channel.OooBlockCount.Add(1)
		return
	case diff > 1:
		// A forward jump means at least one block was lost. This
		// block itself begins mid-packet from the framer's point of
		// view and is never delivered, even if enough of its symbols
		// eventually arrive; only the reset is observable downstream.
		stats.Global.Channel.OooBlockCount.Add(uint64(diff - 1))
		logrus.WithFields(logrus.Fields{
			"function": "Channel.FeedSymbol",
			"channel":  c.id,
			"jump":     diff,
		}).Warn("Forward SBN jump, resetting framer")
		if c.framer != nil {
			c.framer.Reset()
		}
		c.beginBlock(sbn)
		c.suppressed = true
		return
	default: // diff == 1
		c.beginBlock(sbn)
		c.storeSymbol(symbolIndex, payload)
		c.tryDecode(sbn)
	}
}

func (c *Channel) beginBlock(sbn uint8) {
	c.hasBlock = true
	c.blockSbn = sbn
	c.pending = make(map[int][]byte, c.k)
	c.delivered = false
	c.suppressed = false
}

func (c *Channel) storeSymbol(symbolIndex int, payload []byte) {
	if symbolIndex < 0 || symbolIndex >= c.k {
		return
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.pending[symbolIndex] = buf
}

func (c *Channel) tryDecode(sbn uint8) {
	slab, ok := c.decoder.Decode(c.pending, c.k, c.l)
	if !ok {
		return
	}
	c.delivered = true
	c.handler.OnBlock(slab, sbn)
}

// String aids debugging/log fields.
func (c *Channel) String() string {
	return fmt.Sprintf("channel[%d]", c.id)
}
