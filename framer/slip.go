// Package framer implements a SLIP-style byte-stream framer: it
// converts a sequence of FEC-recovered payload slabs into a sequence
// of discrete codec packets, and the inverse encoding for completeness
// and round-trip testing.
package framer

import (
	"errors"

	"github.com/sirupsen/logrus"
)

const (
	delimiter byte = 0xC0
	escape    byte = 0xDB
	escEnd    byte = 0xDC // escape(delimiter)
	escEsc    byte = 0xDD // escape(escape)
)

// ErrInvalidEscape names the case of a byte following 0xDB that is
// neither 0xDC nor 0xDD. No function in this package returns it: the
// Decoder handles that case by abandoning the packet and resetting.
var ErrInvalidEscape = errors.New("framer: invalid SLIP escape sequence")

// PacketHandler receives each codec packet the decoder delivers.
type PacketHandler interface {
	OnPacket(pkt []byte)
}

// Decoder is the SLIP state machine, with a caller-settable packet
// handler.
type Decoder struct {
	maxPacketSize int
	handler       PacketHandler

	accum     []byte
	accumLen  int
	escActive bool
}

// NewDecoder creates a SLIP decoder that delivers reassembled packets
// of at most maxPacketSize bytes to handler.
func NewDecoder(maxPacketSize int, handler PacketHandler) *Decoder {
	return &Decoder{
		maxPacketSize: maxPacketSize,
		handler:       handler,
		accum:         make([]byte, maxPacketSize),
	}
}

// SetHandler assigns the packet handler. Split from NewDecoder so
// wiring code can break the circular reference between a Decoder and
// a codec.PacketHandler that needs to reset it back.
func (d *Decoder) SetHandler(handler PacketHandler) {
	d.handler = handler
}

// Feed processes one FEC-recovered payload slab, delivering zero or
// more codec packets to the handler as delimiters are crossed.
func (d *Decoder) Feed(slab []byte) {
	for _, b := range slab {
		d.feedByte(b)
	}
}

func (d *Decoder) feedByte(b byte) {
	if d.escActive {
		d.resolveEscape(b)
		return
	}

	switch b {
	case delimiter:
		if d.accumLen > 0 {
			pkt := make([]byte, d.accumLen)
			copy(pkt, d.accum[:d.accumLen])
			d.accumLen = 0
			d.handler.OnPacket(pkt)
		}
	case escape:
		d.escActive = true
	default:
		d.appendByte(b)
	}
}

func (d *Decoder) resolveEscape(b byte) {
	d.escActive = false
	switch b {
	case escEnd:
		d.appendByte(delimiter)
	case escEsc:
		d.appendByte(escape)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.resolveEscape",
			"byte":     b,
		}).Debug("Invalid SLIP escape, abandoning packet")
		d.Reset()
	}
}

func (d *Decoder) appendByte(b byte) {
	if d.accumLen >= d.maxPacketSize {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.appendByte",
		}).Debug("SLIP packet overflow, abandoning packet")
		d.Reset()
		return
	}
	d.accum[d.accumLen] = b
	d.accumLen++
}

// Reset abandons any partially accumulated packet. Called internally
// on protocol errors, and externally by the demultiplexer when a
// forward SBN jump means the next bytes begin mid-packet.
func (d *Decoder) Reset() {
	d.accumLen = 0
	d.escActive = false
}

// Encode applies the inverse SLIP transform to pkt, escaping 0xC0 and
//0xDB bytes. It does not append the trailing delimiter; callers
// append delimiter themselves between packets.
func Encode(pkt []byte) []byte {
	out := make([]byte, 0, len(pkt))
	for _, b := range pkt {
		switch b {
		case delimiter:
			out = append(out, escape, escEnd)
		case escape:
			out = append(out, escape, escEsc)
		default:
			out = append(out, b)
		}
	}
	return out
}
