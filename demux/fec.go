// Package demux implements the packet demultiplexer and FEC block
// assembly: it parses a small per-symbol header, routes symbols to
// the right channel, buffers them until a block is decodable, and
// suppresses duplicate or out-of-order blocks using the 8-bit modular
// SBN sequence.
package demux

import "errors"

// ErrNotEnoughSymbols names the case of a block with fewer than K
// distinct symbols. FECDecoder.Decode reports that case by returning
// ok=false; no function in this package returns this error value.
var ErrNotEnoughSymbols = errors.New("demux: not enough symbols to decode block")

// FECDecoder reconstructs a K*L-byte payload slab from a block's
// buffered source symbols. The concrete FEC codec (RaptorQ in the
// reference system) is an external, assumed-conforming collaborator —
// this interface is the seam it plugs into.
type FECDecoder interface {
	// Decode attempts to reconstruct the K*L payload slab from
	// whatever symbols have been collected for a block. symbols maps
	// symbol index (0..K-1) to its L-byte payload; only indices
	// present in the map have been received. It returns ok=false if
	// there are not yet enough symbols to reconstruct the block.
	Decode(symbols map[int][]byte, k, l int) (slab []byte, ok bool)
}

// AllSymbolsDecoder is a minimal reference FECDecoder that requires
// every one of the K source symbols to be present (no actual erasure
// recovery). It exists for testability and as the seam's default
// implementation; a production deployment supplies a real RaptorQ
// decoder satisfying the same interface.
type AllSymbolsDecoder struct{}

// Decode concatenates symbols 0..k-1 in order if all are present.
func (AllSymbolsDecoder) Decode(symbols map[int][]byte, k, l int) ([]byte, bool) {
	if len(symbols) < k {
		return nil, false
	}
	slab := make([]byte, 0, k*l)
	for i := 0; i < k; i++ {
		sym, ok := symbols[i]
		if !ok || len(sym) != l {
			return nil, false
		}
		slab = append(slab, sym...)
	}
	return slab, true
}
