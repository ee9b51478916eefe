package codec

// SampleBlockHandler receives one successfully decoded block of
// interleaved float samples, to be consumed by the syncer.
type SampleBlockHandler interface {
	OnSamples(samples []float32)
}

// Resetter is implemented by the upstream framer so a codec failure
// can force it to abandon its current packet accumulation.
type Resetter interface {
	Reset()
}

// PacketHandler adapts a framer.Decoder's delivered packets into
// decoded sample blocks, implementing framer.PacketHandler. On
// decode failure it drops the packet and resets the upstream framer;
// the error counter is incremented by the Decoder itself.
type PacketHandler struct {
	decoder Decoder
	handler SampleBlockHandler
	framer  Resetter
}

// NewPacketHandler wires a codec.Decoder to its downstream sample
// handler and the upstream framer it may need to reset. framer may be
// nil at construction and set later via SetFramer, to break the
// circular reference between a framer.Decoder and the handler it
// delivers packets to.
func NewPacketHandler(decoder Decoder, handler SampleBlockHandler, framer Resetter) *PacketHandler {
	return &PacketHandler{decoder: decoder, handler: handler, framer: framer}
}

// SetFramer assigns the upstream framer to reset on decode failure.
func (p *PacketHandler) SetFramer(framer Resetter) {
	p.framer = framer
}

// Decoder returns the underlying codec.Decoder, for callers that need
// to expose it independently of the packet-handling wiring.
func (p *PacketHandler) Decoder() Decoder {
	return p.decoder
}

// OnPacket implements framer.PacketHandler.
func (p *PacketHandler) OnPacket(pkt []byte) {
	samples, err := p.decoder.Decode(pkt)
	if err != nil {
		if p.framer != nil {
			p.framer.Reset()
		}
		return
	}
	p.handler.OnSamples(samples)
}
