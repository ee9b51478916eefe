// Package receiver wires the pipeline components into one running
// receive-side pipeline. It passes an explicit Context into each
// subsystem at construction rather than relying on package-level
// state, beyond the process-global stats registry, which is
// intentionally lock-free shared state.
package receiver

import (
	"github.com/redpath-audio/rxcore/codec"
	"github.com/redpath-audio/rxcore/config"
	"github.com/redpath-audio/rxcore/crypto"
	"github.com/redpath-audio/rxcore/demux"
	"github.com/redpath-audio/rxcore/framer"
	"github.com/redpath-audio/rxcore/output"
	"github.com/redpath-audio/rxcore/ring"
	"github.com/redpath-audio/rxcore/syncer"
	"github.com/redpath-audio/rxcore/transport"
)

// audioChannelID is the demux channel id for the single audio stream
// this pipeline covers.
const audioChannelID uint8 = 0

// Context groups every subsystem constructed for one receiver
// instance, so shutdown and inspection have a single owning value
// instead of scattered package globals.
type Context struct {
	Config *config.Config

	Ring       *ring.SampleRing
	Codec      codec.Decoder
	Framer     *framer.Decoder
	Syncer     *syncer.Syncer
	Controller *syncer.Controller
	Channel    *demux.Channel
	Demux      *demux.Demultiplexer
	Bridge     *output.Bridge
	Transport  *transport.MultiEndpoint
}

// blockToFramer adapts a demux.Channel's recovered block delivery
// into the framer's byte stream, implementing demux.BlockHandler.
// This runs under the channel's per-channel lock, held for the
// duration of the callback, so the framer never needs its own lock.
type blockToFramer struct {
	framer *framer.Decoder
}

func (b *blockToFramer) OnBlock(slab []byte, sbn uint8) {
	b.framer.Feed(slab)
}

func nominalInputRate(cfg *config.Config) float64 {
	if cfg.Audio.Encoding == "PCM" {
		return float64(cfg.PCM.SampleRate)
	}
	return float64(cfg.Opus.SampleRate)
}

func ringCapacity(cfg *config.Config) int {
	if cfg.Audio.Encoding == "PCM" {
		return cfg.PCM.DecodeRingLength
	}
	return cfg.Opus.DecodeRingLength
}

func newCodecDecoder(cfg *config.Config) codec.Decoder {
	channels := cfg.Audio.NetworkChannelCount
	if cfg.Audio.Encoding == "PCM" {
		return codec.NewPCMDecoder(channels, cfg.PCM.FrameSize)
	}
	return codec.NewOpusDecoder(channels, cfg.Opus.FrameSize)
}

func parseKeys(cfg *config.Config) (private, peer [32]byte, err error) {
	private, err = crypto.ParseBase64Key(cfg.Root.PrivateKey)
	if err != nil {
		return private, peer, err
	}
	peer, err = crypto.ParseBase64Key(cfg.Root.PeerPublicKey)
	return private, peer, err
}
