package receiver

import (
	"fmt"

	"github.com/redpath-audio/rxcore/codec"
	"github.com/redpath-audio/rxcore/config"
	"github.com/redpath-audio/rxcore/demux"
	"github.com/redpath-audio/rxcore/framer"
	"github.com/redpath-audio/rxcore/output"
	"github.com/redpath-audio/rxcore/ring"
	"github.com/redpath-audio/rxcore/syncer"
	"github.com/redpath-audio/rxcore/transport"
	"github.com/sirupsen/logrus"
)

// New constructs every subsystem from cfg and opens the transport,
// which starts the receive threads; it does not start the syncer
// controller or the audio device — call Start for that. Start also
// pre-fills the ring with half its capacity in silence before the
// audio device starts.
func New(cfg *config.Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	private, peer, err := parseKeys(cfg)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	r := ring.NewSampleRing(ringCapacity(cfg))

	fin := nominalInputRate(cfg)
	fout := float64(cfg.Audio.IOSampleRate)
	channels := cfg.Audio.NetworkChannelCount

	syncerInst := syncer.New(fin, fout, channels, r)
	controller := syncer.NewController(syncerInst, r.Capacity(), fin, syncer.DefaultControllerConfig())

	packetHandler := codec.NewPacketHandler(newCodecDecoder(cfg), syncerInst, nil)
	framerDecoder := framer.NewDecoder(cfg.Opus.MaxPacketSize, packetHandler)
	packetHandler.SetFramer(framerDecoder)

	fecDecoder := demux.AllSymbolsDecoder{}
	channel := demux.NewChannel(
		audioChannelID,
		cfg.FEC.SourceSymbolsPerBlock,
		cfg.FEC.SymbolLen,
		fecDecoder,
		&blockToFramer{framer: framerDecoder},
		framerDecoder,
	)
	demultiplexer := demux.NewDemultiplexer(channel)

	bridge := output.Init(r, channels)

	endpoints := make([]transport.EndpointConfig, len(cfg.Endpoints.Endpoints))
	for i, ep := range cfg.Endpoints.Endpoints {
		endpoints[i] = transport.EndpointConfig{Interface: ep.Interface}
	}
	multi, err := transport.Open(transport.Config{
		Endpoints:       endpoints,
		LocalPrivateKey: private,
		PeerPublicKey:   peer,
	}, demultiplexer)
	if err != nil {
		return nil, fmt.Errorf("receiver: opening transport: %w", err)
	}

	return &Context{
		Config:     cfg,
		Ring:       r,
		Codec:      packetHandler.Decoder(),
		Framer:     framerDecoder,
		Syncer:     syncerInst,
		Controller: controller,
		Channel:    channel,
		Demux:      demultiplexer,
		Bridge:     bridge,
		Transport:  multi,
	}, nil
}

// Start pre-fills the ring to half capacity of silence, starts the
// closed-loop syncer controller, and opens the audio device — the
// audio_start step. Receive threads are already running once New
// returns (transport.Open spawns them): the decode thread may begin
// producing before the stream starts.
func (c *Context) Start() error {
	prefill := make([]float32, c.Ring.Capacity()/2)
	c.Ring.EnqueueBatch(prefill)

	c.Controller.Run()

	if err := c.Bridge.Start(c.Config.Audio.IOSampleRate, c.Config.Audio.DeviceName); err != nil {
		return fmt.Errorf("receiver: starting output: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Context.Start",
	}).Info("Receiver pipeline started")
	return nil
}

// Deinit shuts the pipeline down best-effort: no per-operation
// cancellation exists, so this just closes resources and lets threads
// observe closed sockets/devices at their next iteration boundary.
func (c *Context) Deinit() error {
	c.Controller.Stop()

	var firstErr error
	if err := c.Transport.Deinit(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Bridge.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
