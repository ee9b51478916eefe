package receiver

import (
	"testing"

	"github.com/redpath-audio/rxcore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			Encoding:            "OPUS",
			NetworkChannelCount: 1,
			IOSampleRate:        48000,
			DeviceName:          "default",
		},
		Opus: config.OpusConfig{
			FrameSize:        960,
			MaxPacketSize:    1500,
			DecodeRingLength: 4096,
			SampleRate:       48000,
		},
		PCM: config.PCMConfig{
			SampleRate:       48000,
			FrameSize:        960,
			DecodeRingLength: 4096,
		},
		FEC: config.FECConfig{
			SourceSymbolsPerBlock: 10,
			SymbolLen:             128,
		},
		Endpoints: config.EndpointsConfig{
			EndpointCount: 1,
			Endpoints:     []config.EndpointConfig{{Interface: "127.0.0.1:0"}},
		},
		Root: config.RootConfig{
			PrivateKey:    "cHJpdmF0ZWtleXByaXZhdGVrZXlwcml2YXRla2V5MTI=",
			PeerPublicKey: "cGVlcnB1YmxpY2tleXBlZXJwdWJsaWNrZXlwZWVyMTI=",
		},
	}
}

func TestNewWiresAllComponents(t *testing.T) {
	cfg := testConfig()
	ctx, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, ctx)

	assert.NotNil(t, ctx.Ring)
	assert.NotNil(t, ctx.Codec)
	assert.NotNil(t, ctx.Framer)
	assert.NotNil(t, ctx.Syncer)
	assert.NotNil(t, ctx.Channel)
	assert.NotNil(t, ctx.Demux)
	assert.NotNil(t, ctx.Bridge)
	assert.NotNil(t, ctx.Transport)

	require.NoError(t, ctx.Deinit())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.Encoding = "MP3"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsBadKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Root.PrivateKey = "not-base64!!"

	_, err := New(cfg)
	assert.Error(t, err)
}
