// Package config loads the YAML configuration surface this pipeline
// consumes from the environment's globals collaborator. The globals
// loader itself, and any fields it exposes beyond this receive-side
// pipeline's needs, are out of scope here.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface this pipeline consumes.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Opus      OpusConfig      `yaml:"opus"`
	PCM       PCMConfig       `yaml:"pcm"`
	FEC       FECConfig       `yaml:"fec"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Root      RootConfig      `yaml:"root"`
}

// AudioConfig selects the codec variant and describes the local
// device.
type AudioConfig struct {
	Encoding            string `yaml:"encoding"` // "OPUS" or "PCM"
	NetworkChannelCount int    `yaml:"networkChannelCount"`
	IOSampleRate        int    `yaml:"ioSampleRate"`
	DeviceName          string `yaml:"deviceName"`
}

// OpusConfig configures the Opus decoder stage.
type OpusConfig struct {
	FrameSize        int `yaml:"frameSize"`
	MaxPacketSize    int `yaml:"maxPacketSize"`
	DecodeRingLength int `yaml:"decodeRingLength"`
	// SampleRate is fixed at 48000 by the Opus standard, but still
	// configurable here rather than hardcoded.
	SampleRate int `yaml:"sampleRate"`
}

// PCMConfig configures the framed-PCM decoder stage.
type PCMConfig struct {
	SampleRate       int `yaml:"sampleRate"`
	FrameSize        int `yaml:"frameSize"`
	DecodeRingLength int `yaml:"decodeRingLength"`
}

// FECConfig configures the FEC block geometry: K source symbols of L
// bytes each.
type FECConfig struct {
	SourceSymbolsPerBlock int `yaml:"sourceSymbolsPerBlock"`
	SymbolLen             int `yaml:"symbolLen"`
}

// EndpointsConfig lists the fixed set of local interfaces the
// multi-path transport binds to.
type EndpointsConfig struct {
	EndpointCount int              `yaml:"endpointCount"`
	Endpoints     []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig describes one local endpoint. Interface is passed
// unchanged to the transport as the UDP bind address ("host:port" or
// ":0"); it is not resolved as a network interface name, so a value
// such as "eth0" parses here but fails when the socket is opened.
type EndpointConfig struct {
	Interface string `yaml:"interface"`
}

// RootConfig holds the pre-shared Noise/WireGuard key material,
// base64-encoded 32-byte X25519 keys.
type RootConfig struct {
	PrivateKey    string `yaml:"privateKey"`
	PeerPublicKey string `yaml:"peerPublicKey"`
}

// Load reads and parses a YAML configuration file. A config/setup
// error here is fatal at init; the caller is expected to exit with a
// non-zero code, not retry.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the fields this pipeline requires to be present and
// self-consistent before any subsystem is constructed from them.
func (c *Config) Validate() error {
	switch c.Audio.Encoding {
	case "OPUS", "PCM":
	default:
		return fmt.Errorf("audio.encoding must be OPUS or PCM, got %q", c.Audio.Encoding)
	}
	if c.Audio.NetworkChannelCount <= 0 {
		return fmt.Errorf("audio.networkChannelCount must be positive")
	}
	if c.Endpoints.EndpointCount <= 0 || len(c.Endpoints.Endpoints) != c.Endpoints.EndpointCount {
		return fmt.Errorf("endpoints.endpointCount must match the number of configured endpoints")
	}
	if c.Root.PrivateKey == "" || c.Root.PeerPublicKey == "" {
		return fmt.Errorf("root.privateKey and root.peerPublicKey are required")
	}
	if c.FEC.SourceSymbolsPerBlock <= 0 || c.FEC.SymbolLen <= 0 {
		return fmt.Errorf("fec.sourceSymbolsPerBlock and fec.symbolLen must be positive")
	}
	return nil
}
