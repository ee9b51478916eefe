package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/redpath-audio/rxcore/stats"
	"github.com/sirupsen/logrus"
)

// OpusDecoder decodes multistream Opus packets into a fixed-size float
// block of channels*frameSize samples.
type OpusDecoder struct {
	decoder   opus.Decoder
	channels  int
	frameSize int
	scratch   []byte
}

// NewOpusDecoder creates a decoder expecting frameSize samples per
// channel per packet.
func NewOpusDecoder(channels, frameSize int) *OpusDecoder {
	return &OpusDecoder{
		decoder:   opus.NewDecoder(),
		channels:  channels,
		frameSize: frameSize,
		scratch:   make([]byte, frameSize*channels*2),
	}
}

// Decode implements codec.Decoder. A decode error, or a packet whose
// stereo flag does not match the configured channel count, increments
// codecErrorCount and drops the packet. The sample count compared
// against frameSize is derived from the scratch buffer's length, not
// from the number of samples the decoder actually wrote, so a packet
// that decodes to fewer samples is not detected here.
func (d *OpusDecoder) Decode(pkt []byte) ([]float32, error) {
	_, isStereo, err := d.decoder.Decode(pkt, d.scratch)
	if err != nil {
		stats.Global.Channel.CodecErrorCount.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "OpusDecoder.Decode",
			"error":    err.Error(),
		}).Debug("Opus decode failed, dropping packet")
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	wantChannels := 1
	if isStereo {
		wantChannels = 2
	}
	sampleCount := len(d.scratch) / 2 / wantChannels
	if sampleCount != d.frameSize || wantChannels != d.channels {
		stats.Global.Channel.CodecErrorCount.Add(1)
		logrus.WithFields(logrus.Fields{
			"function":   "OpusDecoder.Decode",
			"got_frames": sampleCount,
			"want_frame": d.frameSize,
		}).Debug("Opus decoded length mismatch, dropping packet")
		return nil, ErrLengthMismatch
	}

	out := make([]float32, d.channels*d.frameSize)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(d.scratch[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}
