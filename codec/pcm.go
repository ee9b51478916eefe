package codec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/redpath-audio/rxcore/stats"
	"github.com/sirupsen/logrus"
)

const (
	pcmBytesPerSample = 3 // 24-bit
	pcmCRCLen         = 4
)

// PCMDecoder decodes the framed 24-bit PCM variant: a body of 24-bit
// little-endian samples followed by a trailing CRC32 of the body.
type PCMDecoder struct {
	channels  int
	frameSize int
}

// NewPCMDecoder creates a decoder expecting frameSize samples per
// channel per packet.
func NewPCMDecoder(channels, frameSize int) *PCMDecoder {
	return &PCMDecoder{channels: channels, frameSize: frameSize}
}

// Decode implements codec.Decoder. A length mismatch or CRC failure
// increments crcFailCount and drops the packet.
func (d *PCMDecoder) Decode(pkt []byte) ([]float32, error) {
	wantBodyLen := d.channels * d.frameSize * pcmBytesPerSample
	if len(pkt) != wantBodyLen+pcmCRCLen {
		stats.Global.Channel.CrcFailCount.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "PCMDecoder.Decode",
			"got_len":  len(pkt),
			"want_len": wantBodyLen + pcmCRCLen,
		}).Debug("PCM packet length mismatch, dropping packet")
		return nil, ErrLengthMismatch
	}

	body := pkt[:wantBodyLen]
	trailer := binary.LittleEndian.Uint32(pkt[wantBodyLen:])
	if crc32.ChecksumIEEE(body) != trailer {
		stats.Global.Channel.CrcFailCount.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "PCMDecoder.Decode",
		}).Debug("PCM CRC mismatch, dropping packet")
		return nil, ErrCRCFailed
	}

	out := make([]float32, d.channels*d.frameSize)
	for i := range out {
		off := i * pcmBytesPerSample
		raw := int32(body[off]) | int32(body[off+1])<<8 | int32(body[off+2])<<16
		if raw&0x800000 != 0 {
			raw |= ^int32(0xFFFFFF) // sign-extend 24-bit to 32-bit
		}
		out[i] = float32(raw) / 8388608.0
	}
	return out, nil
}
