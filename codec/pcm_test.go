package codec

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePCMPacket(t *testing.T, samples []int32) []byte {
	t.Helper()
	body := make([]byte, len(samples)*pcmBytesPerSample)
	for i, s := range samples {
		off := i * pcmBytesPerSample
		body[off] = byte(s)
		body[off+1] = byte(s >> 8)
		body[off+2] = byte(s >> 16)
	}
	trailer := make([]byte, pcmCRCLen)
	binary.LittleEndian.PutUint32(trailer, crc32.ChecksumIEEE(body))
	return append(body, trailer...)
}

func TestPCMDecoderValidPacket(t *testing.T) {
	d := NewPCMDecoder(1, 2)
	pkt := encodePCMPacket(t, []int32{1000, -1000})

	samples, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 1000.0/8388608.0, samples[0], 1e-9)
	assert.InDelta(t, -1000.0/8388608.0, samples[1], 1e-9)
}

func TestPCMDecoderCRCFailure(t *testing.T) {
	d := NewPCMDecoder(1, 2)
	pkt := encodePCMPacket(t, []int32{1000, -1000})
	pkt[0] ^= 0xFF // corrupt body byte

	_, err := d.Decode(pkt)
	assert.ErrorIs(t, err, ErrCRCFailed)
}

func TestPCMDecoderLengthMismatch(t *testing.T) {
	d := NewPCMDecoder(1, 2)
	_, err := d.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestPCMDecoderSignExtendsNegativeSamples(t *testing.T) {
	d := NewPCMDecoder(1, 1)
	pkt := encodePCMPacket(t, []int32{-1})

	samples, err := d.Decode(pkt)
	require.NoError(t, err)
	assert.InDelta(t, -1.0/8388608.0, samples[0], 1e-9)
}
