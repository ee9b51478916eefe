package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPackets struct {
	pkts [][]byte
}

func (r *recordingPackets) OnPacket(pkt []byte) {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	r.pkts = append(r.pkts, cp)
}

func feedDelimited(d *Decoder, pkt []byte) {
	d.Feed(Encode(pkt))
	d.Feed([]byte{delimiter})
}

func TestDecoderDeliversSingleUnescapedPacket(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	feedDelimited(d, []byte{1, 2, 3, 4})

	require.Len(t, h.pkts, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, h.pkts[0])
}

func TestDecoderDeliversMultiplePackets(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	feedDelimited(d, []byte{1, 2})
	feedDelimited(d, []byte{3, 4, 5})

	require.Len(t, h.pkts, 2)
	assert.Equal(t, []byte{1, 2}, h.pkts[0])
	assert.Equal(t, []byte{3, 4, 5}, h.pkts[1])
}

func TestDecoderUnescapesDelimiterAndEscapeBytes(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	raw := []byte{delimiter, escape, 0x01}
	feedDelimited(d, raw)

	require.Len(t, h.pkts, 1)
	assert.Equal(t, raw, h.pkts[0])
}

func TestDecoderInvalidEscapeAbandonsPacket(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	d.Feed([]byte{1, 2, escape, 0xFF}) // invalid escape byte
	d.Feed([]byte{delimiter})

	assert.Empty(t, h.pkts)
}

func TestDecoderOverflowAbandonsPacket(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(4, h)

	d.Feed([]byte{1, 2, 3, 4, 5}) // exceeds maxPacketSize
	d.Feed([]byte{delimiter})

	assert.Empty(t, h.pkts)
}

func TestDecoderResetDiscardsPartialPacket(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	d.Feed([]byte{1, 2, 3})
	d.Reset()
	feedDelimited(d, []byte{9, 9})

	require.Len(t, h.pkts, 1)
	assert.Equal(t, []byte{9, 9}, h.pkts[0])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{1, 2, 3},
		{delimiter},
		{escape},
		{delimiter, escape, delimiter, escape},
		{0x00, 0xFF, delimiter, 0x10, escape, 0x20},
	}

	for _, pkt := range cases {
		h := &recordingPackets{}
		d := NewDecoder(256, h)
		feedDelimited(d, pkt)

		require.Len(t, h.pkts, 1)
		assert.Equal(t, pkt, h.pkts[0])
	}
}

func TestEmptyPacketsBetweenDelimitersAreNotDelivered(t *testing.T) {
	h := &recordingPackets{}
	d := NewDecoder(256, h)

	d.Feed([]byte{delimiter, delimiter, delimiter})

	assert.Empty(t, h.pkts)
}
