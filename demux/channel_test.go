package demux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	blocks []recordedBlock
}

type recordedBlock struct {
	slab []byte
	sbn  uint8
}

func (r *recordingHandler) OnBlock(slab []byte, sbn uint8) {
	cp := make([]byte, len(slab))
	copy(cp, slab)
	r.blocks = append(r.blocks, recordedBlock{slab: cp, sbn: sbn})
}

type recordingResetter struct {
	resets int
}

func (r *recordingResetter) Reset() { r.resets++ }

func feedBlock(t *testing.T, ch *Channel, sbn uint8, k, l int) {
	t.Helper()
	for i := 0; i < k; i++ {
		sym := make([]byte, l)
		for j := range sym {
			sym[j] = byte(sbn)
		}
		ch.FeedSymbol(sbn, i, sym)
	}
}

func TestChannelDeliversSequentialBlocks(t *testing.T) {
	h := &recordingHandler{}
	r := &recordingResetter{}
	ch := NewChannel(1, 2, 4, AllSymbolsDecoder{}, h, r)

	feedBlock(t, ch, 0, 2, 4)
	feedBlock(t, ch, 1, 2, 4)

	require.Len(t, h.blocks, 2)
	assert.Equal(t, uint8(0), h.blocks[0].sbn)
	assert.Equal(t, uint8(1), h.blocks[1].sbn)
	assert.Equal(t, 0, r.resets)
}

func TestChannelDuplicateNotDelivered(t *testing.T) {
	h := &recordingHandler{}
	ch := NewChannel(1, 2, 4, AllSymbolsDecoder{}, h, &recordingResetter{})

	feedBlock(t, ch, 0, 2, 4)
	feedBlock(t, ch, 0, 2, 4) // duplicate

	assert.Len(t, h.blocks, 1)
}

func TestChannelOldOutOfOrderNotDelivered(t *testing.T) {
	h := &recordingHandler{}
	ch := NewChannel(1, 2, 4, AllSymbolsDecoder{}, h, &recordingResetter{})

	feedBlock(t, ch, 5, 2, 4)
	feedBlock(t, ch, 3, 2, 4) // old

	require.Len(t, h.blocks, 1)
	assert.Equal(t, uint8(5), h.blocks[0].sbn)
}

func TestChannelForwardJumpResetsAndSuppressesDelivery(t *testing.T) {
	h := &recordingHandler{}
	r := &recordingResetter{}
	ch := NewChannel(1, 2, 4, AllSymbolsDecoder{}, h, r)

	feedBlock(t, ch, 0, 2, 4)
	feedBlock(t, ch, 1, 2, 4)
	feedBlock(t, ch, 5, 2, 4) // jump of 4, should reset and not deliver
	feedBlock(t, ch, 6, 2, 4)

	require.Len(t, h.blocks, 3) // 0, 1, 6 -- 5 suppressed
	for _, b := range h.blocks {
		assert.NotEqual(t, uint8(5), b.sbn)
	}
	assert.Equal(t, 1, r.resets)
}

func TestSbnDiffWraparound(t *testing.T) {
	assert.Equal(t, 1, sbnDiff(255, 0))
	assert.Equal(t, 0, sbnDiff(10, 10))
	assert.Equal(t, -1, sbnDiff(10, 9))
	assert.Equal(t, 3, sbnDiff(253, 0))
}

func TestDemultiplexerDispatchRoutesByChannelID(t *testing.T) {
	h := &recordingHandler{}
	ch := NewChannel(7, 1, 4, AllSymbolsDecoder{}, h, &recordingResetter{})
	d := NewDemultiplexer(ch)

	buf := append([]byte{7, 0, 0}, []byte{1, 2, 3, 4}...)
	err := d.Dispatch(buf)
	require.NoError(t, err)
	require.Len(t, h.blocks, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, h.blocks[0].slab)
}

func TestDemultiplexerDispatchUnknownChannel(t *testing.T) {
	d := NewDemultiplexer()
	err := d.Dispatch([]byte{1, 0, 0, 9})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestDemultiplexerDispatchTruncated(t *testing.T) {
	d := NewDemultiplexer()
	err := d.Dispatch([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTruncatedHeader)
}
