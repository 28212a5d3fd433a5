package sx126x

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSIdBm(t *testing.T) {
	assert.Equal(t, -100, RSSIdBm(0x9C))
	assert.Equal(t, -256, RSSIdBm(0x00))
	assert.Equal(t, -1, RSSIdBm(0xFF))
}

func TestPacketRoundTrip(t *testing.T) {
	st := ActiveState{ChannelOffset: 0x41, OwnAddress: 1, Scheme: SchemeFixed, BandBase: 850}

	for n := 1; n <= 240; n += 7 {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		for _, dest := range []uint16{0x0000, 0x0002, 0xFFFF} {
			d := dest
			raw, err := EncodePacket(payload, &d, st)
			require.NoError(t, err)
			require.Len(t, raw, n+3)

			pkt, ok := DecodePacket(raw, st)
			require.True(t, ok)
			assert.Equal(t, payload, pkt.Payload)
			assert.Nil(t, pkt.RSSI)
			assert.Equal(t, dest, pkt.Source)
		}
	}
}

func TestEncodePacket(t *testing.T) {
	fixed := ActiveState{ChannelOffset: 18, Scheme: SchemeFixed}
	transparent := ActiveState{ChannelOffset: 18, Scheme: SchemeTransparent}
	dest := uint16(0x0102)

	t.Run("Fixed Header", func(t *testing.T) {
		raw, err := EncodePacket([]byte("hi"), &dest, fixed)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02, 18, 'h', 'i'}, raw)
	})

	t.Run("Missing Destination", func(t *testing.T) {
		_, err := EncodePacket([]byte("hi"), nil, fixed)
		assert.True(t, errors.Is(err, ErrMissingDestination))
	})

	t.Run("Transparent Ignores Destination", func(t *testing.T) {
		raw, err := EncodePacket([]byte("hi"), &dest, transparent)
		require.NoError(t, err)
		assert.Equal(t, []byte("hi"), raw)
	})

	t.Run("Empty Payload", func(t *testing.T) {
		_, err := EncodePacket(nil, &dest, fixed)
		assert.True(t, errors.Is(err, ErrEmptyPayload))
	})
}

func TestDecodePacket(t *testing.T) {
	t.Run("Foreign Channel Is Filtered", func(t *testing.T) {
		st := ActiveState{ChannelOffset: 0x41, Scheme: SchemeFixed}
		_, ok := DecodePacket([]byte{0x00, 0x02, 0x12, 'h', 'i'}, st)
		assert.False(t, ok)
	})

	t.Run("Trailing RSSI", func(t *testing.T) {
		st := ActiveState{ChannelOffset: 0x41, Scheme: SchemeFixed, RSSIEnabled: true}
		pkt, ok := DecodePacket([]byte{0x00, 0x02, 0x41, 'h', 'i', 0x9C}, st)
		require.True(t, ok)
		assert.Equal(t, []byte("hi"), pkt.Payload)
		require.NotNil(t, pkt.RSSI)
		assert.Equal(t, -100, *pkt.RSSI)
	})

	t.Run("Transparent", func(t *testing.T) {
		st := ActiveState{ChannelOffset: 5, Scheme: SchemeTransparent}
		pkt, ok := DecodePacket([]byte("abc"), st)
		require.True(t, ok)
		assert.Equal(t, []byte("abc"), pkt.Payload)
		assert.Equal(t, uint8(5), pkt.ChannelOffset)
	})

	t.Run("Short Frames", func(t *testing.T) {
		st := ActiveState{ChannelOffset: 0x41, Scheme: SchemeFixed, RSSIEnabled: true}
		for _, raw := range [][]byte{nil, {0x00}, {0x00, 0x02, 0x41}, {0x00, 0x02, 0x41, 0x9C}} {
			_, ok := DecodePacket(raw, st)
			assert.False(t, ok, "% X", raw)
		}
	})

	t.Run("Payload Is A Copy", func(t *testing.T) {
		st := ActiveState{Scheme: SchemeTransparent}
		raw := []byte("xyz")
		pkt, _ := DecodePacket(raw, st)
		raw[0] = '!'
		assert.Equal(t, []byte("xyz"), pkt.Payload)
	})
}
