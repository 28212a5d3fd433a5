package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/sx126xd/pkg/protocol"
)

func seedStore(t *testing.T) *PacketStore {
	t.Helper()
	store := newTestStore(t, 0)

	seed := []protocol.Packet{
		rxPacket(2, "1", -110),
		rxPacket(2, "7", -70),
		txPacket(2, "ack"),
		rxPacket(5, "3", -90),
	}
	for _, p := range seed {
		_, err := store.SavePacket(p)
		require.NoError(t, err)
	}
	return store
}

func TestGetPackets(t *testing.T) {
	store := seedStore(t)

	t.Run("By Peer", func(t *testing.T) {
		peer := uint16(5)
		packets, err := store.GetPackets(PacketQuery{Peer: &peer})
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, "3", packets[0].Text)
	})

	t.Run("By Direction", func(t *testing.T) {
		packets, err := store.GetPackets(PacketQuery{Direction: protocol.DirectionTX})
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, "ack", packets[0].Text)
	})

	t.Run("Min RSSI", func(t *testing.T) {
		floor := -95
		packets, err := store.GetPackets(PacketQuery{MinRSSI: &floor})
		require.NoError(t, err)
		assert.Len(t, packets, 2)
	})

	t.Run("Limit And Offset", func(t *testing.T) {
		packets, err := store.GetPackets(PacketQuery{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, packets, 2)
		assert.Equal(t, "ack", packets[0].Text)
		assert.Equal(t, "7", packets[1].Text)
	})

	t.Run("Time Range", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		packets, err := store.GetPackets(PacketQuery{Since: &future})
		require.NoError(t, err)
		assert.Empty(t, packets)

		past := time.Now().Add(-time.Hour)
		packets, err = store.GetPackets(PacketQuery{Since: &past})
		require.NoError(t, err)
		assert.Len(t, packets, 4)
	})
}

func TestGetPeers(t *testing.T) {
	store := seedStore(t)

	peers, err := store.GetPeers(0)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	byAddr := map[uint16]PeerSummary{}
	for _, p := range peers {
		byAddr[p.Address] = p
	}

	two := byAddr[2]
	assert.Equal(t, 2, two.RXCount)
	assert.Equal(t, 1, two.TXCount)
	require.NotNil(t, two.LastRSSI)
	// a TX record carries no RSSI and keeps the last received value
	assert.Equal(t, -70, *two.LastRSSI)

	assert.Equal(t, 1, byAddr[5].RXCount)
}

func TestGetStats(t *testing.T) {
	store := seedStore(t)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPackets)
	assert.Equal(t, 3, stats.TotalRX)
	assert.Equal(t, 1, stats.TotalTX)
	assert.Equal(t, 4, stats.Stored)
	assert.True(t, stats.LastCleanup.IsZero())
}
