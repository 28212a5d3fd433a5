package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/sx126xd/pkg/protocol"
)

func newTestStore(t *testing.T, maxPackets int) *PacketStore {
	t.Helper()
	store, err := NewPacketStore(filepath.Join(t.TempDir(), "packets.db"), maxPackets)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rxPacket(peer uint16, text string, rssi int) protocol.Packet {
	return protocol.Packet{
		Timestamp:    time.Now(),
		Direction:    protocol.DirectionRX,
		Peer:         peer,
		Channel:      0x41,
		FrequencyMHz: 915,
		Payload:      []byte(text),
		RSSI:         &rssi,
	}
}

func txPacket(peer uint16, text string) protocol.Packet {
	return protocol.Packet{
		Timestamp:    time.Now(),
		Direction:    protocol.DirectionTX,
		Peer:         peer,
		Channel:      0x41,
		FrequencyMHz: 915,
		Payload:      []byte(text),
	}
}

func TestNewPacketStore(t *testing.T) {
	t.Run("Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "packets.db")
		store, err := NewPacketStore(dbPath, 100)
		require.NoError(t, err)
		defer store.Close()

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("Expected nested directory to be created")
		}
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "packets.db")
		store, err := NewPacketStore(dbPath, 100)
		require.NoError(t, err)
		_, err = store.SavePacket(rxPacket(2, "5", -80))
		require.NoError(t, err)
		require.NoError(t, store.Close())

		store, err = NewPacketStore(dbPath, 100)
		require.NoError(t, err)
		defer store.Close()
		count, err := store.GetPacketCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestSavePacket(t *testing.T) {
	store := newTestStore(t, 100)

	id, err := store.SavePacket(rxPacket(2, "hello", -95))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = store.SavePacket(txPacket(3, "reply"))
	require.NoError(t, err)

	_, err = store.SavePacket(protocol.Packet{Direction: "XX", Payload: []byte("x")})
	assert.Error(t, err)

	packets, err := store.GetRecentPackets(10)
	require.NoError(t, err)
	require.Len(t, packets, 2)

	// newest first
	assert.Equal(t, protocol.DirectionTX, packets[0].Direction)
	assert.Nil(t, packets[0].RSSI)
	assert.Equal(t, "hello", packets[1].Text)
	assert.Equal(t, []byte("hello"), packets[1].Payload)
	assert.Equal(t, uint16(2), packets[1].Peer)
	assert.Equal(t, uint8(0x41), packets[1].Channel)
	assert.Equal(t, 915, packets[1].FrequencyMHz)
	require.NotNil(t, packets[1].RSSI)
	assert.Equal(t, -95, *packets[1].RSSI)
	assert.Equal(t, id, packets[1].ID)
}

func TestCleanup(t *testing.T) {
	store := newTestStore(t, 3)

	for i := 0; i < 5; i++ {
		_, err := store.SavePacket(rxPacket(2, string(rune('0'+i)), -80))
		require.NoError(t, err)
	}

	packets, err := store.GetRecentPackets(0)
	require.NoError(t, err)
	require.Len(t, packets, 3)
	assert.Equal(t, "4", packets[0].Text)
	assert.Equal(t, "2", packets[2].Text)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalPackets)
	assert.Equal(t, 5, stats.TotalRX)
	assert.Equal(t, 3, stats.Stored)
	assert.False(t, stats.LastCleanup.IsZero())

	require.NoError(t, store.Cleanup())
}
