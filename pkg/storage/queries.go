package storage

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dougsko/sx126xd/pkg/protocol"
)

// PacketQuery filters GetPackets. Zero values match everything.
type PacketQuery struct {
	Limit     int
	Offset    int
	Since     *time.Time
	Until     *time.Time
	Peer      *uint16
	Direction string // "RX", "TX", or "" for both
	MinRSSI   *int
}

// PeerSummary aggregates traffic with one node address
type PeerSummary struct {
	Address  uint16    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
	LastRSSI *int      `json:"last_rssi,omitempty"`
	RXCount  int       `json:"rx_count"`
	TXCount  int       `json:"tx_count"`
}

// PacketStats represents database statistics
type PacketStats struct {
	TotalPackets int       `json:"total_packets"`
	TotalRX      int       `json:"total_rx"`
	TotalTX      int       `json:"total_tx"`
	Stored       int       `json:"stored"`
	LastCleanup  time.Time `json:"last_cleanup"`
}

const packetColumns = `id, timestamp, direction, peer, channel, frequency, payload, rssi`

// GetPackets returns matching packets, newest first
func (ps *PacketStore) GetPackets(query PacketQuery) ([]protocol.Packet, error) {
	var args []interface{}
	sqlQuery := "SELECT " + packetColumns + " FROM packets WHERE 1=1"

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, *query.Since)
	}
	if query.Until != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, *query.Until)
	}
	if query.Peer != nil {
		sqlQuery += " AND peer = ?"
		args = append(args, *query.Peer)
	}
	if query.Direction != "" {
		sqlQuery += " AND direction = ?"
		args = append(args, query.Direction)
	}
	if query.MinRSSI != nil {
		sqlQuery += " AND rssi IS NOT NULL AND rssi >= ?"
		args = append(args, *query.MinRSSI)
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := ps.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query packets: %w", err)
	}
	defer rows.Close()

	var packets []protocol.Packet
	for rows.Next() {
		p, err := scanPacket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan packet: %w", err)
		}
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

func scanPacket(rows *sql.Rows) (protocol.Packet, error) {
	var p protocol.Packet
	var rssi sql.NullInt64
	if err := rows.Scan(&p.ID, &p.Timestamp, &p.Direction, &p.Peer, &p.Channel, &p.FrequencyMHz, &p.Payload, &rssi); err != nil {
		return p, err
	}
	if rssi.Valid {
		v := int(rssi.Int64)
		p.RSSI = &v
	}
	p.Text = textOf(p.Payload)
	return p, nil
}

func textOf(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return ""
}

// GetRecentPackets returns the newest limit packets
func (ps *PacketStore) GetRecentPackets(limit int) ([]protocol.Packet, error) {
	return ps.GetPackets(PacketQuery{Limit: limit})
}

// GetPeers lists every address seen, most recent first
func (ps *PacketStore) GetPeers(limit int) ([]PeerSummary, error) {
	query := `SELECT address, last_seen, last_rssi, rx_count, tx_count FROM peers ORDER BY last_seen DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ps.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	var peers []PeerSummary
	for rows.Next() {
		var peer PeerSummary
		var lastSeen sql.NullTime
		var rssi sql.NullInt64
		if err := rows.Scan(&peer.Address, &lastSeen, &rssi, &peer.RXCount, &peer.TXCount); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		if lastSeen.Valid {
			peer.LastSeen = lastSeen.Time
		}
		if rssi.Valid {
			v := int(rssi.Int64)
			peer.LastRSSI = &v
		}
		peers = append(peers, peer)
	}
	return peers, rows.Err()
}

// GetStats retrieves database statistics
func (ps *PacketStore) GetStats() (*PacketStats, error) {
	var stats PacketStats
	var lastCleanup sql.NullTime

	err := ps.db.QueryRow(`
		SELECT total_packets, total_rx, total_tx, last_cleanup
		FROM packet_stats WHERE id = 1
	`).Scan(&stats.TotalPackets, &stats.TotalRX, &stats.TotalTX, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get packet stats: %w", err)
	}
	if lastCleanup.Valid {
		stats.LastCleanup = lastCleanup.Time
	}

	if stats.Stored, err = ps.GetPacketCount(); err != nil {
		return nil, fmt.Errorf("failed to count packets: %w", err)
	}
	return &stats, nil
}

// GetPacketCount returns the number of stored packets
func (ps *PacketStore) GetPacketCount() (int, error) {
	var count int
	err := ps.db.QueryRow("SELECT COUNT(*) FROM packets").Scan(&count)
	return count, err
}
