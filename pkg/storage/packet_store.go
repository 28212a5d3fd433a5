package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/protocol"
)

// PacketStore keeps a log of the packets the daemon sent and received
type PacketStore struct {
	db         *sql.DB
	dbPath     string
	maxPackets int
	mu         sync.Mutex
}

// NewPacketStore opens (or creates) the sqlite packet log at dbPath
func NewPacketStore(dbPath string, maxPackets int) (*PacketStore, error) {
	store := &PacketStore{
		dbPath:     dbPath,
		maxPackets: maxPackets,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize packet store: %w", err)
	}

	return store, nil
}

func (ps *PacketStore) initialize() error {
	if ps.dbPath == "" {
		ps.dbPath = "./sx126xd.db"
	}

	if err := os.MkdirAll(filepath.Dir(ps.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := ps.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ps.db = db

	if err := ps.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := ps.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "packet store initialized: %s (max %d packets)", ps.dbPath, ps.maxPackets)
	return nil
}

func (ps *PacketStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS packets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		direction TEXT NOT NULL CHECK (direction IN ('RX', 'TX')),
		peer INTEGER NOT NULL DEFAULT 0,
		channel INTEGER NOT NULL DEFAULT 0,
		frequency INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL,
		rssi INTEGER
	);

	CREATE TABLE IF NOT EXISTS peers (
		address INTEGER PRIMARY KEY,
		last_packet_id INTEGER,
		last_seen DATETIME,
		last_rssi INTEGER,
		rx_count INTEGER NOT NULL DEFAULT 0,
		tx_count INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (last_packet_id) REFERENCES packets(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS packet_stats (
		id INTEGER PRIMARY KEY,
		total_packets INTEGER NOT NULL DEFAULT 0,
		total_rx INTEGER NOT NULL DEFAULT 0,
		total_tx INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO packet_stats (id, total_packets, total_rx, total_tx)
	VALUES (1, 0, 0, 0);
	`

	_, err := ps.db.Exec(schema)
	return err
}

func (ps *PacketStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_packets_timestamp ON packets(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_packets_peer ON packets(peer)",
		"CREATE INDEX IF NOT EXISTS idx_packets_direction ON packets(direction)",
		"CREATE INDEX IF NOT EXISTS idx_peers_last_seen ON peers(last_seen DESC)",
	}

	for _, indexSQL := range indexes {
		if _, err := ps.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SavePacket stores p and returns its row id
func (ps *PacketStore) SavePacket(p protocol.Packet) (int64, error) {
	if p.Direction != protocol.DirectionRX && p.Direction != protocol.DirectionTX {
		return 0, fmt.Errorf("invalid direction %q", p.Direction)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	tx, err := ps.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rssi sql.NullInt64
	if p.RSSI != nil {
		rssi = sql.NullInt64{Int64: int64(*p.RSSI), Valid: true}
	}
	payload := p.Payload
	if payload == nil {
		payload = []byte{}
	}

	result, err := tx.Exec(`
		INSERT INTO packets (timestamp, direction, peer, channel, frequency, payload, rssi)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Timestamp, p.Direction, p.Peer, p.Channel, p.FrequencyMHz, payload, rssi)
	if err != nil {
		return 0, fmt.Errorf("failed to insert packet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get packet ID: %w", err)
	}

	if err := ps.updatePeer(tx, p, id, rssi); err != nil {
		return 0, fmt.Errorf("failed to update peer: %w", err)
	}
	if err := ps.updateStats(tx, p.Direction); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}
	if err := ps.cleanup(tx); err != nil {
		logging.Warnf("storage", "failed to trim packet log: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit packet: %w", err)
	}
	return id, nil
}

func (ps *PacketStore) updatePeer(tx *sql.Tx, p protocol.Packet, id int64, rssi sql.NullInt64) error {
	rx, txCount := 0, 0
	if p.Direction == protocol.DirectionRX {
		rx = 1
	} else {
		txCount = 1
	}

	_, err := tx.Exec(`
		INSERT INTO peers (address, last_packet_id, last_seen, last_rssi, rx_count, tx_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			last_packet_id = excluded.last_packet_id,
			last_seen = excluded.last_seen,
			last_rssi = COALESCE(excluded.last_rssi, last_rssi),
			rx_count = rx_count + excluded.rx_count,
			tx_count = tx_count + excluded.tx_count
	`, p.Peer, id, p.Timestamp, rssi, rx, txCount)
	return err
}

func (ps *PacketStore) updateStats(tx *sql.Tx, direction string) error {
	_, err := tx.Exec(`
		UPDATE packet_stats SET
			total_packets = total_packets + 1,
			total_rx = CASE WHEN ? = 'RX' THEN total_rx + 1 ELSE total_rx END,
			total_tx = CASE WHEN ? = 'TX' THEN total_tx + 1 ELSE total_tx END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, direction, direction)
	return err
}

// Cleanup trims the log to the configured maximum
func (ps *PacketStore) Cleanup() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	tx, err := ps.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ps.cleanup(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (ps *PacketStore) cleanup(tx *sql.Tx) error {
	if ps.maxPackets <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM packets").Scan(&count); err != nil {
		return err
	}
	if count <= ps.maxPackets {
		return nil
	}

	_, err := tx.Exec(`
		DELETE FROM packets
		WHERE id IN (
			SELECT id FROM packets
			ORDER BY id ASC
			LIMIT ?
		)
	`, count-ps.maxPackets)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE packet_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (ps *PacketStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
