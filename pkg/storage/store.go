package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/regs"
	_ "github.com/mattn/go-sqlite3"
)

// TelemetryStore keeps telemetry samples and register table snapshots
type TelemetryStore struct {
	db         *sql.DB
	dbPath     string
	maxSamples int
}

// NewTelemetryStore creates a new store with SQLite backend
func NewTelemetryStore(dbPath string, maxSamples int) (*TelemetryStore, error) {
	store := &TelemetryStore{
		dbPath:     dbPath,
		maxSamples: maxSamples,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (ts *TelemetryStore) initialize() error {
	if ts.dbPath == "" {
		ts.dbPath = "./x6d.db"
	}

	if err := os.MkdirAll(filepath.Dir(ts.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := ts.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ts.db = db

	if err := ts.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ts.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "telemetry store initialized: %s (max %d samples)", ts.dbPath, ts.maxSamples)
	return nil
}

// createTables creates the database schema
func (ts *TelemetryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telemetry_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		tx BOOLEAN NOT NULL DEFAULT FALSE,
		atu BOOLEAN NOT NULL DEFAULT FALSE,
		charging BOOLEAN NOT NULL DEFAULT FALSE,
		external_power BOOLEAN NOT NULL DEFAULT FALSE,
		dbm INTEGER NOT NULL DEFAULT 0,
		tx_power REAL NOT NULL DEFAULT 0.0,
		swr REAL NOT NULL DEFAULT 0.0,
		alc REAL NOT NULL DEFAULT 0.0,
		vext REAL NOT NULL DEFAULT 0.0,
		vbat REAL NOT NULL DEFAULT 0.0,
		batcap INTEGER NOT NULL DEFAULT 0,
		atu_params INTEGER NOT NULL DEFAULT 0,
		hkey TEXT NOT NULL DEFAULT '',
		flags INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS register_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		registers BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS store_stats (
		id INTEGER PRIMARY KEY,
		total_samples INTEGER NOT NULL DEFAULT 0,
		total_snapshots INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME
	);

	INSERT OR IGNORE INTO store_stats (id, total_samples, total_snapshots)
	VALUES (1, 0, 0);
	`

	_, err := ts.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for performance
func (ts *TelemetryStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON telemetry_samples(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_samples_tx ON telemetry_samples(tx)",
		"CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON register_snapshots(timestamp DESC)",
	}

	for _, indexSQL := range indexes {
		if _, err := ts.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// StoreSample records the scalar readings of one telemetry frame
func (ts *TelemetryStore) StoreSample(at time.Time, s flow.Summary) (int64, error) {
	tx, err := ts.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO telemetry_samples (
			timestamp, tx, atu, charging, external_power, dbm, tx_power,
			swr, alc, vext, vbat, batcap, atu_params, hkey, flags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.Exec(query,
		at.UTC(), s.TX, s.ATU, s.Charging, s.ExternalPower, s.DBm, s.TxPower,
		s.SWR, s.ALC, s.VExt, s.VBat, s.BatCap, s.ATUParams, s.Key, s.Flags,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sample: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sample ID: %w", err)
	}

	if _, err := tx.Exec("UPDATE store_stats SET total_samples = total_samples + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := ts.cleanupOldSamples(tx); err != nil {
		logging.Warnf("storage", "failed to cleanup old samples: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sample: %w", err)
	}
	return id, nil
}

// StoreSnapshot records a copy of the register table
func (ts *TelemetryStore) StoreSnapshot(at time.Time, reason string, table [regs.Count]uint32) (int64, error) {
	tx, err := ts.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO register_snapshots (timestamp, reason, registers) VALUES (?, ?, ?)",
		at.UTC(), reason, packTable(table),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot ID: %w", err)
	}

	if _, err := tx.Exec("UPDATE store_stats SET total_snapshots = total_snapshots + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// CleanupOldSamples removes samples beyond the maximum limit
func (ts *TelemetryStore) CleanupOldSamples() error {
	tx, err := ts.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ts.cleanupOldSamples(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (ts *TelemetryStore) cleanupOldSamples(tx *sql.Tx) error {
	if ts.maxSamples <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM telemetry_samples").Scan(&count); err != nil {
		return err
	}
	if count <= ts.maxSamples {
		return nil
	}

	query := `
		DELETE FROM telemetry_samples
		WHERE id IN (
			SELECT id FROM telemetry_samples
			ORDER BY timestamp ASC, id ASC
			LIMIT ?
		)
	`
	if _, err := tx.Exec(query, count-ts.maxSamples); err != nil {
		return err
	}

	_, err := tx.Exec("UPDATE store_stats SET last_cleanup = ? WHERE id = 1", time.Now().UTC())
	return err
}

// Close closes the database connection
func (ts *TelemetryStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}

func packTable(table [regs.Count]uint32) []byte {
	buf := make([]byte, 4*regs.Count)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func unpackTable(buf []byte) ([regs.Count]uint32, error) {
	var table [regs.Count]uint32
	if len(buf) != 4*regs.Count {
		return table, fmt.Errorf("snapshot has %d bytes, want %d", len(buf), 4*regs.Count)
	}
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return table, nil
}
