package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/regs"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// SampleQuery represents query parameters for retrieving samples
type SampleQuery struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	TXOnly bool
}

// Sample is a stored telemetry reading
type Sample struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	flow.Summary
}

// Snapshot is a stored copy of the register table
type Snapshot struct {
	ID        int64              `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Reason    string             `json:"reason"`
	Registers [regs.Count]uint32 `json:"registers"`
}

// StoreStats represents database statistics
type StoreStats struct {
	TotalSamples   int       `json:"total_samples"`
	TotalSnapshots int       `json:"total_snapshots"`
	StoredSamples  int       `json:"stored_samples"`
	LastCleanup    time.Time `json:"last_cleanup"`
}

// GetSamples retrieves samples based on query parameters, newest first
func (ts *TelemetryStore) GetSamples(query SampleQuery) ([]Sample, error) {
	var args []interface{}

	sqlQuery := `
		SELECT id, timestamp, tx, atu, charging, external_power, dbm, tx_power,
			   swr, alc, vext, vbat, batcap, atu_params, hkey, flags
		FROM telemetry_samples
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}
	if query.Until != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.Until.UTC())
	}
	if query.TXOnly {
		sqlQuery += " AND tx = TRUE"
	}

	sqlQuery += " ORDER BY timestamp DESC, id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := ts.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		err := rows.Scan(
			&s.ID,
			&s.Timestamp,
			&s.TX,
			&s.ATU,
			&s.Charging,
			&s.ExternalPower,
			&s.DBm,
			&s.TxPower,
			&s.SWR,
			&s.ALC,
			&s.VExt,
			&s.VBat,
			&s.BatCap,
			&s.ATUParams,
			&s.Key,
			&s.Flags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// GetRecentSamples retrieves the most recent samples
func (ts *TelemetryStore) GetRecentSamples(limit int) ([]Sample, error) {
	return ts.GetSamples(SampleQuery{Limit: limit})
}

// GetSampleCount returns the number of stored samples
func (ts *TelemetryStore) GetSampleCount() (int, error) {
	var count int
	err := ts.db.QueryRow("SELECT COUNT(*) FROM telemetry_samples").Scan(&count)
	return count, err
}

// GetSnapshot retrieves one snapshot by ID
func (ts *TelemetryStore) GetSnapshot(id int64) (*Snapshot, error) {
	row := ts.db.QueryRow(
		"SELECT id, timestamp, reason, registers FROM register_snapshots WHERE id = ?", id)
	return scanSnapshot(row)
}

// LatestSnapshot retrieves the newest snapshot
func (ts *TelemetryStore) LatestSnapshot() (*Snapshot, error) {
	row := ts.db.QueryRow(
		"SELECT id, timestamp, reason, registers FROM register_snapshots ORDER BY timestamp DESC, id DESC LIMIT 1")
	return scanSnapshot(row)
}

// ListSnapshots retrieves snapshots newest first
func (ts *TelemetryStore) ListSnapshots(limit int) ([]Snapshot, error) {
	query := "SELECT id, timestamp, reason, registers FROM register_snapshots ORDER BY timestamp DESC, id DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

// GetStats retrieves database statistics
func (ts *TelemetryStore) GetStats() (*StoreStats, error) {
	var stats StoreStats
	var lastCleanup sql.NullTime

	err := ts.db.QueryRow(`
		SELECT total_samples, total_snapshots, last_cleanup,
			   (SELECT COUNT(*) FROM telemetry_samples)
		FROM store_stats WHERE id = 1
	`).Scan(&stats.TotalSamples, &stats.TotalSnapshots, &lastCleanup, &stats.StoredSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}

	if lastCleanup.Valid {
		stats.LastCleanup = lastCleanup.Time
	}
	return &stats, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var snap Snapshot
	var blob []byte
	if err := row.Scan(&snap.ID, &snap.Timestamp, &snap.Reason, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	table, err := unpackTable(blob)
	if err != nil {
		return nil, err
	}
	snap.Registers = table
	return &snap, nil
}
