package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/mmwave"
)

// DB wraps the sqlite handle with the persistence operations of the capture
// pipeline.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and applies all
// pending migrations. Use ":memory:" for an ephemeral database in tests.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite writes must come from one connection at a time.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Timestamps are stored as unix milliseconds so the driver never has to
// round-trip a time.Time.

// RecordRunStart inserts a row for a capture run.
func (db *DB) RecordRunStart(runID, portPath string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_id, port_path, started_at) VALUES (?, ?, ?)`,
		runID, portPath, startedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordRunStop stamps the end of a capture run.
func (db *DB) RecordRunStop(runID string, stoppedAt time.Time) error {
	_, err := db.Exec(
		`UPDATE runs SET stopped_at = ? WHERE run_id = ?`,
		stoppedAt.UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run stop: %w", err)
	}
	return nil
}

// RecordHumanSummaries persists one row per detected human in a
// classification pass, all inside one transaction.
func (db *DB) RecordHumanSummaries(runID string, observedAt time.Time, humans []mmwave.HumanSummary) error {
	if len(humans) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO human_summaries
		(run_id, cluster_id, centroid_x, centroid_y, centroid_z, points, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := observedAt.UnixMilli()
	for _, h := range humans {
		if _, err := stmt.Exec(runID, h.ClusterID, h.CentroidX, h.CentroidY, h.CentroidZ, h.Points, ts); err != nil {
			return fmt.Errorf("failed to insert human summary: %w", err)
		}
	}
	return tx.Commit()
}

// RecordBatch persists the label tally of one classification pass.
func (db *DB) RecordBatch(runID string, observedAt time.Time, counts mmwave.BatchCounts) error {
	_, err := db.Exec(`INSERT INTO batches
		(run_id, total_points, human_points, moving_points, static_points, clutter_points, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, counts.Total, counts.Human, counts.Moving, counts.Static, counts.Clutter, observedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record batch counts: %w", err)
	}
	return nil
}

// BatchRecord is one persisted classification pass tally.
type BatchRecord struct {
	RunID      string             `json:"run_id"`
	Counts     mmwave.BatchCounts `json:"counts"`
	ObservedAt time.Time          `json:"observed_at"`
}

// RecentBatches returns up to limit batch tallies, newest first.
func (db *DB) RecentBatches(limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT run_id, total_points, human_points, moving_points, static_points, clutter_points, observed_at
		FROM batches ORDER BY observed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var r BatchRecord
		var observedMilli int64
		if err := rows.Scan(&r.RunID, &r.Counts.Total, &r.Counts.Human, &r.Counts.Moving,
			&r.Counts.Static, &r.Counts.Clutter, &observedMilli); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		r.ObservedAt = time.UnixMilli(observedMilli).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// HumanRecord is one persisted human observation.
type HumanRecord struct {
	RunID      string    `json:"run_id"`
	ClusterID  int       `json:"cluster_id"`
	CentroidX  float64   `json:"centroid_x"`
	CentroidY  float64   `json:"centroid_y"`
	CentroidZ  float64   `json:"centroid_z"`
	Points     int       `json:"points"`
	ObservedAt time.Time `json:"observed_at"`
}

// RecentHumans returns up to limit human observations, newest first.
func (db *DB) RecentHumans(limit int) ([]HumanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT run_id, cluster_id, centroid_x, centroid_y, centroid_z, points, observed_at
		FROM human_summaries ORDER BY observed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query human summaries: %w", err)
	}
	defer rows.Close()

	var records []HumanRecord
	for rows.Next() {
		var r HumanRecord
		var observedMilli int64
		if err := rows.Scan(&r.RunID, &r.ClusterID, &r.CentroidX, &r.CentroidY, &r.CentroidZ, &r.Points, &observedMilli); err != nil {
			return nil, fmt.Errorf("failed to scan human summary: %w", err)
		}
		r.ObservedAt = time.UnixMilli(observedMilli).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// HumanCountForRun returns how many human observations a run produced.
func (db *DB) HumanCountForRun(runID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM human_summaries WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count human summaries: %w", err)
	}
	return count, nil
}
