package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bgeigie-hub/internal/bgeigie"
)

// Measurement is a persisted record, the subset of a decoded sample
// that the map and the API serve.
type Measurement struct {
	ID         int64     `json:"id"`
	ImportID   int64     `json:"import_id"`
	DeviceID   int       `json:"device_id"`
	CapturedAt time.Time `json:"captured_at"`
	CPM        int       `json:"cpm"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
}

// WriteMeasurements replaces the measurement batch of an import in one
// transaction and updates the import's count and max count-rate.
// Replacing rather than appending keeps reprocessing idempotent.
func (s *Store) WriteMeasurements(ctx context.Context, importID int64, ms []bgeigie.Measurement) (int, error) {
	if _, err := s.Import(ctx, importID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE import_id = ?`, importID); err != nil {
		return 0, fmt.Errorf("clear measurements: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO measurements (import_id, device_id, captured_at, cpm, latitude, longitude, altitude_m)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	maxCPM := 0
	for _, m := range ms {
		var alt any
		if m.AltitudeM != nil {
			alt = *m.AltitudeM
		}
		if _, err := stmt.ExecContext(ctx, importID, m.DeviceID, m.CapturedAt.UTC(), m.CPM, m.Latitude, m.Longitude, alt); err != nil {
			return 0, fmt.Errorf("insert measurement: %w", err)
		}
		if m.CPM > maxCPM {
			maxCPM = m.CPM
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bgeigie_imports SET measurements_count = ?, max_cpm = ? WHERE id = ?`,
		len(ms), maxCPM, importID); err != nil {
		return 0, fmt.Errorf("update import counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ms), nil
}

// MeasurementsByImport returns the persisted batch of one import in
// capture order.
func (s *Store) MeasurementsByImport(ctx context.Context, importID int64) ([]Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, import_id, device_id, captured_at, cpm, latitude, longitude, altitude_m
		 FROM measurements WHERE import_id = ? ORDER BY captured_at, id`, importID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var (
			m   Measurement
			alt sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.ImportID, &m.DeviceID, &m.CapturedAt, &m.CPM, &m.Latitude, &m.Longitude, &alt); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		if alt.Valid {
			v := alt.Float64
			m.AltitudeM = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
