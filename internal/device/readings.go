package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RecordReading stores one sensor sample. The value is kept as JSON text so
// numbers, strings and booleans round-trip with their type.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sensorID: Sensor that produced the sample
//   - value: Decoded sample value
//   - recordedAt: Sample time; zero means now
//
// Returns:
//   - *Reading: The stored reading with its assigned ID
//   - error: ErrInvalidReading or the underlying database error
func (r *SQLiteRepository) RecordReading(ctx context.Context, sensorID string, value any, recordedAt time.Time) (*Reading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor id is required", ErrInvalidReading)
	}
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	recordedAt = recordedAt.UTC().Truncate(time.Second)

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO sensor_readings (sensor_id, value, recorded_at) VALUES (?, ?, ?)",
		sensorID, string(valueJSON), formatTime(recordedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting reading: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}

	return &Reading{ID: id, SensorID: sensorID, Value: value, RecordedAt: recordedAt}, nil
}

// LatestReading returns the newest reading of a sensor. Ties on recorded_at
// go to the most recently inserted row.
func (r *SQLiteRepository) LatestReading(ctx context.Context, sensorID string) (*Reading, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sensor_id, value, recorded_at
		 FROM sensor_readings
		 WHERE sensor_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`, sensorID)

	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReadings
	}
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// LatestSensorValue returns only the value of the newest reading.
func (r *SQLiteRepository) LatestSensorValue(ctx context.Context, sensorID string) (any, error) {
	reading, err := r.LatestReading(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	return reading.Value, nil
}

// ReadingHistory returns recent readings of a sensor, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) ReadingHistory(ctx context.Context, sensorID string, limit int) ([]Reading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("%w: sensor id is required", ErrInvalidReading)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sensor_id, value, recorded_at
		 FROM sensor_readings
		 WHERE sensor_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// PruneReadings deletes readings older than the given duration.
func (r *SQLiteRepository) PruneReadings(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_readings WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanReading(scanner rowScanner) (*Reading, error) {
	var (
		reading               Reading
		valueJSON, recordedAt string
	)
	if err := scanner.Scan(&reading.ID, &reading.SensorID, &valueJSON, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning reading: %w", err)
	}
	if err := json.Unmarshal([]byte(valueJSON), &reading.Value); err != nil {
		return nil, fmt.Errorf("unmarshalling reading value: %w", err)
	}
	reading.RecordedAt = parseTime(recordedAt)
	return &reading, nil
}
