package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/novacloud-core/internal/automation"
)

// Repository is the read and status-update surface of the device registry.
// The registry itself is owned elsewhere; this service reads it at trigger
// time and writes only device status, readings and command logs.
type Repository interface {
	// GetDevice retrieves a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// GetSensorInfo returns a sensor joined with its device.
	// Returns ErrSensorNotFound if the sensor does not exist.
	GetSensorInfo(ctx context.Context, sensorID string) (automation.SensorInfo, error)

	// GetActuatorInfo returns an actuator joined with its device.
	// Returns ErrActuatorNotFound if the actuator does not exist.
	GetActuatorInfo(ctx context.Context, actuatorID string) (automation.ActuatorInfo, error)

	// UpdateDeviceStatus sets a device's status and last-seen time and
	// reports the transition.
	UpdateDeviceStatus(ctx context.Context, id string, status Status, seenAt time.Time) (StatusChange, error)
}

// SQLiteRepository implements Repository and automation.CommandStore using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ─── Registry reads ─────────────────────────────────────────────────────

// GetDevice retrieves a device by ID.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, identifier, name, project_id, status, last_seen, created_at
		 FROM devices WHERE id = ?`, id)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// GetSensorInfo returns a sensor joined with its device.
func (r *SQLiteRepository) GetSensorInfo(ctx context.Context, sensorID string) (automation.SensorInfo, error) {
	var (
		info            automation.SensorInfo
		unit, projectID sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.name, s.sensor_type, s.unit, d.id, d.name, d.project_id
		 FROM sensors s JOIN devices d ON d.id = s.device_id
		 WHERE s.id = ?`, sensorID,
	).Scan(&info.ID, &info.Name, &info.SensorType, &unit, &info.DeviceID, &info.DeviceName, &projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.SensorInfo{}, ErrSensorNotFound
	}
	if err != nil {
		return automation.SensorInfo{}, fmt.Errorf("querying sensor: %w", err)
	}
	info.Unit = unit.String
	info.ProjectID = projectID.String
	return info, nil
}

// GetActuatorInfo returns an actuator joined with its device.
func (r *SQLiteRepository) GetActuatorInfo(ctx context.Context, actuatorID string) (automation.ActuatorInfo, error) {
	var info automation.ActuatorInfo
	err := r.db.QueryRowContext(ctx,
		`SELECT a.id, a.name, a.actuator_type, a.command_key, d.id, d.name
		 FROM actuators a JOIN devices d ON d.id = a.device_id
		 WHERE a.id = ?`, actuatorID,
	).Scan(&info.ID, &info.Name, &info.ActuatorType, &info.CommandKey, &info.DeviceID, &info.DeviceName)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.ActuatorInfo{}, ErrActuatorNotFound
	}
	if err != nil {
		return automation.ActuatorInfo{}, fmt.Errorf("querying actuator: %w", err)
	}
	return info, nil
}

// ListSensorsByDevice returns a device's sensors ordered by ID. Telemetry
// ingestion uses it to map payload keys to sensors.
func (r *SQLiteRepository) ListSensorsByDevice(ctx context.Context, deviceID string) ([]Sensor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, name, sensor_type, unit, value_key
		 FROM sensors WHERE device_id = ? ORDER BY id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		var (
			s    Sensor
			unit sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Name, &s.SensorType, &unit, &s.ValueKey); err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		s.Unit = unit.String
		sensors = append(sensors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return sensors, nil
}

// ─── Status ─────────────────────────────────────────────────────────────

// UpdateDeviceStatus sets a device's status and last-seen time in one
// transaction and returns the old and new status.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Device ID
//   - status: New status, must be one of AllStatuses
//   - seenAt: Time the device was last heard from
//
// Returns:
//   - StatusChange: Old and new status of the device
//   - error: ErrInvalidStatus, ErrDeviceNotFound or a database error
func (r *SQLiteRepository) UpdateDeviceStatus(ctx context.Context, id string, status Status, seenAt time.Time) (StatusChange, error) {
	if err := ValidateStatus(status); err != nil {
		return StatusChange{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return StatusChange{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		old       string
		projectID sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		"SELECT status, project_id FROM devices WHERE id = ?", id,
	).Scan(&old, &projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusChange{}, ErrDeviceNotFound
	}
	if err != nil {
		return StatusChange{}, fmt.Errorf("querying device status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE devices SET status = ?, last_seen = ? WHERE id = ?",
		string(status), formatTime(seenAt), id,
	); err != nil {
		return StatusChange{}, fmt.Errorf("updating device status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return StatusChange{}, fmt.Errorf("committing status update: %w", err)
	}

	return StatusChange{
		DeviceID:  id,
		ProjectID: projectID.String,
		Old:       Status(old),
		New:       status,
	}, nil
}

// TouchLastSeen records that a device was heard from without changing its status.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = ? WHERE id = ?", formatTime(seenAt), id)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ─── Command logs ───────────────────────────────────────────────────────

// CreateCommandLog inserts a command log. Missing ID, status and timestamps
// are filled in.
func (r *SQLiteRepository) CreateCommandLog(ctx context.Context, log *automation.CommandLog) error {
	if log.ActuatorID == "" {
		return fmt.Errorf("%w: command log needs an actuator", ErrInvalidDevice)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Status == "" {
		log.Status = automation.CommandPending
	}
	now := time.Now().UTC().Truncate(time.Second)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = log.CreatedAt

	payload := log.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling command payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO command_logs (id, actuator_id, payload, status, response, source,
		 execution_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.ActuatorID, string(payloadJSON), string(log.Status),
		nullableString(log.Response), log.Source, nullableString(log.ExecutionID),
		formatTime(log.CreatedAt), formatTime(log.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// UpdateCommandLogStatus records the dispatch outcome of a command log.
func (r *SQLiteRepository) UpdateCommandLogStatus(ctx context.Context, id string, status automation.CommandStatus, response string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE command_logs SET status = ?, response = ?, updated_at = ? WHERE id = ?",
		string(status), nullableString(response), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating command log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrCommandLogNotFound
	}
	return nil
}

// GetCommandLog retrieves a command log by ID.
func (r *SQLiteRepository) GetCommandLog(ctx context.Context, id string) (*automation.CommandLog, error) {
	var (
		log                   automation.CommandLog
		payloadJSON, status   string
		response, executionID sql.NullString
		createdAt, updatedAt  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, actuator_id, payload, status, response, source, execution_id,
		 created_at, updated_at
		 FROM command_logs WHERE id = ?`, id,
	).Scan(&log.ID, &log.ActuatorID, &payloadJSON, &status, &response, &log.Source,
		&executionID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommandLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}

	if err := json.Unmarshal([]byte(payloadJSON), &log.Payload); err != nil {
		return nil, fmt.Errorf("unmarshalling command payload: %w", err)
	}
	log.Status = automation.CommandStatus(status)
	log.Response = response.String
	log.ExecutionID = executionID.String
	log.CreatedAt = parseTime(createdAt)
	log.UpdatedAt = parseTime(updatedAt)
	return &log, nil
}

// ─── Registry writes ────────────────────────────────────────────────────
//
// The registry is provisioned by the platform's device service. These
// writers exist for seeding, local development and tests.

// CreateProject inserts a project row.
func (r *SQLiteRepository) CreateProject(ctx context.Context, id, name, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)",
		id, name, nullableString(ownerID), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// CreateDevice inserts a device. An empty ID is generated and an empty
// status defaults to unregistered.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusUnregistered
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	var lastSeen sql.NullString
	if d.LastSeen != nil {
		lastSeen = sql.NullString{String: formatTime(*d.LastSeen), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, identifier, name, project_id, status, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Identifier, d.Name, nullableString(d.ProjectID), string(d.Status),
		lastSeen, formatTime(d.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// CreateSensor inserts a sensor for an existing device.
func (r *SQLiteRepository) CreateSensor(ctx context.Context, s *Sensor) error {
	if err := ValidateSensor(s); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sensors (id, device_id, name, sensor_type, unit, value_key)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceID, s.Name, s.SensorType, nullableString(s.Unit), s.ValueKey,
	)
	if err != nil {
		return fmt.Errorf("inserting sensor: %w", err)
	}
	return nil
}

// CreateActuator inserts an actuator for an existing device.
func (r *SQLiteRepository) CreateActuator(ctx context.Context, a *Actuator) error {
	if err := ValidateActuator(a); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ActuatorType == "" {
		a.ActuatorType = "switch"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO actuators (id, device_id, name, actuator_type, command_key, current_state)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.Name, a.ActuatorType, a.CommandKey, nullableString(a.CurrentState),
	)
	if err != nil {
		return fmt.Errorf("inserting actuator: %w", err)
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var (
		d                   Device
		status, createdAt   string
		projectID, lastSeen sql.NullString
	)
	if err := scanner.Scan(&d.ID, &d.Identifier, &d.Name, &projectID, &status, &lastSeen, &createdAt); err != nil {
		return nil, err
	}
	d.ProjectID = projectID.String
	d.Status = Status(status)
	d.CreatedAt = parseTime(createdAt)
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "primary key")
}
