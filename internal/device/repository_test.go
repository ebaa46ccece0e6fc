package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/database"
	_ "github.com/nerrad567/novacloud-core/migrations"
)

// setupTestDB opens a migrated file-backed database in a temp dir.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:         filepath.Join(t.TempDir(), "device.db"),
		WALMode:      true,
		BusyTimeout:  5,
		MaxOpenConns: 4,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// seedRegistry creates project p-1 with device d-1, sensor s-1 (temperature)
// and actuator a-1 (power).
func seedRegistry(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.CreateProject(ctx, "p-1", "Greenhouse", "u-1"); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if err := repo.CreateDevice(ctx, &Device{
		ID: "d-1", Identifier: "AA:BB:CC:01", Name: "Greenhouse controller",
		ProjectID: "p-1", Status: StatusOffline,
	}); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := repo.CreateSensor(ctx, &Sensor{
		ID: "s-1", DeviceID: "d-1", Name: "Air temperature",
		SensorType: "temperature", Unit: "°C", ValueKey: "temp",
	}); err != nil {
		t.Fatalf("CreateSensor() error = %v", err)
	}
	if err := repo.CreateActuator(ctx, &Actuator{
		ID: "a-1", DeviceID: "d-1", Name: "Vent fan",
		ActuatorType: "switch", CommandKey: "power",
	}); err != nil {
		t.Fatalf("CreateActuator() error = %v", err)
	}
}

func TestGetDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	d, err := repo.GetDevice(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Name != "Greenhouse controller" || d.Identifier != "AA:BB:CC:01" {
		t.Errorf("GetDevice() = %+v", d)
	}
	if d.ProjectID != "p-1" {
		t.Errorf("ProjectID = %q, want p-1", d.ProjectID)
	}
	if d.Status != StatusOffline {
		t.Errorf("Status = %q, want offline", d.Status)
	}
	if d.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", d.LastSeen)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if _, err := repo.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCreateDevice_Defaults(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := &Device{Identifier: "SN-001", Name: "Loose sensor"}
	if err := repo.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.ID == "" {
		t.Fatal("CreateDevice() should generate an ID")
	}

	got, err := repo.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.Status != StatusUnregistered {
		t.Errorf("Status = %q, want unregistered", got.Status)
	}
	if got.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", got.ProjectID)
	}
}

func TestCreateDevice_Duplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)

	err := repo.CreateDevice(context.Background(), &Device{
		ID: "d-2", Identifier: "AA:BB:CC:01", Name: "Clone",
	})
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("CreateDevice(duplicate identifier) error = %v, want ErrDeviceExists", err)
	}
}

func TestCreateDevice_Invalid(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	err := repo.CreateDevice(context.Background(), &Device{Identifier: "SN-9"})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("CreateDevice(no name) error = %v, want ErrInvalidDevice", err)
	}
}

func TestGetSensorInfo(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	info, err := repo.GetSensorInfo(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSensorInfo() error = %v", err)
	}
	want := automation.SensorInfo{
		ID: "s-1", Name: "Air temperature", SensorType: "temperature", Unit: "°C",
		DeviceID: "d-1", DeviceName: "Greenhouse controller", ProjectID: "p-1",
	}
	if info != want {
		t.Errorf("GetSensorInfo() = %+v, want %+v", info, want)
	}

	if _, err := repo.GetSensorInfo(ctx, "missing"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("GetSensorInfo(missing) error = %v, want ErrSensorNotFound", err)
	}
}

func TestGetActuatorInfo(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	info, err := repo.GetActuatorInfo(ctx, "a-1")
	if err != nil {
		t.Fatalf("GetActuatorInfo() error = %v", err)
	}
	want := automation.ActuatorInfo{
		ID: "a-1", Name: "Vent fan", ActuatorType: "switch", CommandKey: "power",
		DeviceID: "d-1", DeviceName: "Greenhouse controller",
	}
	if info != want {
		t.Errorf("GetActuatorInfo() = %+v, want %+v", info, want)
	}

	if _, err := repo.GetActuatorInfo(ctx, "missing"); !errors.Is(err, ErrActuatorNotFound) {
		t.Errorf("GetActuatorInfo(missing) error = %v, want ErrActuatorNotFound", err)
	}
}

func TestListSensorsByDevice(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	if err := repo.CreateSensor(ctx, &Sensor{
		ID: "s-0", DeviceID: "d-1", Name: "Humidity", SensorType: "humidity", ValueKey: "rh",
	}); err != nil {
		t.Fatalf("CreateSensor() error = %v", err)
	}

	sensors, err := repo.ListSensorsByDevice(ctx, "d-1")
	if err != nil {
		t.Fatalf("ListSensorsByDevice() error = %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("len(sensors) = %d, want 2", len(sensors))
	}
	if sensors[0].ID != "s-0" || sensors[1].ID != "s-1" {
		t.Errorf("order = [%s %s], want [s-0 s-1]", sensors[0].ID, sensors[1].ID)
	}
	if sensors[0].Unit != "" || sensors[1].Unit != "°C" {
		t.Errorf("units = [%q %q]", sensors[0].Unit, sensors[1].Unit)
	}

	none, err := repo.ListSensorsByDevice(ctx, "missing")
	if err != nil {
		t.Fatalf("ListSensorsByDevice(missing) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListSensorsByDevice(missing) = %d sensors, want 0", len(none))
	}
}

func TestUpdateDeviceStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()
	seen := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	change, err := repo.UpdateDeviceStatus(ctx, "d-1", StatusOnline, seen)
	if err != nil {
		t.Fatalf("UpdateDeviceStatus() error = %v", err)
	}
	want := StatusChange{DeviceID: "d-1", ProjectID: "p-1", Old: StatusOffline, New: StatusOnline}
	if change != want {
		t.Errorf("UpdateDeviceStatus() = %+v, want %+v", change, want)
	}
	if !change.Changed() {
		t.Error("Changed() = false, want true")
	}

	d, err := repo.GetDevice(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Status != StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, seen)
	}

	// Same status again is reported but not a change.
	again, err := repo.UpdateDeviceStatus(ctx, "d-1", StatusOnline, seen.Add(time.Minute))
	if err != nil {
		t.Fatalf("UpdateDeviceStatus(repeat) error = %v", err)
	}
	if again.Changed() {
		t.Errorf("repeat update Changed() = true, change = %+v", again)
	}
}

func TestUpdateDeviceStatus_Errors(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	if _, err := repo.UpdateDeviceStatus(ctx, "d-1", Status("rebooting"), time.Now()); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("invalid status error = %v, want ErrInvalidStatus", err)
	}
	if _, err := repo.UpdateDeviceStatus(ctx, "missing", StatusOnline, time.Now()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing device error = %v, want ErrDeviceNotFound", err)
	}
}

func TestTouchLastSeen(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()
	seen := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	if err := repo.TouchLastSeen(ctx, "d-1", seen); err != nil {
		t.Fatalf("TouchLastSeen() error = %v", err)
	}
	d, _ := repo.GetDevice(ctx, "d-1")
	if d.LastSeen == nil || !d.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, seen)
	}
	if d.Status != StatusOffline {
		t.Errorf("Status changed to %q", d.Status)
	}

	if err := repo.TouchLastSeen(ctx, "missing", seen); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("TouchLastSeen(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCommandLogLifecycle(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedRegistry(t, repo)
	ctx := context.Background()

	log := &automation.CommandLog{
		ActuatorID:  "a-1",
		Payload:     map[string]any{"state": "on", "speed": float64(3)},
		Source:      "strategy:st-1",
		ExecutionID: "ex-1",
	}
	if err := repo.CreateCommandLog(ctx, log); err != nil {
		t.Fatalf("CreateCommandLog() error = %v", err)
	}
	if log.ID == "" {
		t.Fatal("CreateCommandLog() should generate an ID")
	}

	got, err := repo.GetCommandLog(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetCommandLog() error = %v", err)
	}
	if got.Status != automation.CommandPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Payload["state"] != "on" || got.Payload["speed"] != float64(3) {
		t.Errorf("Payload = %v", got.Payload)
	}
	if got.ExecutionID != "ex-1" || got.Source != "strategy:st-1" {
		t.Errorf("GetCommandLog() = %+v", got)
	}

	if err := repo.UpdateCommandLogStatus(ctx, log.ID, automation.CommandSent, "published"); err != nil {
		t.Fatalf("UpdateCommandLogStatus() error = %v", err)
	}
	got, _ = repo.GetCommandLog(ctx, log.ID)
	if got.Status != automation.CommandSent || got.Response != "published" {
		t.Errorf("after update = %q / %q, want sent / published", got.Status, got.Response)
	}

	if err := repo.UpdateCommandLogStatus(ctx, "missing", automation.CommandFailed, ""); !errors.Is(err, ErrCommandLogNotFound) {
		t.Errorf("UpdateCommandLogStatus(missing) error = %v, want ErrCommandLogNotFound", err)
	}
	if _, err := repo.GetCommandLog(ctx, "missing"); !errors.Is(err, ErrCommandLogNotFound) {
		t.Errorf("GetCommandLog(missing) error = %v, want ErrCommandLogNotFound", err)
	}
}

func TestCreateCommandLog_RequiresActuator(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	err := repo.CreateCommandLog(context.Background(), &automation.CommandLog{Source: "manual"})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("CreateCommandLog(no actuator) error = %v, want ErrInvalidDevice", err)
	}
}

func TestDeviceDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	seedRegistry(t, repo)
	ctx := context.Background()

	if _, err := repo.RecordReading(ctx, "s-1", 21.5, time.Time{}); err != nil {
		t.Fatalf("RecordReading() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", "d-1"); err != nil {
		t.Fatalf("deleting device: %v", err)
	}

	if _, err := repo.GetSensorInfo(ctx, "s-1"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("sensor after cascade error = %v, want ErrSensorNotFound", err)
	}
	if _, err := repo.LatestReading(ctx, "s-1"); !errors.Is(err, ErrNoReadings) {
		t.Errorf("readings after cascade error = %v, want ErrNoReadings", err)
	}
}
