package device

import "time"

// Status is the connectivity state of a device.
type Status string

// Device statuses.
const (
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusUnregistered Status = "unregistered"
	StatusError        Status = "error"
	StatusDisabled     Status = "disabled"
)

// AllStatuses lists every valid device status.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusUnregistered, StatusError, StatusDisabled}
}

// Device is a physical IoT device registered to a project.
type Device struct {
	// ID is the registry identifier used in MQTT topics and strategy conditions.
	ID string `json:"id"`

	// Identifier is the physical identifier (serial, MAC) reported by the hardware.
	Identifier string `json:"identifier"`

	Name      string     `json:"name"`
	ProjectID string     `json:"project_id,omitempty"`
	Status    Status     `json:"status"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Sensor is a measuring channel of a device.
type Sensor struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	SensorType string `json:"sensor_type"`
	Unit       string `json:"unit,omitempty"`

	// ValueKey is the key of this sensor's value in device telemetry payloads.
	ValueKey string `json:"value_key"`
}

// Actuator is a controllable channel of a device.
type Actuator struct {
	ID           string `json:"id"`
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	ActuatorType string `json:"actuator_type"`

	// CommandKey is the last segment of the actuator's command topic.
	CommandKey string `json:"command_key"`

	CurrentState string `json:"current_state,omitempty"`
}

// Reading is one stored sensor sample. Value holds the decoded JSON value:
// float64, string, bool, nil or a composite.
type Reading struct {
	ID         int64     `json:"id"`
	SensorID   string    `json:"sensor_id"`
	Value      any       `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StatusChange describes a device status transition.
type StatusChange struct {
	DeviceID  string `json:"device_id"`
	ProjectID string `json:"project_id,omitempty"`
	Old       Status `json:"old_status"`
	New       Status `json:"new_status"`
}

// Changed reports whether the status actually moved.
func (c StatusChange) Changed() bool {
	return c.Old != c.New
}
