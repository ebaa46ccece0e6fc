package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrNoReadings) {
//	    // sensor has never reported
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or identifier is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrSensorNotFound is returned when a sensor ID does not exist.
	ErrSensorNotFound = errors.New("device: sensor not found")

	// ErrActuatorNotFound is returned when an actuator ID does not exist.
	ErrActuatorNotFound = errors.New("device: actuator not found")

	// ErrNoReadings is returned when a sensor has no stored readings.
	ErrNoReadings = errors.New("device: no readings")

	// ErrCommandLogNotFound is returned when a command log ID does not exist.
	ErrCommandLogNotFound = errors.New("device: command log not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidStatus is returned for a status outside the enumerated set.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidReading is returned when a reading cannot be stored.
	ErrInvalidReading = errors.New("device: invalid reading")
)
