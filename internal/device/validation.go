package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxNameLength       = 200
	maxIdentifierLength = 100
)

// ValidateStatus checks that s is one of the enumerated statuses.
func ValidateStatus(s Status) error {
	for _, valid := range AllStatuses() {
		if s == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ValidateDevice checks a device before it is stored.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDevice)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if strings.TrimSpace(d.Identifier) == "" {
		return fmt.Errorf("%w: identifier cannot be empty", ErrInvalidDevice)
	}
	if len(d.Identifier) > maxIdentifierLength {
		return fmt.Errorf("%w: identifier exceeds %d characters", ErrInvalidDevice, maxIdentifierLength)
	}
	if d.Status != "" {
		if err := ValidateStatus(d.Status); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSensor checks a sensor before it is stored.
func ValidateSensor(s *Sensor) error {
	switch {
	case s == nil:
		return ErrInvalidDevice
	case s.DeviceID == "":
		return fmt.Errorf("%w: sensor needs a device", ErrInvalidDevice)
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: sensor name cannot be empty", ErrInvalidDevice)
	case s.SensorType == "":
		return fmt.Errorf("%w: sensor type is required", ErrInvalidDevice)
	case s.ValueKey == "":
		return fmt.Errorf("%w: sensor value key is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateActuator checks an actuator before it is stored. The command key
// becomes an MQTT topic segment, so it cannot contain '/', '+' or '#'.
func ValidateActuator(a *Actuator) error {
	switch {
	case a == nil:
		return ErrInvalidDevice
	case a.DeviceID == "":
		return fmt.Errorf("%w: actuator needs a device", ErrInvalidDevice)
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: actuator name cannot be empty", ErrInvalidDevice)
	case a.CommandKey == "":
		return fmt.Errorf("%w: command key is required", ErrInvalidDevice)
	case strings.ContainsAny(a.CommandKey, "/+#"):
		return fmt.Errorf("%w: command key %q contains topic characters", ErrInvalidDevice, a.CommandKey)
	}
	return nil
}
