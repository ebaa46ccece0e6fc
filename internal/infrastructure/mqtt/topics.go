package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for NovaCloud traffic.
//
// Devices publish under novacloud/devices/{device_id}/...; Core publishes
// commands back down the same tree and its own presence under system.
const (
	// TopicPrefixDevices is the base for all per-device topics.
	TopicPrefixDevices = "novacloud/devices"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "novacloud/system"
)

// Device topic kinds, the segment after the device ID.
const (
	KindTelemetry = "telemetry"
	KindStatus    = "status"
	KindCommand   = "command"
)

// Topics provides builders for NovaCloud MQTT topics.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceCommand("dev-7", "power")
//	// Returns: "novacloud/devices/dev-7/command/power"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceTelemetry returns the topic a device publishes sensor samples on.
//
// Example: novacloud/devices/dev-7/telemetry
func (Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, KindTelemetry)
}

// DeviceStatus returns the topic a device reports its status on.
//
// Example: novacloud/devices/dev-7/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, deviceID, KindStatus)
}

// DeviceCommand returns the topic for an actuator command.
//
// Example: novacloud/devices/dev-7/command/power
func (Topics) DeviceCommand(deviceID, commandKey string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixDevices, deviceID, KindCommand, commandKey)
}

// =============================================================================
// Notification Topics
// =============================================================================

// PlatformMessage returns the topic for an in-platform message to a user.
//
// Example: novacloud/notifications/u-42
func (Topics) PlatformMessage(prefix, recipient string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(prefix, "/"), recipient)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the Core presence topic.
//
// Example: novacloud/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceTelemetry returns a pattern matching telemetry from every device.
//
// Pattern: novacloud/devices/+/telemetry
func (Topics) AllDeviceTelemetry() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, KindTelemetry)
}

// AllDeviceStatus returns a pattern matching status from every device.
//
// Pattern: novacloud/devices/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevices, KindStatus)
}

// ParseDeviceTopic splits a device topic into its device ID and kind.
// It reports false for topics outside the device tree.
//
//	id, kind, ok := mqtt.ParseDeviceTopic("novacloud/devices/dev-7/telemetry")
//	// "dev-7", "telemetry", true
func ParseDeviceTopic(topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
