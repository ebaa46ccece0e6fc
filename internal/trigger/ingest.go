package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/mqtt"
)

// ErrInvalidPayload is returned for telemetry or status messages that cannot
// be decoded or name nothing to store.
var ErrInvalidPayload = errors.New("trigger: invalid payload")

// DeviceStore is the write side of the device registry used by ingestion.
// *device.SQLiteRepository satisfies it.
type DeviceStore interface {
	GetSensorInfo(ctx context.Context, sensorID string) (automation.SensorInfo, error)
	ListSensorsByDevice(ctx context.Context, deviceID string) ([]device.Sensor, error)
	RecordReading(ctx context.Context, sensorID string, value any, recordedAt time.Time) (*device.Reading, error)
	TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error
	UpdateDeviceStatus(ctx context.Context, id string, status device.Status, seenAt time.Time) (device.StatusChange, error)
}

// ReadingMirror receives a copy of every stored reading.
// The InfluxDB client satisfies it.
type ReadingMirror interface {
	WriteSensorReading(sensorID, deviceID string, value any, recordedAt time.Time)
}

// Subscriber registers MQTT handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// TelemetryMessage is the body of a device telemetry message. Either
// SensorID and Value name one reading, or Values maps sensor value keys to
// readings for the whole device.
type TelemetryMessage struct {
	SensorID  string         `json:"sensor_id,omitempty"`
	Value     any            `json:"value,omitempty"`
	Values    map[string]any `json:"values,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// StatusMessage is the body of a device status message.
type StatusMessage struct {
	Status    device.Status `json:"status"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
}

// Ingestor stores readings and status transitions on behalf of the device
// registry, then hands them to the Dispatcher.
type Ingestor struct {
	store      DeviceStore
	dispatcher *Dispatcher
	mirror     ReadingMirror
	logger     Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(store DeviceStore, dispatcher *Dispatcher, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{store: store, dispatcher: dispatcher, logger: logger}
}

// SetMirror sets where stored readings are copied.
func (in *Ingestor) SetMirror(m ReadingMirror) {
	in.mirror = m
}

// IngestSample stores one reading and triggers telemetry strategies.
// A sensor that does not exist is rejected before anything is stored.
func (in *Ingestor) IngestSample(ctx context.Context, s Sample) (*device.Reading, error) {
	if s.SensorID == "" {
		return nil, fmt.Errorf("%w: sensor_id is required", ErrInvalidPayload)
	}
	info, err := in.store.GetSensorInfo(ctx, s.SensorID)
	if err != nil {
		return nil, err
	}
	if s.DeviceID != "" && s.DeviceID != info.DeviceID {
		return nil, fmt.Errorf("%w: sensor %s does not belong to device %s", ErrInvalidPayload, s.SensorID, s.DeviceID)
	}

	reading, err := in.store.RecordReading(ctx, s.SensorID, s.Value, s.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := in.store.TouchLastSeen(ctx, info.DeviceID, reading.RecordedAt); err != nil {
		in.logger.Warn("failed to update device last seen", "device_id", info.DeviceID, "error", err)
	}
	if in.mirror != nil {
		in.mirror.WriteSensorReading(s.SensorID, info.DeviceID, s.Value, reading.RecordedAt)
	}

	if err := in.dispatcher.OnNewSample(ctx, Sample{
		SensorID:  s.SensorID,
		DeviceID:  info.DeviceID,
		Value:     s.Value,
		Timestamp: reading.RecordedAt,
	}); err != nil {
		in.logger.Error("telemetry trigger failed", "sensor_id", s.SensorID, "error", err)
	}
	return reading, nil
}

// IngestStatus records a device status and triggers device_status
// strategies when it changed.
func (in *Ingestor) IngestStatus(ctx context.Context, deviceID string, status device.Status, at time.Time) (device.StatusChange, error) {
	if at.IsZero() {
		at = time.Now()
	}
	change, err := in.store.UpdateDeviceStatus(ctx, deviceID, status, at)
	if err != nil {
		return device.StatusChange{}, err
	}
	if !change.Changed() {
		return change, nil
	}

	if err := in.dispatcher.OnStatusChange(ctx, deviceID, change.Old, change.New); err != nil {
		in.logger.Error("device status trigger failed", "device_id", deviceID, "error", err)
	}
	return change, nil
}

// ─── MQTT ───────────────────────────────────────────────────────────────

// Subscribe registers the telemetry and status handlers for all devices.
func (in *Ingestor) Subscribe(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllDeviceTelemetry(), qos, in.HandleTelemetry); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	if err := sub.Subscribe(mqtt.Topics{}.AllDeviceStatus(), qos, in.HandleStatus); err != nil {
		return fmt.Errorf("subscribing to status: %w", err)
	}
	return nil
}

// HandleTelemetry processes a message on novacloud/devices/{id}/telemetry.
func (in *Ingestor) HandleTelemetry(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || kind != mqtt.KindTelemetry {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidPayload, topic)
	}

	var msg TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var at time.Time
	if msg.Timestamp != nil {
		at = *msg.Timestamp
	}

	ctx := context.Background()
	if msg.SensorID != "" {
		_, err := in.IngestSample(ctx, Sample{SensorID: msg.SensorID, DeviceID: deviceID, Value: msg.Value, Timestamp: at})
		return err
	}
	if len(msg.Values) == 0 {
		return fmt.Errorf("%w: telemetry for %s has no sensor_id or values", ErrInvalidPayload, deviceID)
	}

	sensors, err := in.store.ListSensorsByDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sensors {
		v, ok := msg.Values[s.ValueKey]
		if !ok {
			continue
		}
		if _, err := in.IngestSample(ctx, Sample{SensorID: s.ID, DeviceID: deviceID, Value: v, Timestamp: at}); err != nil {
			errs = append(errs, fmt.Errorf("sensor %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// HandleStatus processes a message on novacloud/devices/{id}/status.
func (in *Ingestor) HandleStatus(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || kind != mqtt.KindStatus {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidPayload, topic)
	}

	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var at time.Time
	if msg.Timestamp != nil {
		at = *msg.Timestamp
	}

	_, err := in.IngestStatus(context.Background(), deviceID, msg.Status, at)
	return err
}
