package influxdb

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and field names.
const (
	MeasurementSensorReadings = "sensor_readings"
	MeasurementExecutions     = "strategy_executions"

	// FieldValue holds numeric readings; FieldText holds everything else.
	FieldValue = "value"
	FieldText  = "text"
)

// WriteSensorReading records one sensor sample. Numbers (and numeric
// strings) go to the "value" field, anything else to "text" in string form.
// The write is non-blocking.
func (c *Client) WriteSensorReading(sensorID, deviceID string, value any, recordedAt time.Time) {
	if !c.IsConnected() {
		return
	}
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	point := write.NewPoint(
		MeasurementSensorReadings,
		map[string]string{
			"sensor_id": sensorID,
			"device_id": deviceID,
		},
		readingFields(value),
		recordedAt,
	)
	c.writeAPI.WritePoint(point)
}

// WriteExecution records the outcome of one strategy firing.
func (c *Client) WriteExecution(strategyID, status string, actions, failed int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementExecutions,
		map[string]string{
			"strategy_id": strategyID,
			"status":      status,
		},
		map[string]any{
			"actions":     actions,
			"failed":      failed,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// readingFields splits a reading into the numeric or text field.
func readingFields(value any) map[string]any {
	switch v := value.(type) {
	case float64:
		return map[string]any{FieldValue: v}
	case float32:
		return map[string]any{FieldValue: float64(v)}
	case int:
		return map[string]any{FieldValue: float64(v)}
	case int64:
		return map[string]any{FieldValue: float64(v)}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return map[string]any{FieldValue: f}
		}
		return map[string]any{FieldText: v.String()}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return map[string]any{FieldValue: f}
		}
		return map[string]any{FieldText: v}
	case bool:
		return map[string]any{FieldText: strconv.FormatBool(v)}
	case nil:
		return map[string]any{FieldText: ""}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return map[string]any{FieldText: ""}
		}
		return map[string]any{FieldText: string(b)}
	}
}
