package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/novacloud-core/internal/device"
	"github.com/nerrad567/novacloud-core/internal/trigger"
)

// TelemetryRequest is the body of POST /api/v1/telemetry.
type TelemetryRequest struct {
	SensorID  string     `json:"sensor_id"`
	DeviceID  string     `json:"device_id,omitempty"`
	Value     any        `json:"value"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// StatusRequest is the body of POST /api/v1/devices/{id}/status.
type StatusRequest struct {
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// handleTelemetry stores one reading and triggers the sensor's telemetry
// strategies. The response is written once those firings finish, so a slow
// webhook action delays it.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req TelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value field is required")
		return
	}

	sample := trigger.Sample{SensorID: req.SensorID, DeviceID: req.DeviceID, Value: req.Value}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	reading, err := s.ingest.IngestSample(r.Context(), sample)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, reading)
	case errors.Is(err, device.ErrSensorNotFound):
		writeNotFound(w, "sensor not found")
	case errors.Is(err, trigger.ErrInvalidPayload), errors.Is(err, device.ErrInvalidReading):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("failed to ingest telemetry", "sensor_id", req.SensorID, "error", err)
		writeInternalError(w, "failed to store reading")
	}
}

// handleDeviceStatus records a device status and fires device_status
// strategies when it changed.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	change, err := s.ingest.IngestStatus(r.Context(), id, device.Status(req.Status), at)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"device_id":  change.DeviceID,
			"old_status": change.Old,
			"new_status": change.New,
			"changed":    change.Changed(),
		})
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrInvalidStatus):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("failed to ingest device status", "device_id", id, "error", err)
		writeInternalError(w, "failed to update status")
	}
}
