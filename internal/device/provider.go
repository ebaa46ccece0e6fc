package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
)

// TelemetryReader returns the latest value of a sensor. SQLiteRepository
// and the InfluxDB client both satisfy it.
type TelemetryReader interface {
	LatestSensorValue(ctx context.Context, sensorID string) (any, error)
}

// Provider implements automation.DataProvider over the device registry.
//
// Every lookup hits storage so conditions always see the current value.
// Missing rows and storage failures are reported as
// automation.ErrDataUnavailable; unknown attribute names as
// automation.ErrUnknownAttribute.
type Provider struct {
	repo      Repository
	telemetry TelemetryReader
	loc       *time.Location
	now       func() time.Time
}

// NewProvider creates a provider. telemetry defaults to repo when it can
// read readings itself, and loc defaults to UTC.
func NewProvider(repo Repository, telemetry TelemetryReader, loc *time.Location) *Provider {
	if telemetry == nil {
		if tr, ok := repo.(TelemetryReader); ok {
			telemetry = tr
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Provider{repo: repo, telemetry: telemetry, loc: loc, now: time.Now}
}

// LatestSensorValue returns the newest reading of a sensor.
func (p *Provider) LatestSensorValue(ctx context.Context, sensorID string) (any, error) {
	if p.telemetry == nil {
		return nil, fmt.Errorf("%w: no telemetry source", automation.ErrDataUnavailable)
	}
	v, err := p.telemetry.LatestSensorValue(ctx, sensorID)
	if err != nil {
		return nil, unavailable("sensor", sensorID, err)
	}
	return v, nil
}

// DeviceAttribute returns one enumerated attribute of a device.
func (p *Provider) DeviceAttribute(ctx context.Context, deviceID, attribute string) (any, error) {
	d, err := p.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, unavailable("device", deviceID, err)
	}
	return Attribute(d, attribute)
}

// SensorInfo returns a sensor with its owning device.
func (p *Provider) SensorInfo(ctx context.Context, sensorID string) (automation.SensorInfo, error) {
	info, err := p.repo.GetSensorInfo(ctx, sensorID)
	if err != nil {
		return automation.SensorInfo{}, unavailable("sensor", sensorID, err)
	}
	return info, nil
}

// ActuatorInfo returns an actuator with its owning device.
func (p *Provider) ActuatorInfo(ctx context.Context, actuatorID string) (automation.ActuatorInfo, error) {
	info, err := p.repo.GetActuatorInfo(ctx, actuatorID)
	if err != nil {
		return automation.ActuatorInfo{}, unavailable("actuator", actuatorID, err)
	}
	return info, nil
}

// Now returns the current time in the site timezone.
func (p *Provider) Now() time.Time {
	return p.now().In(p.loc)
}

func unavailable(kind, id string, err error) error {
	if errors.Is(err, automation.ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", automation.ErrDataUnavailable, kind, id, err)
}
