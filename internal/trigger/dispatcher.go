package trigger

import (
	"context"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/device"
)

// Trigger event kinds reported to Metrics.
const (
	EventTelemetry    = "telemetry"
	EventDeviceStatus = "device_status"
	EventSchedule     = "schedule"
)

// defaultWorkers bounds fan-out when Config.Workers is unset.
const defaultWorkers = 8

// Logger defines the logging interface used by trigger sources.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Firer runs one strategy against a trigger. *automation.Engine satisfies it.
type Firer interface {
	Fire(ctx context.Context, strategyID string, trigger automation.TriggerContext) (*automation.ExecutionRecord, error)
}

// StrategyLister finds the strategies a trigger kind should evaluate.
type StrategyLister interface {
	ListStrategyIDs(ctx context.Context, kind automation.TriggerKind, projectID string) ([]string, error)
}

// Registry resolves the sensor or device named by an event.
type Registry interface {
	GetSensorInfo(ctx context.Context, sensorID string) (automation.SensorInfo, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Metrics receives trigger counters. See internal/metrics.
type Metrics interface {
	TriggerReceived(kind string)
	FiringDropped(kind string)
}

type noopMetrics struct{}

func (noopMetrics) TriggerReceived(string) {}
func (noopMetrics) FiringDropped(string)   {}

// ExecutionSink receives a summary of every finalized firing.
// The InfluxDB client satisfies it.
type ExecutionSink interface {
	WriteExecution(strategyID, status string, actions, failed int, duration time.Duration)
}

// Sample is one new sensor reading.
type Sample struct {
	SensorID  string
	DeviceID  string
	Value     any
	Timestamp time.Time
}

// Dispatcher turns telemetry, status and schedule events into strategy
// firings.
//
// Each event fans out to every matching strategy on a bounded errgroup.
// Firings run detached from the caller's context, so a cancelled request or
// a dropped MQTT session never aborts a firing half way. Errors from a
// firing are logged and dropped; they are never retried.
type Dispatcher struct {
	engine     Firer
	strategies StrategyLister
	registry   Registry
	workers    int
	loc        *time.Location
	metrics    Metrics
	sink       ExecutionSink
	logger     Logger
}

// Config holds Dispatcher settings.
type Config struct {
	// Workers bounds concurrent firings per event.
	Workers int

	// Location is the site timezone used for schedule contexts.
	Location *time.Location
}

// NewDispatcher creates a trigger dispatcher.
func NewDispatcher(engine Firer, strategies StrategyLister, registry Registry, cfg Config, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		engine:     engine,
		strategies: strategies,
		registry:   registry,
		workers:    cfg.Workers,
		loc:        cfg.Location,
		metrics:    noopMetrics{},
		logger:     logger,
	}
}

// SetMetrics sets the metrics sink.
func (d *Dispatcher) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	d.metrics = m
}

// SetExecutionSink sets where firing summaries are mirrored.
func (d *Dispatcher) SetExecutionSink(sink ExecutionSink) {
	d.sink = sink
}

// ─── Trigger sources ────────────────────────────────────────────────────

// OnNewSample evaluates the telemetry strategies of the sensor's project.
//
// The returned error covers only resolving the sensor and listing
// strategies. Firing failures are logged.
func (d *Dispatcher) OnNewSample(ctx context.Context, s Sample) error {
	d.metrics.TriggerReceived(EventTelemetry)

	info, err := d.registry.GetSensorInfo(ctx, s.SensorID)
	if err != nil {
		return fmt.Errorf("resolving sensor %s: %w", s.SensorID, err)
	}
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	trigger := automation.TriggerContext{
		"sensor_id":   s.SensorID,
		"value":       s.Value,
		"timestamp":   ts.UTC().Format(time.RFC3339),
		"sensor_type": info.SensorType,
		"unit":        info.Unit,
		"device_id":   info.DeviceID,
		"device_name": info.DeviceName,
		"project_id":  info.ProjectID,
	}
	return d.fanOut(ctx, EventTelemetry, automation.TriggerTelemetry, info.ProjectID, trigger)
}

// OnStatusChange evaluates the device_status strategies of the device's
// project. Nothing fires when the status did not change.
func (d *Dispatcher) OnStatusChange(ctx context.Context, deviceID string, oldStatus, newStatus device.Status) error {
	if oldStatus == newStatus {
		return nil
	}
	d.metrics.TriggerReceived(EventDeviceStatus)

	dev, err := d.registry.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	trigger := automation.TriggerContext{
		"device_id":   dev.ID,
		"device_name": dev.Name,
		"old_status":  string(oldStatus),
		"new_status":  string(newStatus),
		"project_id":  dev.ProjectID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	return d.fanOut(ctx, EventDeviceStatus, automation.TriggerDeviceStatus, dev.ProjectID, trigger)
}

// ScanSchedules evaluates every schedule strategy against now in the site
// timezone. It is meant to run once per minute.
func (d *Dispatcher) ScanSchedules(ctx context.Context, now time.Time) error {
	d.metrics.TriggerReceived(EventSchedule)
	return d.fanOut(ctx, EventSchedule, automation.TriggerSchedule, "", ScheduleContext(now.In(d.loc)))
}

// ScheduleContext builds the trigger context for a schedule scan.
// current_day_of_week counts from Monday = 0.
func ScheduleContext(now time.Time) automation.TriggerContext {
	return automation.TriggerContext{
		"current_time":        now.Format("15:04"),
		"current_hour":        now.Hour(),
		"current_minute":      now.Minute(),
		"current_second":      now.Second(),
		"current_day_of_week": (int(now.Weekday()) + 6) % 7,
		"current_day":         now.Day(),
		"current_month":       int(now.Month()),
		"current_year":        now.Year(),
		"timestamp":           now.Format(time.RFC3339),
	}
}

// ─── Fan-out ────────────────────────────────────────────────────────────

func (d *Dispatcher) fanOut(ctx context.Context, event string, kind automation.TriggerKind, projectID string, trigger automation.TriggerContext) error {
	ids, err := d.strategies.ListStrategyIDs(ctx, kind, projectID)
	if err != nil {
		return fmt.Errorf("listing %s strategies: %w", kind, err)
	}
	if len(ids) == 0 {
		d.logger.Debug("no strategies for trigger", "event", event, "project_id", projectID)
		return nil
	}

	fireCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			d.fire(fireCtx, event, id, maps.Clone(trigger))
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) fire(ctx context.Context, event, strategyID string, trigger automation.TriggerContext) {
	start := time.Now()
	rec, err := d.engine.Fire(ctx, strategyID, trigger)
	if err != nil {
		d.metrics.FiringDropped(event)
		d.logger.Error("strategy firing failed",
			"event", event,
			"strategy_id", strategyID,
			"error", err,
		)
		return
	}
	if rec == nil {
		return
	}

	d.logger.Info("strategy fired",
		"event", event,
		"strategy_id", strategyID,
		"execution_id", rec.ID,
		"status", rec.Status,
	)

	if d.sink != nil {
		failed := 0
		for _, r := range rec.Results {
			if r.Status == automation.ActionFailed {
				failed++
			}
		}
		d.sink.WriteExecution(strategyID, string(rec.Status), len(rec.Results), failed, time.Since(start))
	}
}
