package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataProvider is the read-only view of telemetry and devices the engine
// evaluates against. Reads are point-in-time; values written during an
// evaluation may or may not be seen.
//
// Implementations return errors wrapping ErrDataUnavailable when a sensor or
// device has no data, and ErrUnknownAttribute for attribute names outside
// their enumerated set.
type DataProvider interface {
	// LatestSensorValue returns the most recent reading of a sensor.
	LatestSensorValue(ctx context.Context, sensorID string) (any, error)

	// DeviceAttribute returns one named attribute of a device.
	DeviceAttribute(ctx context.Context, deviceID, attribute string) (any, error)

	// SensorInfo returns a sensor with its owning device.
	SensorInfo(ctx context.Context, sensorID string) (SensorInfo, error)

	// ActuatorInfo returns an actuator with its owning device.
	ActuatorInfo(ctx context.Context, actuatorID string) (ActuatorInfo, error)

	// Now returns the current time in the site's local timezone.
	Now() time.Time
}

// Evaluator decides whether a strategy's conditions hold for a trigger.
//
// It never returns errors: a condition that cannot be resolved evaluates to
// false and the reason is logged. Evaluator holds no mutable state and is
// safe for concurrent use.
type Evaluator struct {
	provider DataProvider
	logger   Logger
}

// NewEvaluator creates an evaluator reading from provider.
func NewEvaluator(provider DataProvider, logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{provider: provider, logger: logger}
}

// EvaluateStrategy reports whether every group holds, in the order given.
// A strategy without groups is never satisfied.
func (ev *Evaluator) EvaluateStrategy(ctx context.Context, groups []ConditionGroup, trigger TriggerContext) bool {
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if !ev.EvaluateGroup(ctx, g, trigger) {
			ev.logger.Debug("condition group not satisfied", "group_id", g.ID)
			return false
		}
	}
	return true
}

// EvaluateGroup combines the group's conditions with its operator,
// stopping at the first false (AND) or first true (OR). An empty group holds.
func (ev *Evaluator) EvaluateGroup(ctx context.Context, g ConditionGroup, trigger TriggerContext) bool {
	if len(g.Conditions) == 0 {
		return true
	}

	switch g.Operator {
	case LogicalAnd:
		for _, c := range g.Conditions {
			if !ev.EvaluateCondition(ctx, c, trigger) {
				return false
			}
		}
		return true
	case LogicalOr:
		for _, c := range g.Conditions {
			if ev.EvaluateCondition(ctx, c, trigger) {
				return true
			}
		}
		return false
	default:
		ev.logger.Warn("condition group has invalid operator",
			"group_id", g.ID,
			"operator", g.Operator,
		)
		return false
	}
}

// EvaluateCondition reports whether a single condition holds. Any failure to
// resolve the actual value or threshold yields false.
func (ev *Evaluator) EvaluateCondition(ctx context.Context, c Condition, trigger TriggerContext) bool {
	result, err := ev.evaluate(ctx, c, trigger)
	if err != nil {
		level := ev.logger.Debug
		if errors.Is(err, ErrConfiguration) {
			level = ev.logger.Warn
		}
		level("condition evaluated false",
			"condition_id", c.ID,
			"data_source", c.Source,
			"error", err,
		)
		return false
	}
	return result
}

func (ev *Evaluator) evaluate(ctx context.Context, c Condition, trigger TriggerContext) (bool, error) {
	cmp, ok := comparators[c.Operator]
	if !ok {
		return false, fmt.Errorf("%w: unsupported operator %q", ErrConfiguration, c.Operator)
	}

	actual, err := ev.resolveActual(ctx, c, trigger)
	if err != nil {
		return false, fmt.Errorf("resolving actual value: %w", err)
	}

	threshold, err := ev.resolveThreshold(ctx, c)
	if err != nil {
		return false, fmt.Errorf("resolving threshold: %w", err)
	}

	return cmp(actual, threshold), nil
}

func (ev *Evaluator) resolveActual(ctx context.Context, c Condition, trigger TriggerContext) (any, error) {
	switch c.Source {
	case SourceSensorValue:
		if c.SensorID == "" {
			return nil, fmt.Errorf("%w: sensor_value condition has no sensor", ErrConfiguration)
		}
		// The triggering sample is authoritative for its own sensor.
		if trigger.String("sensor_id") == c.SensorID {
			if v, ok := trigger["value"]; ok {
				return v, nil
			}
		}
		return ev.provider.LatestSensorValue(ctx, c.SensorID)

	case SourceDeviceAttribute:
		if c.DeviceAttribute == "" {
			return nil, fmt.Errorf("%w: device_attribute condition has no attribute name", ErrConfiguration)
		}
		deviceID, err := ev.resolveDevice(ctx, c, trigger)
		if err != nil {
			return nil, err
		}
		return ev.provider.DeviceAttribute(ctx, deviceID, c.DeviceAttribute)

	case SourceTimeOfDay:
		return ev.provider.Now().Format("15:04"), nil

	case SourceSpecificTime:
		return float64(ev.provider.Now().UnixMilli()) / 1000, nil

	default:
		return nil, fmt.Errorf("%w: unsupported data source %q", ErrConfiguration, c.Source)
	}
}

// resolveDevice picks the device for a device_attribute condition: the
// condition's own device, then the trigger's device, then the owner of the
// trigger's sensor, then the owner of the condition's sensor.
func (ev *Evaluator) resolveDevice(ctx context.Context, c Condition, trigger TriggerContext) (string, error) {
	if c.DeviceID != "" {
		return c.DeviceID, nil
	}
	if id := trigger.String("device_id"); id != "" {
		return id, nil
	}
	for _, sensorID := range []string{trigger.String("sensor_id"), c.SensorID} {
		if sensorID == "" {
			continue
		}
		info, err := ev.provider.SensorInfo(ctx, sensorID)
		if err != nil {
			return "", fmt.Errorf("sensor %s: %w", sensorID, err)
		}
		if info.DeviceID != "" {
			return info.DeviceID, nil
		}
	}
	return "", fmt.Errorf("%w: cannot determine device for attribute %q", ErrConfiguration, c.DeviceAttribute)
}

func (ev *Evaluator) resolveThreshold(ctx context.Context, c Condition) (any, error) {
	switch c.ThresholdKind {
	case ThresholdStatic, "":
		return c.ThresholdStatic, nil

	case ThresholdSensorValue:
		if c.ThresholdSensorID == "" {
			return nil, fmt.Errorf("%w: sensor threshold has no sensor", ErrConfiguration)
		}
		return ev.provider.LatestSensorValue(ctx, c.ThresholdSensorID)

	case ThresholdDeviceAttribute:
		if c.ThresholdDeviceID == "" || c.ThresholdDeviceAttribute == "" {
			return nil, fmt.Errorf("%w: device threshold needs device and attribute", ErrConfiguration)
		}
		return ev.provider.DeviceAttribute(ctx, c.ThresholdDeviceID, c.ThresholdDeviceAttribute)

	default:
		return nil, fmt.Errorf("%w: unsupported threshold kind %q", ErrConfiguration, c.ThresholdKind)
	}
}

// comparator applies an operator to an actual value and a threshold.
type comparator func(actual, threshold any) bool

var comparators = map[Operator]comparator{
	OpEq:  func(a, b any) bool { return equal(a, b) },
	OpNeq: func(a, b any) bool { return !equal(a, b) },
	OpGt:  func(a, b any) bool { return order(a, b, func(c int) bool { return c > 0 }) },
	OpGte: func(a, b any) bool { return order(a, b, func(c int) bool { return c >= 0 }) },
	OpLt:  func(a, b any) bool { return order(a, b, func(c int) bool { return c < 0 }) },
	OpLte: func(a, b any) bool { return order(a, b, func(c int) bool { return c <= 0 }) },
	OpContains: func(a, b any) bool {
		return strings.Contains(stringify(a), stringify(b))
	},
	OpNotContains: func(a, b any) bool {
		return !strings.Contains(stringify(a), stringify(b))
	},
	OpStartsWith: func(a, b any) bool {
		return strings.HasPrefix(stringify(a), stringify(b))
	},
	OpEndsWith: func(a, b any) bool {
		return strings.HasSuffix(stringify(a), stringify(b))
	},
}

// equal compares numerically when both sides coerce to numbers, otherwise by
// string form. nil only equals nil.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

// order compares numerically when both sides coerce to numbers and
// lexically when neither does. Mixed or nil operands are unordered.
func order(a, b any, accept func(int) bool) bool {
	if a == nil || b == nil {
		return false
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	switch {
	case aok && bok:
		if math.IsNaN(af) || math.IsNaN(bf) {
			return false
		}
		switch {
		case af < bf:
			return accept(-1)
		case af > bf:
			return accept(1)
		default:
			return accept(0)
		}
	case !aok && !bok:
		return accept(strings.Compare(stringify(a), stringify(b)))
	default:
		return false
	}
}

// toFloat64 coerces numbers and numeric strings. Booleans count as 1 and 0,
// so a true status equals a threshold of "1".
func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
