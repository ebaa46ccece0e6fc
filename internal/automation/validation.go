package automation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxGroups         = 20
	maxConditions     = 50
	maxActions        = 50
)

// ValidateStrategy checks the structural shape of a strategy before it is
// stored: names, enum values and collection sizes.
//
// It does not check that conditions and actions carry the references their
// kind needs. Those are configuration errors reported at evaluation time so
// a half-configured strategy can still be stored and edited.
func ValidateStrategy(s *Strategy) error {
	if s == nil {
		return ErrInvalidStrategy
	}

	trimmed := strings.TrimSpace(s.Name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidStrategy)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidStrategy, maxNameLength)
	}
	if len(s.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidStrategy, maxDescriptionLen)
	}
	if s.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidStrategy)
	}

	switch s.TriggerKind {
	case TriggerTelemetry, TriggerSchedule, TriggerDeviceStatus:
	default:
		return fmt.Errorf("%w: invalid trigger kind %q", ErrInvalidStrategy, s.TriggerKind)
	}

	if len(s.Groups) > maxGroups {
		return fmt.Errorf("%w: exceeds maximum of %d condition groups", ErrInvalidStrategy, maxGroups)
	}
	for i, g := range s.Groups {
		if err := validateGroup(g); err != nil {
			return fmt.Errorf("group[%d]: %w", i, err)
		}
	}

	if len(s.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidStrategy, maxActions)
	}
	for i, a := range s.Actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}

	return nil
}

func validateGroup(g ConditionGroup) error {
	if g.Operator != LogicalAnd && g.Operator != LogicalOr {
		return fmt.Errorf("%w: logical operator must be AND or OR, got %q", ErrInvalidStrategy, g.Operator)
	}
	if len(g.Conditions) > maxConditions {
		return fmt.Errorf("%w: exceeds maximum of %d conditions", ErrInvalidStrategy, maxConditions)
	}
	for i, c := range g.Conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Source {
	case SourceSensorValue, SourceDeviceAttribute, SourceTimeOfDay, SourceSpecificTime:
	default:
		return fmt.Errorf("%w: invalid data source %q", ErrInvalidStrategy, c.Source)
	}
	if _, ok := comparators[c.Operator]; !ok {
		return fmt.Errorf("%w: invalid operator %q", ErrInvalidStrategy, c.Operator)
	}
	switch c.ThresholdKind {
	case ThresholdStatic, ThresholdSensorValue, ThresholdDeviceAttribute:
	default:
		return fmt.Errorf("%w: invalid threshold kind %q", ErrInvalidStrategy, c.ThresholdKind)
	}
	return nil
}

func validateAction(a Action) error {
	switch a.Kind {
	case ActionControlActuator, ActionCallWebhook:
	case ActionSendNotification:
		switch a.RecipientKind {
		case "", RecipientOwnerEmail, RecipientSpecificEmail, RecipientPlatformMessage:
		default:
			return fmt.Errorf("%w: invalid recipient kind %q", ErrInvalidStrategy, a.RecipientKind)
		}
	default:
		return fmt.Errorf("%w: invalid action kind %q", ErrInvalidStrategy, a.Kind)
	}
	if a.WebhookMethod != "" {
		if _, ok := webhookMethods[strings.ToUpper(a.WebhookMethod)]; !ok {
			return fmt.Errorf("%w: unsupported webhook method %q", ErrInvalidStrategy, a.WebhookMethod)
		}
	}
	return nil
}

// webhookMethods are the HTTP methods a call_webhook action may use.
var webhookMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
}

// GenerateID creates a new UUID for a strategy, record or command log.
func GenerateID() string {
	return uuid.New().String()
}
