package automation

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Default executor limits.
const (
	DefaultWebhookTimeout = 10 * time.Second
	DefaultResponseLimit  = 1000
)

// notificationSubjectPrefix starts the subject of every strategy notification.
const notificationSubjectPrefix = "NovaCloud strategy notification: "

// CommandStore persists actuator command logs.
type CommandStore interface {
	// CreateCommandLog inserts a new command log.
	CreateCommandLog(ctx context.Context, log *CommandLog) error

	// UpdateCommandLogStatus records the dispatch outcome of a command log.
	UpdateCommandLogStatus(ctx context.Context, id string, status CommandStatus, response string) error
}

// ActuatorCommand is what the engine hands to the actuator transport.
type ActuatorCommand struct {
	CommandID   string
	Actuator    ActuatorInfo
	Payload     map[string]any
	Source      string
	ExecutionID string
}

// DispatchResult is the transport's answer to a dispatched command.
type DispatchResult struct {
	Accepted bool
	Detail   string
}

// ActuatorDispatcher delivers commands to physical actuators.
type ActuatorDispatcher interface {
	// Dispatch sends a command. A returned error means the command never
	// left; Accepted=false means it was refused.
	Dispatch(ctx context.Context, cmd ActuatorCommand) (DispatchResult, error)
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	RecipientKind RecipientKind
	Recipient     string
	Subject       string
	Message       string
	StrategyID    string
	ExecutionID   string
}

// Notifier hands notifications to a delivery channel. A nil error means the
// message was accepted for delivery.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ExecutorConfig holds webhook limits. Zero values use the defaults.
type ExecutorConfig struct {
	WebhookTimeout time.Duration
	ResponseLimit  int
}

// Executor performs a single action and reports a structured result.
// It is stateless apart from its collaborators and safe for concurrent use.
type Executor struct {
	provider      DataProvider
	commands      CommandStore
	dispatcher    ActuatorDispatcher
	notifier      Notifier
	client        *http.Client
	responseLimit int
	logger        Logger
}

// NewExecutor creates an action executor.
//
// Parameters:
//   - provider: Sensor and actuator lookups for rendering contexts
//   - commands: Command log persistence for control_actuator actions
//   - dispatcher: Actuator transport
//   - notifier: Notification delivery
//   - cfg: Webhook timeout and response truncation
//   - logger: Logger instance (may be nil)
func NewExecutor(provider DataProvider, commands CommandStore, dispatcher ActuatorDispatcher, notifier Notifier, cfg ExecutorConfig, logger Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = DefaultWebhookTimeout
	}
	if cfg.ResponseLimit <= 0 {
		cfg.ResponseLimit = DefaultResponseLimit
	}
	return &Executor{
		provider:      provider,
		commands:      commands,
		dispatcher:    dispatcher,
		notifier:      notifier,
		client:        &http.Client{Timeout: cfg.WebhookTimeout},
		responseLimit: cfg.ResponseLimit,
		logger:        logger,
	}
}

// Execute runs one action and returns its result. Errors are captured in
// the result, never returned.
func (ex *Executor) Execute(ctx context.Context, s *Strategy, a Action, executionID string, trigger TriggerContext) ActionResult {
	res := ActionResult{
		ActionID:  a.ID,
		Kind:      a.Kind,
		StartedAt: time.Now().UTC(),
	}

	var (
		details map[string]any
		err     error
	)
	switch a.Kind {
	case ActionControlActuator:
		details, err = ex.controlActuator(ctx, s, a, executionID, trigger)
	case ActionSendNotification:
		details, err = ex.sendNotification(ctx, s, a, executionID, trigger)
	case ActionCallWebhook:
		details, err = ex.callWebhook(ctx, s, a, trigger)
	default:
		err = fmt.Errorf("%w: unsupported action kind %q", ErrConfiguration, a.Kind)
	}

	res.EndedAt = time.Now().UTC()
	res.Details = details
	if err != nil {
		res.Status = ActionFailed
		res.Error = err.Error()
		ex.logger.Warn("action failed",
			"strategy_id", s.ID,
			"action_id", a.ID,
			"kind", a.Kind,
			"error", err,
		)
		return res
	}
	res.Status = ActionSucceeded
	return res
}

func (ex *Executor) controlActuator(ctx context.Context, s *Strategy, a Action, executionID string, trigger TriggerContext) (map[string]any, error) {
	if a.ActuatorID == "" {
		return nil, fmt.Errorf("%w: control_actuator action has no actuator", ErrConfiguration)
	}
	if ex.commands == nil || ex.dispatcher == nil {
		return nil, fmt.Errorf("%w: actuator dispatch is not configured", ErrTransport)
	}

	actuator, err := ex.provider.ActuatorInfo(ctx, a.ActuatorID)
	if err != nil {
		return nil, fmt.Errorf("actuator %s: %w", a.ActuatorID, err)
	}

	rc := ex.renderContext(ctx, s, trigger, &actuator)
	payload, err := renderJSONObject(a.CommandPayloadTemplate, rc)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: command payload template is empty", ErrRender)
	}

	now := time.Now().UTC()
	cmdLog := &CommandLog{
		ID:          GenerateID(),
		ActuatorID:  actuator.ID,
		Payload:     payload,
		Status:      CommandPending,
		Source:      "strategy:" + s.ID,
		ExecutionID: executionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ex.commands.CreateCommandLog(ctx, cmdLog); err != nil {
		return nil, fmt.Errorf("creating command log: %w", err)
	}

	details := map[string]any{
		"actuator_id":    actuator.ID,
		"actuator_name":  actuator.Name,
		"command":        payload,
		"command_log_id": cmdLog.ID,
	}

	result, dispatchErr := ex.dispatcher.Dispatch(ctx, ActuatorCommand{
		CommandID:   cmdLog.ID,
		Actuator:    actuator,
		Payload:     payload,
		Source:      cmdLog.Source,
		ExecutionID: executionID,
	})

	status, response := CommandSent, result.Detail
	switch {
	case dispatchErr != nil:
		status, response = CommandFailed, dispatchErr.Error()
	case !result.Accepted:
		status = CommandFailed
	}
	details["response"] = response

	if err := ex.commands.UpdateCommandLogStatus(ctx, cmdLog.ID, status, response); err != nil {
		ex.logger.Error("failed to update command log",
			"command_log_id", cmdLog.ID,
			"status", status,
			"error", err,
		)
	}

	if dispatchErr != nil {
		return details, fmt.Errorf("%w: dispatching to actuator %s: %v", ErrTransport, actuator.ID, dispatchErr)
	}
	if !result.Accepted {
		return details, fmt.Errorf("%w: actuator %s refused command: %s", ErrTransport, actuator.ID, result.Detail)
	}
	return details, nil
}

func (ex *Executor) sendNotification(ctx context.Context, s *Strategy, a Action, executionID string, trigger TriggerContext) (map[string]any, error) {
	switch a.RecipientKind {
	case RecipientOwnerEmail, RecipientSpecificEmail, RecipientPlatformMessage:
	case "":
		return nil, fmt.Errorf("%w: notification has no recipient kind", ErrConfiguration)
	default:
		return nil, fmt.Errorf("%w: unsupported recipient kind %q", ErrConfiguration, a.RecipientKind)
	}
	recipient := a.RecipientValue
	if a.RecipientKind == RecipientOwnerEmail && s.OwnerEmail != "" {
		recipient = s.OwnerEmail
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: notification has no recipient", ErrConfiguration)
	}
	if ex.notifier == nil {
		return nil, fmt.Errorf("%w: notifications are not configured", ErrTransport)
	}

	message := Render(a.MessageTemplate, ex.renderContext(ctx, s, trigger, nil))
	details := map[string]any{
		"recipient_kind": string(a.RecipientKind),
		"recipient":      recipient,
		"message":        message,
	}

	err := ex.notifier.Send(ctx, Notification{
		RecipientKind: a.RecipientKind,
		Recipient:     recipient,
		Subject:       notificationSubjectPrefix + s.Name,
		Message:       message,
		StrategyID:    s.ID,
		ExecutionID:   executionID,
	})
	if err != nil {
		return details, fmt.Errorf("%w: sending notification: %v", ErrTransport, err)
	}
	return details, nil
}

// renderContext builds the flattened template context for an action: the
// trigger facts plus strategy, sensor and actuator descriptions.
func (ex *Executor) renderContext(ctx context.Context, s *Strategy, trigger TriggerContext, actuator *ActuatorInfo) map[string]any {
	rc := make(map[string]any, len(trigger)+3)
	for k, v := range trigger {
		rc[k] = v
	}

	rc["strategy"] = map[string]any{
		"id":   s.ID,
		"name": s.Name,
	}

	if sensorID := trigger.String("sensor_id"); sensorID != "" && ex.provider != nil {
		if info, err := ex.provider.SensorInfo(ctx, sensorID); err == nil {
			rc["sensor"] = map[string]any{
				"id":    info.ID,
				"name":  info.Name,
				"type":  info.SensorType,
				"unit":  info.Unit,
				"value": trigger["value"],
			}
		}
	}

	if actuator != nil {
		rc["actuator"] = map[string]any{
			"id":          actuator.ID,
			"name":        actuator.Name,
			"type":        actuator.ActuatorType,
			"command_key": actuator.CommandKey,
		}
	}

	return Flatten(rc)
}
