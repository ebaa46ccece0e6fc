package automation

import "time"

// DeletedStrategyName is shown for execution records whose strategy no
// longer exists.
const DeletedStrategyName = "deleted strategy"

// TriggerKind identifies which trigger source evaluates a strategy.
type TriggerKind string

// Trigger kinds.
const (
	TriggerTelemetry    TriggerKind = "telemetry"
	TriggerSchedule     TriggerKind = "schedule"
	TriggerDeviceStatus TriggerKind = "device_status"
)

// Strategy is a user-defined automation rule: a trigger kind, a set of
// condition groups that must all hold, and ordered actions.
type Strategy struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	OwnerID     string      `json:"owner_id,omitempty"`
	OwnerEmail  string      `json:"owner_email,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Enabled     bool        `json:"enabled"`
	TriggerKind TriggerKind `json:"trigger_kind"`

	// Groups and Actions are loaded sorted by Order.
	Groups  []ConditionGroup `json:"groups"`
	Actions []Action         `json:"actions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogicalOperator combines the conditions inside one group.
type LogicalOperator string

// Logical operators.
const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ConditionGroup is a set of conditions joined by one operator. Groups of a
// strategy are AND-ed together regardless of their own operator.
type ConditionGroup struct {
	ID         string          `json:"id"`
	StrategyID string          `json:"strategy_id"`
	Operator   LogicalOperator `json:"logical_operator"`
	Order      int             `json:"order"`
	Conditions []Condition     `json:"conditions"`
}

// DataSource says where a condition's actual value comes from.
type DataSource string

// Data sources.
const (
	SourceSensorValue     DataSource = "sensor_value"
	SourceDeviceAttribute DataSource = "device_attribute"
	SourceTimeOfDay       DataSource = "time_of_day"
	SourceSpecificTime    DataSource = "specific_time"
)

// Operator compares an actual value with a threshold.
type Operator string

// Comparison operators.
const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
)

// ThresholdKind says where a condition's threshold comes from.
type ThresholdKind string

// Threshold kinds.
const (
	ThresholdStatic          ThresholdKind = "static"
	ThresholdSensorValue     ThresholdKind = "sensor_value"
	ThresholdDeviceAttribute ThresholdKind = "device_attribute"
)

// Condition is one comparison inside a group. Which reference fields must be
// set depends on Source and ThresholdKind.
type Condition struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	Order   int    `json:"order"`

	Source   DataSource `json:"data_source"`
	Operator Operator   `json:"operator"`

	SensorID        string `json:"sensor_id,omitempty"`
	DeviceID        string `json:"device_id,omitempty"`
	DeviceAttribute string `json:"device_attribute,omitempty"`

	ThresholdKind            ThresholdKind `json:"threshold_kind"`
	ThresholdStatic          string        `json:"threshold_static,omitempty"`
	ThresholdSensorID        string        `json:"threshold_sensor_id,omitempty"`
	ThresholdDeviceID        string        `json:"threshold_device_id,omitempty"`
	ThresholdDeviceAttribute string        `json:"threshold_device_attribute,omitempty"`
}

// ActionKind selects the side effect an action performs.
type ActionKind string

// Action kinds.
const (
	ActionControlActuator  ActionKind = "control_actuator"
	ActionSendNotification ActionKind = "send_notification"
	ActionCallWebhook      ActionKind = "call_webhook"
)

// RecipientKind selects the notification channel.
type RecipientKind string

// Recipient kinds.
const (
	RecipientOwnerEmail      RecipientKind = "owner_email"
	RecipientSpecificEmail   RecipientKind = "specific_email"
	RecipientPlatformMessage RecipientKind = "platform_message"
)

// Action is one step of a strategy. Template fields use {{key}} placeholders.
type Action struct {
	ID         string     `json:"id"`
	StrategyID string     `json:"strategy_id"`
	Order      int        `json:"order"`
	Kind       ActionKind `json:"kind"`

	// control_actuator
	ActuatorID             string `json:"actuator_id,omitempty"`
	CommandPayloadTemplate string `json:"command_payload_template,omitempty"`

	// send_notification
	RecipientKind   RecipientKind `json:"recipient_kind,omitempty"`
	RecipientValue  string        `json:"recipient_value,omitempty"`
	MessageTemplate string        `json:"message_template,omitempty"`

	// call_webhook
	WebhookURL             string `json:"webhook_url,omitempty"`
	WebhookMethod          string `json:"webhook_method,omitempty"`
	WebhookHeadersTemplate string `json:"webhook_headers_template,omitempty"`
	WebhookPayloadTemplate string `json:"webhook_payload_template,omitempty"`
}

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

// Execution statuses. success, partial_success and failed are terminal.
const (
	StatusPending        ExecutionStatus = "pending"
	StatusProcessing     ExecutionStatus = "processing"
	StatusSuccess        ExecutionStatus = "success"
	StatusPartialSuccess ExecutionStatus = "partial_success"
	StatusFailed         ExecutionStatus = "failed"
)

// IsTerminal reports whether the record can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusPartialSuccess || s == StatusFailed
}

// ActionStatus is the outcome of one action.
type ActionStatus string

// Action outcomes.
const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
)

// TriggerContext holds the facts about the event that caused evaluation,
// e.g. sensor_id and value for telemetry.
type TriggerContext map[string]any

// String returns a context value in string form, or "" when absent.
func (c TriggerContext) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// ExecutionRecord is the result of one firing of a strategy whose
// conditions held.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	StrategyID   string          `json:"strategy_id"`
	StrategyName string          `json:"strategy_name"`
	Status       ExecutionStatus `json:"status"`
	Trigger      TriggerContext  `json:"trigger_context"`
	Results      []ActionResult  `json:"action_results"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ActionResult records the outcome of one action within a firing.
type ActionResult struct {
	ActionID  string         `json:"action_id"`
	Kind      ActionKind     `json:"kind"`
	Status    ActionStatus   `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// SensorInfo describes a sensor and its owning device.
type SensorInfo struct {
	ID         string
	Name       string
	SensorType string
	Unit       string
	DeviceID   string
	DeviceName string
	ProjectID  string
}

// ActuatorInfo describes an actuator and its owning device.
type ActuatorInfo struct {
	ID           string
	Name         string
	ActuatorType string
	CommandKey   string
	DeviceID     string
	DeviceName   string
}

// CommandStatus is the dispatch state of an actuator command.
type CommandStatus string

// Command statuses.
const (
	CommandPending CommandStatus = "pending"
	CommandSent    CommandStatus = "sent"
	CommandFailed  CommandStatus = "failed"
)

// CommandLog is the persisted record of one actuator command, written
// before dispatch and updated from the dispatch response.
type CommandLog struct {
	ID          string         `json:"id"`
	ActuatorID  string         `json:"actuator_id"`
	Payload     map[string]any `json:"payload"`
	Status      CommandStatus  `json:"status"`
	Response    string         `json:"response,omitempty"`
	Source      string         `json:"source"`
	ExecutionID string         `json:"execution_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
