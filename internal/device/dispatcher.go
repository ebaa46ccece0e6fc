package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/mqtt"
)

// Publisher is the slice of the MQTT client the dispatcher needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// CommandMessage is the JSON body published to an actuator's command topic.
type CommandMessage struct {
	CommandID   string         `json:"command_id"`
	ActuatorID  string         `json:"actuator_id"`
	Payload     map[string]any `json:"payload"`
	Source      string         `json:"source"`
	ExecutionID string         `json:"execution_id,omitempty"`
	IssuedAt    time.Time      `json:"issued_at"`
}

// MQTTDispatcher implements automation.ActuatorDispatcher by publishing to
// novacloud/devices/{device_id}/command/{command_key}.
//
// A command the broker accepted is reported as Accepted. Device-side
// acknowledgment is not awaited.
type MQTTDispatcher struct {
	publisher Publisher
	qos       byte
	now       func() time.Time
}

// NewMQTTDispatcher creates a dispatcher publishing at the given QoS.
func NewMQTTDispatcher(publisher Publisher, qos byte) *MQTTDispatcher {
	return &MQTTDispatcher{publisher: publisher, qos: qos, now: time.Now}
}

// Dispatch publishes cmd. A publish failure is returned as an error so the
// command log is marked failed.
func (d *MQTTDispatcher) Dispatch(ctx context.Context, cmd automation.ActuatorCommand) (automation.DispatchResult, error) {
	if err := ctx.Err(); err != nil {
		return automation.DispatchResult{}, err
	}
	if cmd.Actuator.DeviceID == "" || cmd.Actuator.CommandKey == "" {
		return automation.DispatchResult{}, fmt.Errorf("actuator %s has no command topic", cmd.Actuator.ID)
	}

	payload := cmd.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(CommandMessage{
		CommandID:   cmd.CommandID,
		ActuatorID:  cmd.Actuator.ID,
		Payload:     payload,
		Source:      cmd.Source,
		ExecutionID: cmd.ExecutionID,
		IssuedAt:    d.now().UTC(),
	})
	if err != nil {
		return automation.DispatchResult{}, fmt.Errorf("encoding command: %w", err)
	}

	topic := mqtt.Topics{}.DeviceCommand(cmd.Actuator.DeviceID, cmd.Actuator.CommandKey)
	if err := d.publisher.Publish(topic, body, d.qos, false); err != nil {
		return automation.DispatchResult{}, fmt.Errorf("publishing to %s: %w", topic, err)
	}

	return automation.DispatchResult{Accepted: true, Detail: "published to " + topic}, nil
}
