package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/novacloud-core/internal/automation"
	"github.com/nerrad567/novacloud-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the router.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mailer sends one plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MessageWriter persists platform messages.
type MessageWriter interface {
	Create(ctx context.Context, m *Message) error
}

// Publisher pushes a JSON payload to subscribed platform clients.
type Publisher interface {
	PublishJSON(topic string, v any) error
	IsConnected() bool
}

// platformEvent is the MQTT payload for a new platform message.
type platformEvent struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	StrategyID  string    `json:"strategy_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Router implements automation.Notifier by recipient kind:
//
//	owner_email, specific_email → Mailer
//	platform_message            → MessageWriter, then Publisher
//
// A platform message is accepted once stored. The live push is best effort
// and a publish failure is only logged.
type Router struct {
	mailer      Mailer
	messages    MessageWriter
	publisher   Publisher
	topicPrefix string
	logger      Logger
}

// NewRouter creates a notification router. mailer and messages may be nil,
// in which case the matching kinds fail with ErrUnsupportedKind.
func NewRouter(mailer Mailer, messages MessageWriter, logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{mailer: mailer, messages: messages, logger: logger}
}

// SetPublisher enables live pushes of platform messages under topicPrefix.
func (r *Router) SetPublisher(p Publisher, topicPrefix string) {
	r.publisher = p
	r.topicPrefix = topicPrefix
}

// Send delivers n through the channel its recipient kind selects.
func (r *Router) Send(ctx context.Context, n automation.Notification) error {
	recipient := strings.TrimSpace(n.Recipient)
	if recipient == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidRecipient)
	}

	switch n.RecipientKind {
	case automation.RecipientOwnerEmail, automation.RecipientSpecificEmail:
		if r.mailer == nil {
			return fmt.Errorf("%w: %s (no mailer)", ErrUnsupportedKind, n.RecipientKind)
		}
		return r.mailer.Send(ctx, recipient, n.Subject, n.Message)

	case automation.RecipientPlatformMessage:
		return r.sendPlatform(ctx, recipient, n)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, n.RecipientKind)
	}
}

func (r *Router) sendPlatform(ctx context.Context, recipient string, n automation.Notification) error {
	if r.messages == nil {
		return fmt.Errorf("%w: %s (no message store)", ErrUnsupportedKind, n.RecipientKind)
	}
	if strings.ContainsAny(recipient, "/+#") {
		return fmt.Errorf("%w: %q contains topic characters", ErrInvalidRecipient, recipient)
	}

	msg := &Message{Recipient: recipient, Subject: n.Subject, Body: n.Message}
	if err := r.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("%w: storing platform message: %v", ErrDeliveryFailed, err)
	}

	if r.publisher == nil || !r.publisher.IsConnected() {
		return nil
	}
	topic := mqtt.Topics{}.PlatformMessage(r.topicPrefix, recipient)
	if err := r.publisher.PublishJSON(topic, platformEvent{
		ID:          msg.ID,
		Subject:     msg.Subject,
		Body:        msg.Body,
		StrategyID:  n.StrategyID,
		ExecutionID: n.ExecutionID,
		CreatedAt:   msg.CreatedAt,
	}); err != nil {
		r.logger.Warn("platform message stored but not pushed",
			"message_id", msg.ID,
			"topic", topic,
			"error", err,
		)
	}
	return nil
}
