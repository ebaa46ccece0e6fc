package notify

import "errors"

// Domain errors for the notify package.
var (
	// ErrUnsupportedKind is returned for a recipient kind no channel handles.
	ErrUnsupportedKind = errors.New("notify: unsupported recipient kind")

	// ErrInvalidRecipient is returned when a recipient is empty or malformed.
	ErrInvalidRecipient = errors.New("notify: invalid recipient")

	// ErrEmailDisabled is returned when an email is sent without an SMTP host.
	ErrEmailDisabled = errors.New("notify: email delivery is not configured")

	// ErrDeliveryFailed is returned when a channel refused the message.
	ErrDeliveryFailed = errors.New("notify: delivery failed")

	// ErrMessageNotFound is returned when a platform message ID does not exist.
	ErrMessageNotFound = errors.New("notify: message not found")
)
