package mqtt

import "errors"

// Sentinel errors for broker operations. Operation errors wrap one of the
// *Failed values and, when the broker never answered, ErrTimeout as well:
//
//	errors.Is(err, ErrPublishFailed) && errors.Is(err, ErrTimeout)
var (
	// ErrNotConnected is returned for operations on a client that is offline.
	ErrNotConnected = errors.New("mqtt: client not connected")

	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels other than 0, 1 and 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout means the broker did not acknowledge within the deadline.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
