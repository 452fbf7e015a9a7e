package mqtt

import "errors"

// Sentinel errors, wrapped with context where the cause is known.
var (
	// ErrNotConnected means the broker link is down. Calls fail fast with
	// it while paho reconnects in the background.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	ErrConnectionFailed  = errors.New("mqtt: broker connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic covers an empty topic and, for publish, a topic
	// holding a wildcard or NUL character.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
