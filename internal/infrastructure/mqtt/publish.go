package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize matches etcd's default request limit so a document
// accepted by one store backend is accepted by the other.
const maxPayloadSize = 3 << 19

// Publish sends payload to topic and waits for the broker to acknowledge
// it at the requested QoS.
//
// The store backend publishes every key retained, so a session that
// connects later, or a Fetch, sees the current document.
//
// Parameters:
//   - topic: concrete topic such as "dsa110/mon/ant/3"; wildcards are rejected
//   - retained: whether the broker keeps payload as the topic's value
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed wrapping the cause
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: no ack after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

func validatePublishTopic(topic string) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case strings.ContainsAny(topic, "+#\x00"):
		return fmt.Errorf("%w: %q is not a concrete topic", ErrInvalidTopic, topic)
	}
	return nil
}
