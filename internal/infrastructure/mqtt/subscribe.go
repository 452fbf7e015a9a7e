package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards (+ and #). Handlers run in arrival
// order and see whether the broker replayed a retained value. Subscriptions are restored
// automatically after a reconnect.
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageFunc) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(publishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// Any messages in flight may still be delivered.
//
// Parameters:
//   - topic: The exact topic pattern that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// Fetch returns the retained value of a topic.
//
// It subscribes, waits for the broker's retained replay until ctx is done,
// then unsubscribes. A topic with no retained value reports found=false
// once ctx expires. Fetch must not be used on a topic that has an active
// subscription on this client, since the broker keeps one handler per topic.
//
// Returns:
//   - payload: the retained payload
//   - found: whether a retained value arrived
//   - error: subscribe failures
func (c *Client) Fetch(ctx context.Context, topic string) ([]byte, bool, error) {
	if topic == "" {
		return nil, false, ErrInvalidTopic
	}
	if !c.IsConnected() {
		return nil, false, ErrNotConnected
	}

	got := make(chan []byte, 1)
	token := c.client.Subscribe(topic, byte(c.cfg.QoS), func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if !msg.Retained() {
			return
		}
		select {
		case got <- msg.Payload():
		default:
		}
	})
	if !token.WaitTimeout(publishTimeout) {
		return nil, false, fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	defer func() {
		c.client.Unsubscribe(topic).WaitTimeout(publishTimeout)
	}()

	select {
	case payload := <-got:
		return payload, true, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether a subscription exists for exactly topic.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
