package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/mqtt"
)

// MQTT maps store keys onto retained topics under a prefix.
//
// Put publishes retained, so the broker holds the current value of each
// key. Watches skip the retained replay the broker sends on subscribe and
// fire only for new puts, matching etcd watch semantics.
type MQTT struct {
	client     *mqtt.Client
	prefix     string
	qos        byte
	getTimeout time.Duration

	mu      sync.Mutex
	topics  map[string]*mqttTopic
	watches map[WatchID]*mqttTopic
	next    WatchID
	closed  bool
}

// mqttTopic is the single broker subscription shared by all watches on a key.
type mqttTopic struct {
	key   string
	topic string

	mu    sync.Mutex
	fns   map[WatchID]WatchFunc
	last  string
	known bool
}

// NewMQTT wraps a connected client.
func NewMQTT(client *mqtt.Client, prefix string, qos byte, getTimeout time.Duration) *MQTT {
	return &MQTT{
		client:     client,
		prefix:     prefix,
		qos:        qos,
		getTimeout: getTimeout,
		topics:     make(map[string]*mqttTopic),
		watches:    make(map[WatchID]*mqttTopic),
	}
}

// Put publishes value as the retained value of key.
func (m *MQTT) Put(_ context.Context, key, value string) error {
	if m.isClosed() {
		return ErrClosed
	}
	if err := m.client.Publish(mqtt.Topics{}.StoreKey(m.prefix, key), []byte(value), m.qos, true); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Get returns the retained value of key, waiting at most the configured
// get timeout for the broker's replay.
func (m *MQTT) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", false, ErrClosed
	}
	t, watched := m.topics[key]
	m.mu.Unlock()

	// A watched key already has the subscription; answer from it.
	if watched {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.last, t.known, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.getTimeout)
	defer cancel()
	payload, found, err := m.client.Fetch(fetchCtx, mqtt.Topics{}.StoreKey(m.prefix, key))
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	// An empty retained payload is how MQTT deletes a value.
	if !found || len(payload) == 0 {
		return "", false, nil
	}
	return string(payload), true, nil
}

// Watch subscribes to key and calls fn for every new put.
func (m *MQTT) Watch(ctx context.Context, key string, fn WatchFunc) (WatchID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	t, ok := m.topics[key]
	if !ok {
		t = &mqttTopic{
			key:   key,
			topic: mqtt.Topics{}.StoreKey(m.prefix, key),
			fns:   make(map[WatchID]WatchFunc),
		}
		if err := m.client.Subscribe(t.topic, m.qos, t.deliver); err != nil {
			return 0, fmt.Errorf("%w: watch %s: %w", ErrUnavailable, key, err)
		}
		m.topics[key] = t
	}

	m.next++
	id := m.next
	t.mu.Lock()
	t.fns[id] = fn
	t.mu.Unlock()
	m.watches[id] = t

	context.AfterFunc(ctx, func() { _ = m.CancelWatch(id) })
	return id, nil
}

func (t *mqttTopic) deliver(msg mqtt.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = string(msg.Payload)
	t.known = len(msg.Payload) > 0
	if msg.Retained || !t.known {
		return nil
	}
	for _, fn := range t.fns {
		fn(t.key, t.last)
	}
	return nil
}

// CancelWatch removes a watch, unsubscribing when it was the last on its key.
func (m *MQTT) CancelWatch(id WatchID) error {
	m.mu.Lock()
	t, ok := m.watches[id]
	delete(m.watches, id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownWatch, id)
	}

	t.mu.Lock()
	delete(t.fns, id)
	remaining := len(t.fns)
	t.mu.Unlock()

	if remaining > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.topics, t.key)
	m.mu.Unlock()

	if err := m.client.Unsubscribe(t.topic); err != nil {
		return fmt.Errorf("%w: cancel watch %s: %w", ErrUnavailable, t.key, err)
	}
	return nil
}

// Close drops every watch and disconnects the client.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, t := range m.topics {
		t.mu.Lock()
		clear(t.fns)
		t.mu.Unlock()
	}
	m.topics = make(map[string]*mqttTopic)
	m.watches = make(map[WatchID]*mqttTopic)
	m.mu.Unlock()

	return m.client.Close()
}

func (m *MQTT) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
