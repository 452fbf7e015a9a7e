// Package mqtt provides MQTT client connectivity for the hardware monitor daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, retained-flag aware
//   - Fetching the retained value of a topic
//   - Last Will and Testament (LWT) for offline detection
//
// The broker serves two roles: it is one of the store backends (every
// store key maps to a retained topic under a prefix, see Topics.StoreKey),
// and it carries each connection's online/offline status under
// hwmc/status/<client_id>.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.StoreKey("dsa110", "/cmd/ant/0"), 1,
//	    func(m mqtt.Message) error {
//	        if m.Retained {
//	            return nil
//	        }
//	        return handle(m.Payload)
//	    })
package mqtt
