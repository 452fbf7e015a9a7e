package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefixStatus is the base for connection status topics.
const TopicPrefixStatus = "hwmc/status"

// Topics provides builders for the daemon's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.StoreKey("dsa110", "/mon/ant/3")
//	// Returns: "dsa110/mon/ant/3"
type Topics struct{}

// Status returns the retained online/offline topic of one client.
//
// Example: hwmc/status/hwmc-ant-3
func (Topics) Status(clientID string) string {
	if clientID == "" {
		return TopicPrefixStatus
	}
	return fmt.Sprintf("%s/%s", TopicPrefixStatus, clientID)
}

// StoreKey maps a store key such as "/cmd/ant/0" onto a topic under prefix.
//
// Example: dsa110/cmd/ant/0
func (Topics) StoreKey(prefix, key string) string {
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return prefix + key
}
