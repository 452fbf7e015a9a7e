// Package store is the distributed key/value store the daemon publishes
// monitor data to and receives commands and calibration tables from.
//
// Keys follow the array-wide naming:
//
//	/mon/ant/<n>   antenna monitor points
//	/mon/beb/<n>   backend monitor points for antenna n
//	/cmd/ant/<n>   commands for antenna n
//	/cmd/ant/0     commands for every antenna
//	/cal/ant/<n>   calibration table for antenna n
//
// Three backends implement Store: etcd (production), MQTT retained topics,
// and an in-process memory store used in simulate mode and tests. Each
// device session dials its own connection through a Dialer.
package store
