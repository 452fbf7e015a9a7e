// Package influxdb provides InfluxDB connectivity for the hwmc monitor archive.
//
// It wraps the official influxdb-client-go v2 library with connection
// verification, non-blocking batched point writes and health checks.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("ant_mon",
//	    map[string]string{"ant_num": "24"},
//	    map[string]any{"ant_el": 91.2, "brake_on": false},
//	    ts)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are batched according to batch_size and flush_interval and never
// block the caller. Batch failures are delivered to the SetOnError callback.
package influxdb
