package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. The write is non-blocking; points are
// batched and sent asynchronously. Nothing is written after Close.
//
// Parameters:
//   - measurement: The measurement name (ant_mon, beb_mon)
//   - tags: Indexed key-value pairs (low cardinality, such as ant_num)
//   - fields: The recorded values
//   - ts: Time of the sample
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
