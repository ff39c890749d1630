package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteConsoleThroughput writes one throughput sample for a console.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Counters are cumulative since daemon start, rate math happens in queries.
//
// Example:
//
//	client.WriteConsoleThroughput("guest0", 4096, 128, 12, 3, 0)
func (c *Client) WriteConsoleThroughput(console string, bytesOut, bytesIn, writes, reads, errors uint64) {
	c.WritePoint(
		"console_throughput",
		map[string]string{
			"console": console,
		},
		map[string]interface{}{
			"bytes_out": int64(bytesOut), //nolint:gosec // counters stay far below int64 range
			"bytes_in":  int64(bytesIn),
			"writes":    int64(writes),
			"reads":     int64(reads),
			"errors":    int64(errors),
		},
	)
}

// WriteConsoleMetric writes a single named gauge for a console, such as
// scrollback occupancy or pending input depth.
func (c *Client) WriteConsoleMetric(console string, measurement string, value float64) {
	c.WritePoint(
		"console_metrics",
		map[string]string{
			"console":     console,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("daemon_stats",
//	    map[string]string{"node": "node-001"},
//	    map[string]interface{}{"consoles": 3, "goroutines": 24})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
