package telemetry

import (
	"sync"
	"time"
)

// DefaultSampleInterval is how often the collector samples meters.
const DefaultSampleInterval = 10 * time.Second

// Writer receives throughput samples. *influxdb.Client satisfies it.
type Writer interface {
	WriteConsoleThroughput(console string, bytesOut, bytesIn, writes, reads, errors uint64)
}

// GaugeWriter receives point-in-time gauge samples. Writers that also
// implement it get the gauges registered via TrackGauge on every sample.
// *influxdb.Client satisfies it.
type GaugeWriter interface {
	WriteConsoleMetric(console string, measurement string, value float64)
}

// gauge is one registered point-in-time sample source.
type gauge struct {
	console     string
	measurement string
	read        func() float64
}

// Collector periodically samples registered meters and writes their
// counters to a time-series backend.
type Collector struct {
	writer   Writer
	interval time.Duration

	mu     sync.Mutex
	meters map[string]*Meter
	gauges []gauge

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector starts a collector sampling on the given interval.
// An interval <= 0 selects DefaultSampleInterval.
func NewCollector(writer Writer, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	c := &Collector{
		writer:   writer,
		interval: interval,
		meters:   make(map[string]*Meter),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.run()

	return c
}

// Track adds a meter under the given console name. Re-tracking a name
// replaces the previous meter.
func (c *Collector) Track(consoleName string, meter *Meter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meters[consoleName] = meter
}

// TrackGauge registers a gauge sampled alongside the meters. The read
// function must be safe to call from the sampling goroutine. Gauges are
// only written when the collector's writer implements GaugeWriter.
func (c *Collector) TrackGauge(consoleName, measurement string, read func() float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges = append(c.gauges, gauge{console: consoleName, measurement: measurement, read: read})
}

// run samples all meters until Close.
func (c *Collector) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sample()
		case <-c.stop:
			return
		}
	}
}

// sample writes one point per tracked meter.
func (c *Collector) sample() {
	c.mu.Lock()
	snapshot := make(map[string]Counters, len(c.meters))
	for name, meter := range c.meters {
		snapshot[name] = meter.Snapshot()
	}
	gauges := make([]gauge, len(c.gauges))
	copy(gauges, c.gauges)
	c.mu.Unlock()

	for name, counters := range snapshot {
		c.writer.WriteConsoleThroughput(name,
			counters.BytesOut,
			counters.BytesIn,
			counters.Writes,
			counters.Reads,
			counters.Errors,
		)
	}

	gw, ok := c.writer.(GaugeWriter)
	if !ok {
		return
	}
	for _, g := range gauges {
		gw.WriteConsoleMetric(g.console, g.measurement, g.read())
	}
}

// Close stops the sampling loop and writes one final sample.
func (c *Collector) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done

	c.sample()
}
