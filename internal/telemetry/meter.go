// Package telemetry measures console throughput and ships it to InfluxDB.
//
// A Meter wraps a console backend and counts bytes and operations as
// they pass through. The Collector samples registered meters on an
// interval and writes the counters out as time-series points.
package telemetry

import (
	"sync/atomic"

	"github.com/conmux/conmux/internal/console"
)

// Counters is a point-in-time snapshot of a meter.
type Counters struct {
	BytesOut uint64
	BytesIn  uint64
	Writes   uint64
	Reads    uint64
	Errors   uint64
}

// Meter wraps a console backend and counts traffic through it.
//
// All counters are cumulative since creation and safe for concurrent
// use; the wrapped backend sees exactly the calls the meter received.
type Meter struct {
	ops console.Ops

	bytesOut atomic.Uint64
	bytesIn  atomic.Uint64
	writes   atomic.Uint64
	reads    atomic.Uint64
	errors   atomic.Uint64
}

// NewMeter wraps ops with throughput counting.
// Panics if ops is nil, matching console.NewDevice's contract.
func NewMeter(ops console.Ops) *Meter {
	if ops == nil {
		panic("telemetry: nil ops")
	}
	return &Meter{ops: ops}
}

// Out forwards to the wrapped backend and counts the written bytes.
func (m *Meter) Out(p []byte) (int, error) {
	n, err := m.ops.Out(p)
	m.writes.Add(1)
	m.bytesOut.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
	if err != nil {
		m.errors.Add(1)
	}
	return n, err
}

// In forwards to the wrapped backend and counts the read bytes.
func (m *Meter) In(p []byte) (int, error) {
	n, err := m.ops.In(p)
	m.reads.Add(1)
	m.bytesIn.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
	if err != nil {
		m.errors.Add(1)
	}
	return n, err
}

// Snapshot returns the current counter values.
func (m *Meter) Snapshot() Counters {
	return Counters{
		BytesOut: m.bytesOut.Load(),
		BytesIn:  m.bytesIn.Load(),
		Writes:   m.writes.Load(),
		Reads:    m.reads.Load(),
		Errors:   m.errors.Load(),
	}
}
