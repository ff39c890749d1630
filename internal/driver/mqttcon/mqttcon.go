// Package mqttcon provides a console backend bridged over MQTT.
//
// Output written to the console is published to a broker topic, and
// messages arriving on an input topic are queued for the next read.
// Remote tooling can therefore drive a guest console without touching
// the daemon's HTTP API.
//
// Reads never block: if no input has arrived, In reports zero bytes.
package mqttcon

import (
	"errors"
	"sync"

	"github.com/conmux/conmux/internal/console"
	"github.com/conmux/conmux/internal/infrastructure/mqtt"
)

// DefaultInputLimit bounds queued input bytes awaiting a reader.
const DefaultInputLimit = 16 * 1024

// ErrNoOutTopic is returned when writing to a console that has no
// output topic bound.
var ErrNoOutTopic = errors.New("mqttcon: no output topic configured")

// Broker is the subset of the MQTT client the console needs.
// *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Config describes one MQTT-backed console.
type Config struct {
	Name  string
	Flags console.Flag

	// OutTopic receives the console's output stream. Empty disables output.
	OutTopic string

	// InTopic feeds the console's input queue. Empty disables input.
	InTopic string

	QoS byte

	// InputLimit bounds the queued input size in bytes.
	// Zero selects DefaultInputLimit.
	InputLimit int
}

// Console bridges a registered console to MQTT topics.
type Console struct {
	broker   Broker
	outTopic string
	qos      byte

	mu    sync.Mutex
	input []byte
	limit int
}

// New creates an MQTT console backend. It does not subscribe; use
// Register to wire the input topic.
func New(broker Broker, outTopic string, qos byte, inputLimit int) (*Console, error) {
	if broker == nil {
		return nil, errors.New("mqttcon: nil broker")
	}
	if inputLimit <= 0 {
		inputLimit = DefaultInputLimit
	}
	return &Console{
		broker:   broker,
		outTopic: outTopic,
		qos:      qos,
		limit:    inputLimit,
	}, nil
}

// Out publishes p to the output topic. The whole slice forms one
// message; fragmentation is left to the broker transport.
func (c *Console) Out(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.outTopic == "" {
		return 0, ErrNoOutTopic
	}
	if err := c.broker.Publish(c.outTopic, p, c.qos, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// In copies queued input into p and consumes it. Returns 0 bytes when
// nothing has arrived.
func (c *Console) In(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(p, c.input)
	c.input = c.input[n:]
	if len(c.input) == 0 {
		c.input = nil
	}
	return n, nil
}

// Feed appends payload bytes to the input queue, evicting the oldest
// queued bytes once the limit is reached so the freshest input is kept.
// The number of bytes accepted from payload is returned.
func (c *Console) Feed(payload []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A payload larger than the whole queue keeps only its tail.
	if len(payload) > c.limit {
		payload = payload[len(payload)-c.limit:]
	}

	if over := len(c.input) + len(payload) - c.limit; over > 0 {
		c.input = c.input[over:]
	}
	c.input = append(c.input, payload...)
	return len(payload)
}

// Pending reports the number of queued input bytes.
func (c *Console) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.input)
}

// Register creates an MQTT console, subscribes its input topic and
// registers it with the registry. The default name is "mqtt".
func Register(registry *console.Registry, broker Broker, cfg Config) (*console.Device, *Console, error) {
	con, err := New(broker, cfg.OutTopic, cfg.QoS, cfg.InputLimit)
	if err != nil {
		return nil, nil, err
	}

	if cfg.InTopic != "" {
		err := broker.Subscribe(cfg.InTopic, cfg.QoS, func(_ string, payload []byte) error {
			con.Feed(payload)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	name := cfg.Name
	if name == "" {
		name = "mqtt"
	}

	dev := console.NewDevice(name, con, cfg.Flags)
	registry.Register(dev)
	return dev, con, nil
}
