// Package nullcon implements the null console backend: output is
// accepted and discarded, input is never available. Useful as a
// measurement baseline and for configurations that must swallow the
// broadcast stream.
package nullcon

import "github.com/conmux/conmux/internal/console"

// Sink is the null console backend.
type Sink struct{}

// New returns the null backend.
func New() *Sink {
	return &Sink{}
}

// Out discards p and reports it fully written.
func (*Sink) Out(p []byte) (int, error) {
	return len(p), nil
}

// In never yields data.
func (*Sink) In([]byte) (int, error) {
	return 0, nil
}

// Register registers a null console device under the given name.
func Register(registry *console.Registry, name string, flags console.Flag) *console.Device {
	if name == "" {
		name = "null"
	}
	dev := console.NewDevice(name, New(), flags)
	registry.Register(dev)
	return dev
}
