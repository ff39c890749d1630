// Package vcons implements an in-memory virtual console backend.
//
// The virtual console captures everything written to it in a bounded
// scrollback buffer and yields whatever input has been fed into it, so
// it serves as the zero-configuration default device, as the backing
// device for WebSocket attachment, and as a deterministic endpoint in
// tests.
package vcons

import (
	"sync"

	"github.com/conmux/conmux/internal/console"
)

// DefaultScrollback is the output capture limit in bytes.
const DefaultScrollback = 64 * 1024

// Console is an in-memory console backend. Output accumulates in a
// bounded scrollback (oldest bytes dropped first); input is a FIFO of
// bytes fed by the embedder.
//
// All methods are safe for concurrent use.
type Console struct {
	mu         sync.Mutex
	scrollback []byte
	input      []byte
	limit      int
}

// New creates a virtual console with the given scrollback limit.
// A non-positive limit selects DefaultScrollback.
func New(limit int) *Console {
	if limit <= 0 {
		limit = DefaultScrollback
	}
	return &Console{limit: limit}
}

// Out captures p into the scrollback, trimming the oldest bytes once
// the limit is exceeded. It always accepts the full write.
func (c *Console) Out(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scrollback = append(c.scrollback, p...)
	if overflow := len(c.scrollback) - c.limit; overflow > 0 {
		c.scrollback = c.scrollback[overflow:]
	}
	return len(p), nil
}

// In copies queued input into p without blocking, consuming what it
// returns. A zero count means nothing has been fed.
func (c *Console) In(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(p, c.input)
	c.input = c.input[n:]
	return n, nil
}

// Feed queues p as pending console input and returns the number of
// bytes accepted. Input beyond the scrollback limit is refused rather
// than growing without bound.
func (c *Console) Feed(p []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - len(c.input)
	if room <= 0 {
		return 0
	}
	if len(p) > room {
		p = p[:room]
	}
	c.input = append(c.input, p...)
	return len(p)
}

// TakeOutput drains and returns the captured scrollback.
func (c *Console) TakeOutput() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.scrollback
	c.scrollback = nil
	return out
}

// Scrollback returns the number of captured output bytes.
func (c *Console) Scrollback() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scrollback)
}

// Pending returns the number of queued input bytes.
func (c *Console) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.input)
}

// Register creates a virtual console and registers it under the given
// name and flags, returning both the device record and the backend.
func Register(registry *console.Registry, name string, flags console.Flag, scrollback int) (*console.Device, *Console) {
	if name == "" {
		name = "vcons"
	}
	vc := New(scrollback)
	dev := console.NewDevice(name, vc, flags)
	registry.Register(dev)
	return dev, vc
}
