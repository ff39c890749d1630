package console

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is an ordered, append-only collection of console devices.
//
// It assigns each device a dense, monotonically increasing id, resolves
// which device(s) carry the process-wide standard stream roles, and
// implements the broadcast-write and aggregate-read algorithms over the
// flagged devices. There is no removal operation: registered devices
// live until process exit.
//
// The process owns exactly one Registry, created by the composition
// root and passed to dependents explicitly.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices []*Device
	nextID  uint16

	// standardSet latches once any device has been observed with
	// explicit role flags, or once the default assignment has fired.
	// It guarantees at most one device ever auto-receives the default
	// stdin+stdout roles.
	standardSet bool

	logger Logger
}

// NewRegistry creates an empty console registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a device to the registry and assigns its id.
//
// The first device registered without any explicit role flags receives
// both FlagStdin and FlagStdout; a device registered with explicit
// flags always keeps exactly what its driver requested, and its
// registration prevents any later default assignment.
//
// Register panics on misuse: a nil device, a device with no capability
// implementation, or a device that is already registered all indicate a
// defect in the calling driver rather than a runtime condition.
func (r *Registry) Register(dev *Device) {
	if dev == nil {
		panic("console: Register called with nil device")
	}
	if dev.ops == nil {
		panic("console: Register called with nil device ops")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dev.registered {
		panic(fmt.Sprintf("console: device %q registered twice", dev.name))
	}

	// An explicit role choice, once seen, must never be overridden by
	// the default policy, so it sets the latch too.
	if dev.flags != 0 {
		r.standardSet = true
	}
	if !r.standardSet && !dev.flags.Has(FlagStdin) && !dev.flags.Has(FlagStdout) {
		r.standardSet = true
		dev.flags |= FlagStdin | FlagStdout
	}

	r.devices = append(r.devices, dev)
	dev.id = r.nextID
	dev.registered = true
	r.nextID++

	r.logger.Info("console registered",
		"id", dev.id,
		"name", dev.name,
		"flags", dev.flags.String(),
	)
}

// Out writes p to every device flagged FlagStdout, in registration
// order, and returns len(p).
//
// Delivery is best-effort fan-out: an error from one device must not
// block delivery to the others, so individual backend results are
// absorbed. The zero-length write is a no-op fast path that touches no
// device.
func (r *Registry) Out(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for _, dev := range r.snapshot() {
		if !dev.flags.Has(FlagStdout) || dev.ops == nil {
			continue
		}
		if _, err := dev.ops.Out(p); err != nil {
			r.logger.Warn("broadcast write failed",
				"id", dev.id,
				"name", dev.name,
				"error", err,
			)
		}
	}

	return len(p), nil
}

// In collects input from every device flagged FlagStdin, in
// registration order, concatenating the results into p until it is
// full or no device yields more data.
//
// In never waits for data: each backend read is non-blocking and the
// total collected may be less than len(p), including zero. The
// zero-length read is a no-op fast path that touches no device.
func (r *Registry) In(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	leftover := p
	for _, dev := range r.snapshot() {
		if !dev.flags.Has(FlagStdin) || dev.ops == nil {
			continue
		}
		n, err := dev.ops.In(leftover)
		if err == nil && n >= 0 && n <= len(leftover) {
			leftover = leftover[n:]
		}
		if len(leftover) == 0 {
			break
		}
	}

	return len(p) - len(leftover), nil
}

// OutDirect writes p to one specific device, bypassing role flags.
// It is used when the caller already holds a device reference, such as
// a driver's own early output path or the API's per-device endpoints.
func (r *Registry) OutDirect(dev *Device, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if dev == nil || dev.ops == nil {
		return 0, ErrInvalidArgument
	}
	return dev.ops.Out(p)
}

// InDirect reads up to len(p) bytes from one specific device, bypassing
// role flags. Like every read in this package it does not block.
func (r *Registry) InDirect(dev *Device, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if dev == nil || dev.ops == nil {
		return 0, ErrInvalidArgument
	}
	return dev.ops.In(p)
}

// Get returns the registered device with the given id, or
// ErrDeviceNotFound. Valid ids are dense from 0 up to Count().
func (r *Registry) Get(id uint16) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, dev := range r.devices {
		if dev.id == id {
			return dev, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// Count returns the number of registered devices. It reads the running
// registration counter rather than scanning the device list.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.nextID)
}

// Devices returns a snapshot of the registered devices in registration
// order. The slice is a copy; the devices themselves are shared.
func (r *Registry) Devices() []*Device {
	return r.snapshot()
}

// snapshot copies the device list under the read lock so that I/O
// iteration does not hold the lock across backend calls. Registration
// is append-only, so a snapshot can only miss devices registered after
// the call began.
func (r *Registry) snapshot() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}
