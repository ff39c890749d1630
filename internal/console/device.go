package console

// Flag is a bit set describing a device's standard stream roles.
type Flag int

const (
	// FlagStdin marks a device as part of the standard input fan-in set.
	FlagStdin Flag = 0x1

	// FlagStdout marks a device as part of the standard output fan-out set.
	FlagStdout Flag = 0x2
)

// Has reports whether all bits of other are set in f.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// String renders the flag set in the two-character diagnostic form used
// in registration log records: 'I' and 'O' for the set roles, '-' for
// the unset ones (e.g. "IO", "I-", "--").
func (f Flag) String() string {
	b := [2]byte{'-', '-'}
	if f.Has(FlagStdin) {
		b[0] = 'I'
	}
	if f.Has(FlagStdout) {
		b[1] = 'O'
	}
	return string(b[:])
}

// Ops is the capability contract between the registry and a console
// backend.
//
// Out writes len(p) bytes to the backend. The contract is all-or-nothing:
// a backend that cannot accept all bytes immediately must block until it
// can (the ns16550 driver polls a transmit-ready condition). On success
// the returned count equals len(p).
//
// In reads up to len(p) bytes without blocking: it returns as soon as no
// more data is immediately available. A zero count is a valid, non-error
// result meaning nothing is ready right now.
type Ops interface {
	Out(p []byte) (int, error)
	In(p []byte) (int, error)
}

// Device represents one registered console endpoint.
//
// A Device is created by its driver at initialisation time and lives for
// the remainder of the process. The id is assigned by the registry
// during registration and is immutable afterwards; the flags may only be
// adjusted by the registry's default-assignment policy, also during
// registration.
type Device struct {
	id         uint16
	name       string
	flags      Flag
	ops        Ops
	registered bool
}

// NewDevice creates a device record bound to the given backend
// implementation. A zero flags value means "no role preference": the
// device is eligible to become the default standard stream.
//
// NewDevice panics if ops is nil; a device without a capability
// implementation is a driver bug, not an operating condition.
func NewDevice(name string, ops Ops, flags Flag) *Device {
	if ops == nil {
		panic("console: NewDevice called with nil ops")
	}
	return &Device{
		name:  name,
		flags: flags,
		ops:   ops,
	}
}

// ID returns the registry-assigned device id. Valid only after the
// device has been registered.
func (d *Device) ID() uint16 {
	return d.id
}

// Name returns the human-readable device label set at construction.
func (d *Device) Name() string {
	return d.name
}

// Flags returns the device's standard stream roles as resolved during
// registration.
func (d *Device) Flags() Flag {
	return d.flags
}
