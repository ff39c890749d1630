package console

import "errors"

// Domain errors for the console package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, console.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrInvalidArgument is returned when a direct access path is given
	// a nil device or a device without a capability implementation.
	ErrInvalidArgument = errors.New("console: invalid argument")

	// ErrDeviceNotFound is returned when a device id does not exist.
	ErrDeviceNotFound = errors.New("console: device not found")
)
